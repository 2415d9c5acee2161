package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/judgeboard/internal/answer"
	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/session"
)

type JoinJudgeRequest struct {
	PIN       string `json:"pin"`
	Name      string `json:"name" binding:"required"`
	SessionID string `json:"session_id"`
}

type JoinJudgeResponse struct {
	JudgeToken string   `json:"judge_token"`
	Judge      Judge    `json:"judge"`
	Session    *Session `json:"session"`
}

func (a *API) JoinJudge(c *gin.Context) {
	var req JoinJudgeRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.ss.JoinJudge(c.Request.Context(), session.JoinJudgeRequest{
		PIN:       req.PIN,
		Name:      req.Name,
		SessionID: req.SessionID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	out := JoinJudgeResponse{
		JudgeToken: resp.Judge.Token,
		Judge:      newJudges([]domain.Judge{*resp.Judge})[0],
	}
	if resp.Session != nil {
		ss := newSession(resp.Session)
		out.Session = &ss
	}

	ok(c, out)
}

type SubmitAnswerRequest struct {
	SessionID  string             `json:"session_id" binding:"required"`
	QuestionID int64              `json:"question_id" binding:"required"`
	Answer     domain.AnswerValue `json:"answer"`
}

type SubmitAnswerResponse struct {
	AnswerID int64   `json:"answer_id"`
	Team     Team    `json:"team"`
	Points   float64 `json:"points"`
	Result   Result  `json:"result"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.as.SubmitAnswer(c.Request.Context(), answer.SubmitAnswerRequest{
		SessionID:  req.SessionID,
		JudgeToken: c.GetHeader(HeaderJudgeToken),
		QuestionID: req.QuestionID,
		Answer:     req.Answer.String(),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitAnswerResponse{
		AnswerID: resp.Answer.ID,
		Team:     newTeam(resp.Team),
		Points:   resp.Answer.Points,
		Result:   newResult(resp.Result),
	})
}

type SubmitFinalAnswersRequest struct {
	SessionID string                   `json:"session_id" binding:"required"`
	TeamID    int64                    `json:"team_id" binding:"required"`
	Answers   []domain.FinalAnswerItem `json:"answers" binding:"required"`
}

type SubmitFinalAnswersResponse struct {
	Team   Team   `json:"team"`
	Result Result `json:"result"`
}

func (a *API) SubmitFinalAnswers(c *gin.Context) {
	var req SubmitFinalAnswersRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.as.SubmitFinalAnswers(c.Request.Context(), answer.SubmitFinalAnswersRequest{
		SessionID:  req.SessionID,
		JudgeToken: c.GetHeader(HeaderJudgeToken),
		TeamID:     req.TeamID,
		Answers:    req.Answers,
	})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, SubmitFinalAnswersResponse{
		Team:   newTeam(resp.Team),
		Result: newResult(resp.Result),
	})
}
