package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/notify"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/snapshot"
)

type CreateSessionRequest struct {
	Teams []string `json:"teams" binding:"required"`
}

type CreateSessionResponse struct {
	Session   Session `json:"session"`
	HostToken string  `json:"host_token"`
}

func (a *API) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !bind(c, &req) {
		return
	}

	ss, err := a.ss.CreateSession(c.Request.Context(), session.CreateSessionRequest{Teams: req.Teams})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		Session:   newSession(ss),
		HostToken: ss.HostToken,
	})
}

type StartQuestionsRequest struct {
	QuestionIDs []int64 `json:"question_ids" binding:"required"`
}

type StartQuestionsResponse struct {
	Session   Session               `json:"session"`
	Team      Team                  `json:"team"`
	Questions []domain.QuestionView `json:"questions"`
}

func (a *API) StartQuestions(c *gin.Context) {
	var req StartQuestionsRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.ss.StartQuestions(c.Request.Context(), session.StartQuestionsRequest{
		SessionID:   c.Param("id"),
		HostToken:   c.GetHeader(HeaderHostToken),
		QuestionIDs: req.QuestionIDs,
	})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, StartQuestionsResponse{
		Session:   newSession(resp.Session),
		Team:      newTeam(resp.Team),
		Questions: newQuestions(resp.Questions),
	})
}

type ChangeTeamRequest struct {
	Direction string `json:"direction" binding:"required,oneof=next previous"`
}

func (a *API) ChangeTeam(c *gin.Context) {
	var req ChangeTeamRequest
	if !bind(c, &req) {
		return
	}

	ss, err := a.ss.ChangeTeam(c.Request.Context(), session.ChangeTeamRequest{
		SessionID: c.Param("id"),
		HostToken: c.GetHeader(HeaderHostToken),
		Direction: session.Direction(req.Direction),
	})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newSession(ss))
}

func (a *API) EndSession(c *gin.Context) {
	ss, err := a.ss.EndSession(c.Request.Context(), session.EndSessionRequest{
		SessionID: c.Param("id"),
		HostToken: c.GetHeader(HeaderHostToken),
	})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newSession(ss))
}

func (a *API) GetState(c *gin.Context) {
	s, err := a.ss.GetState(c.Request.Context(), session.GetStateRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newState(s))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.rs.GetLeaderboard(c.Request.Context(), result.GetLeaderboardRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newLeaderboard(l))
}

func (a *API) ListTeamLedgers(c *gin.Context) {
	rs, err := a.rs.ListTeamLedgers(c.Request.Context(), result.ListTeamLedgersRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	out := make([]Result, 0, len(rs))
	for i := range rs {
		out = append(out, newResult(&rs[i]))
	}
	ok(c, out)
}

func (a *API) GetSnapshot(c *gin.Context) {
	s, err := a.sns.GetSnapshot(c.Request.Context(), snapshot.GetSnapshotRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newSnapshot(s))
}

func (a *API) ListJudges(c *gin.Context) {
	js, err := a.ss.ListJudges(c.Request.Context(), session.ListJudgesRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newJudges(js))
}

func (a *API) ListEvents(c *gin.Context) {
	after, err := queryInt(c, "after")
	if err != nil {
		abort(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		abort(c, err)
		return
	}

	es, err := a.rec.ListEvents(c.Request.Context(), notify.ListEventsRequest{
		SessionID: c.Param("id"),
		After:     after,
		Limit:     int(limit),
	})
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newMessages(es))
}

// ServeWS streams the session events over a websocket.
func (a *API) ServeWS(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.ss.GetState(c.Request.Context(), session.GetStateRequest{SessionID: id}); err != nil {
		abort(c, err)
		return
	}

	a.hub.ServeWS(c.Writer, c.Request, id)
}

func queryInt(c *gin.Context, key string) (int64, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Validation("%s must be a non-negative integer", key)
	}
	return n, nil
}
