package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/judgeboard/internal/catalog"
	"github.com/victornm/judgeboard/internal/domain"
)

func (a *API) HostInit(c *gin.Context) {
	d, err := a.cs.HostInit(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newHostData(d))
}

func (a *API) FindTeam(c *gin.Context) {
	t, err := a.cs.FindTeam(c.Request.Context(), c.Param("name"))
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newTeam(*t))
}

func (a *API) ListEndedResults(c *gin.Context) {
	es, err := a.rs.ListEndedResults(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	ok(c, newEndedSessions(es))
}

type SaveQuestionsRequest struct {
	BankName  string          `json:"bank_name" binding:"required"`
	Questions []QuestionInput `json:"questions" binding:"required"`
}

type QuestionInput struct {
	Text    string          `json:"text"`
	Section string          `json:"section"`
	Weight  float64         `json:"weight"`
	Correct string          `json:"correct"`
	Choices []domain.Choice `json:"choices"`
}

type SaveQuestionsResponse struct {
	BankID    int64                 `json:"bank_id"`
	Questions []domain.QuestionView `json:"questions"`
}

func (a *API) SaveQuestions(c *gin.Context) {
	var req SaveQuestionsRequest
	if !bind(c, &req) {
		return
	}

	qs := make([]domain.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		qs = append(qs, domain.Question{
			Text:    q.Text,
			Section: q.Section,
			Weight:  q.Weight,
			Correct: q.Correct,
			Choices: q.Choices,
		})
	}

	resp, err := a.cs.SaveQuestions(c.Request.Context(), catalog.SaveQuestionsRequest{
		BankName:  req.BankName,
		Questions: qs,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, SaveQuestionsResponse{
		BankID:    resp.Bank.ID,
		Questions: newQuestions(resp.Questions),
	})
}
