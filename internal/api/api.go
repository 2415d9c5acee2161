package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/judgeboard/internal/answer"
	"github.com/victornm/judgeboard/internal/catalog"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/notify"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/snapshot"
)

const (
	HeaderHostToken  = "X-Host-Token"
	HeaderJudgeToken = "X-Judge-Token"
)

type Config struct {
	Session  *session.Service
	Answer   *answer.Service
	Result   *result.Service
	Snapshot *snapshot.Service
	Catalog  *catalog.Service
	Events   *notify.Recorder
	Hub      *notify.Hub
}

type API struct {
	ss  *session.Service
	as  *answer.Service
	rs  *result.Service
	sns *snapshot.Service
	cs  *catalog.Service
	rec *notify.Recorder
	hub *notify.Hub
}

func New(c Config) *API {
	return &API{
		ss:  c.Session,
		as:  c.Answer,
		rs:  c.Result,
		sns: c.Snapshot,
		cs:  c.Catalog,
		rec: c.Events,
		hub: c.Hub,
	}
}

// Register mounts the API routes on r.
func (a *API) Register(r gin.IRouter) {
	g := r.Group("/api")

	sessions := g.Group("/sessions")
	sessions.POST("", a.CreateSession)
	sessions.POST("/:id/start-questions", a.StartQuestions)
	sessions.POST("/:id/change-team", a.ChangeTeam)
	sessions.POST("/:id/end", a.EndSession)
	sessions.GET("/:id/state", a.GetState)
	sessions.GET("/:id/leaderboard", a.GetLeaderboard)
	sessions.GET("/:id/results", a.ListTeamLedgers)
	sessions.GET("/:id/snapshot", a.GetSnapshot)
	sessions.GET("/:id/judges", a.ListJudges)
	sessions.GET("/:id/events", a.ListEvents)
	sessions.GET("/:id/ws", a.ServeWS)

	g.POST("/judges/join", a.JoinJudge)
	g.POST("/answers", a.SubmitAnswer)
	g.POST("/answers/final", a.SubmitFinalAnswers)

	g.GET("/host/init", a.HostInit)
	g.GET("/teams/:name", a.FindTeam)
	g.GET("/results", a.ListEndedResults)
	g.POST("/questions", a.SaveQuestions)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
		e = errors.New(errors.CodeInternal)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), errorBody{
		Error: errorDetail{
			Kind:    e.Kind(),
			Code:    e.GRPCStatus().Code().String(),
			Message: e.Message,
		},
	})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abort(c, errors.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}
