package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/judgeboard/internal/answer"
	"github.com/victornm/judgeboard/internal/api"
	"github.com/victornm/judgeboard/internal/catalog"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/notify"
	"github.com/victornm/judgeboard/internal/result"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/snapshot"
	"github.com/victornm/judgeboard/internal/store/memory"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()

	gin.SetMode(gin.TestMode)

	st := memory.New()
	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	rec := notify.NewRecorder(st, eb)
	hub := notify.NewHub()
	hub.Register(eb)
	t.Cleanup(hub.Close)

	sessions := session.NewService(session.Config{Store: st, Emitter: rec})
	results := result.NewService(result.Config{Store: st, Emitter: rec})

	a := api.New(api.Config{
		Session:  sessions,
		Answer:   answer.NewService(answer.Config{Store: st, Emitter: rec}),
		Result:   results,
		Snapshot: snapshot.NewService(snapshot.Config{Store: st, Sessions: sessions, Results: results}),
		Catalog:  catalog.NewService(catalog.Config{Store: st}),
		Events:   rec,
		Hub:      hub,
	})

	e := gin.New()
	a.Register(e)
	return e
}

type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAPI_JudgingFlow(t *testing.T) {
	c := client{t: t, h: newRouter(t)}

	w := c.do(http.MethodPost, "/api/questions", map[string]any{
		"bank_name": "General",
		"questions": []map[string]any{{
			"text":    "Capital?",
			"section": "Geography",
			"weight":  2,
			"choices": []map[string]any{{"text": "Yes", "weight": 1}, {"text": "No", "weight": 0}},
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[api.SaveQuestionsResponse](t, w)
	require.Len(t, saved.Questions, 1)
	qid := saved.Questions[0].ID

	w = c.do(http.MethodPost, "/api/sessions", map[string]any{"teams": []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[api.CreateSessionResponse](t, w)
	id := created.Session.SessionID
	assert.Equal(t, "waiting", created.Session.Status)
	assert.Equal(t, "A", created.Session.CurrentTeam)
	require.NotEmpty(t, created.HostToken)

	w = c.do(http.MethodPost, "/api/sessions/"+id+"/start-questions", map[string]any{"question_ids": []int64{qid}})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, "authorization", decode[errorBody](t, w).Error.Kind)

	w = c.do(http.MethodPost, "/api/sessions/"+id+"/start-questions", map[string]any{"question_ids": []int64{qid}},
		api.HeaderHostToken, created.HostToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decode[api.StartQuestionsResponse](t, w)
	assert.Equal(t, "active", started.Session.Status)
	assert.Equal(t, "A", started.Team.Name)

	w = c.do(http.MethodPost, "/api/judges/join", map[string]any{"pin": "0000", "name": "Judy"})
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	w = c.do(http.MethodPost, "/api/judges/join", map[string]any{"pin": "1234", "name": "Judy", "session_id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	joined := decode[api.JoinJudgeResponse](t, w)
	require.NotNil(t, joined.Session)
	assert.Equal(t, id, joined.Session.SessionID)

	w = c.do(http.MethodPost, "/api/answers", map[string]any{"session_id": id, "question_id": qid, "answer": map[string]any{"text": "Yes"}},
		api.HeaderJudgeToken, joined.JudgeToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	submitted := decode[api.SubmitAnswerResponse](t, w)
	assert.Equal(t, 2.0, submitted.Points)
	assert.Equal(t, 2.0, submitted.Result.TotalPoints)

	w = c.do(http.MethodGet, "/api/sessions/"+id+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []api.LeaderboardEntry{
		{Rank: 1, TeamID: started.Team.ID, TeamName: "A", TotalPoints: 2},
		{Rank: 2, TeamName: "B", TotalPoints: 0},
	}, decode[api.Leaderboard](t, w).Entries)

	w = c.do(http.MethodGet, "/api/sessions/"+id+"/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[api.Snapshot](t, w)
	assert.Len(t, snap.Judges, 1)
	assert.Len(t, snap.AnswersByTeam["A"], 1)

	w = c.do(http.MethodPost, "/api/sessions/"+id+"/change-team", map[string]any{"direction": "next"},
		api.HeaderHostToken, created.HostToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "B", decode[api.Session](t, w).CurrentTeam)

	w = c.do(http.MethodPost, "/api/sessions/"+id+"/end", nil, api.HeaderHostToken, created.HostToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ended := decode[api.Session](t, w)
	assert.Equal(t, "ended", ended.Status)
	assert.Equal(t, 2.0, ended.TotalPoints)

	w = c.do(http.MethodPost, "/api/answers", map[string]any{"session_id": id, "question_id": qid, "answer": "Yes"},
		api.HeaderJudgeToken, joined.JudgeToken)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "terminal_state", decode[errorBody](t, w).Error.Kind)

	w = c.do(http.MethodGet, "/api/results", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode[[]api.EndedSession](t, w)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].SessionID)

	w = c.do(http.MethodGet, "/api/sessions/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	events := decode[[]notify.Message](t, w)
	require.NotEmpty(t, events)
	assert.Equal(t, "session_created", events[0].Event)
	assert.Equal(t, "session_ended", events[len(events)-1].Event)

	w = c.do(http.MethodGet, fmt.Sprintf("/api/sessions/%s/events?after=%d", id, events[len(events)-2].Seq), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]notify.Message](t, w), 1)
}

func TestAPI_Errors(t *testing.T) {
	tests := map[string]struct {
		method   string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		"unknown session state should be not found": {
			method:   http.MethodGet,
			path:     "/api/sessions/missing/state",
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		"unknown team should be not found": {
			method:   http.MethodGet,
			path:     "/api/teams/Nobody",
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		"a session without teams should be rejected": {
			method:   http.MethodPost,
			path:     "/api/sessions",
			body:     map[string]any{"teams": []string{}},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		"a missing body field should be rejected": {
			method:   http.MethodPost,
			path:     "/api/judges/join",
			body:     map[string]any{"pin": "1234"},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		"an unknown direction should be rejected": {
			method:   http.MethodPost,
			path:     "/api/sessions/missing/change-team",
			body:     map[string]any{"direction": "sideways"},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		"an answer without a judge token should be unauthenticated": {
			method:   http.MethodPost,
			path:     "/api/answers",
			body:     map[string]any{"session_id": "s1", "question_id": 1, "answer": "Yes"},
			wantCode: http.StatusUnauthorized,
			wantKind: "authentication",
		},
		"a malformed event cursor should be rejected": {
			method:   http.MethodGet,
			path:     "/api/sessions/missing/events?after=abc",
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		"questions without a bank name should be rejected": {
			method:   http.MethodPost,
			path:     "/api/questions",
			body:     map[string]any{"bank_name": " ", "questions": []map[string]any{{"text": "Q", "choices": []map[string]any{{"text": "a"}}}}},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
	}

	h := newRouter(t)
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			w := client{t: t, h: h}.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())

			body := decode[errorBody](t, w)
			assert.Equal(t, tt.wantKind, body.Error.Kind)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}
