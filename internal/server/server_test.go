package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/judgeboard/internal/api"
	"github.com/victornm/judgeboard/internal/notify"
	"github.com/victornm/judgeboard/internal/server"
)

func TestPostgres_DSN(t *testing.T) {
	tests := map[string]struct {
		pg   server.Postgres
		want string
	}{
		"no address means no database": {
			pg:   server.Postgres{User: "u"},
			want: "",
		},
		"full": {
			pg:   server.Postgres{Addr: "db:5432", User: "judge", Pass: "p@ss", Name: "judgeboard", SSLMode: "disable"},
			want: "postgres://judge:p%40ss@db:5432/judgeboard?sslmode=disable",
		},
		"without ssl mode": {
			pg:   server.Postgres{Addr: "db:5432", User: "judge", Pass: "p", Name: "jb"},
			want: "postgres://judge:p@db:5432/jb",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.pg.DSN())
		})
	}
}

func TestServer_Start_ListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	opsPort := free.Addr().(*net.TCPAddr).Port
	require.NoError(t, free.Close())

	c := server.DefaultConfig()
	c.HTTP.Port = int32(taken.Addr().(*net.TCPAddr).Port)
	c.HTTP.OpsPort = int32(opsPort)

	s, err := server.Init(c)
	require.NoError(t, err)
	defer s.Shutdown()

	served := make(chan error, 1)
	go func() { served <- s.Start() }()

	select {
	case err := <-served:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP")
	case <-time.After(5 * time.Second):
		t.Fatal("Start should return when a listener cannot bind")
	}
}

func send(url string, body any, headers ...string) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	return http.DefaultClient.Do(req)
}

func post(t *testing.T, url string, body any, headers ...string) *http.Response {
	t.Helper()

	resp, err := send(url, body, headers...)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.Equal(t, wantStatus, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// TestServer_Judging runs a full round through the HTTP API and checks what the realtime subscribers receive.
func TestServer_Judging(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	rs := miniredis.RunT(t)

	c := server.DefaultConfig()
	c.Redis.Pubsub.Addrs = []string{rs.Addr()}
	c.Redis.Pubsub.Prefix = "demo"

	s, err := server.Init(c)
	require.NoError(t, err)
	defer s.Shutdown()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	saved := decode[api.SaveQuestionsResponse](t, post(t, srv.URL+"/api/questions", map[string]any{
		"bank_name": "General",
		"questions": []map[string]any{
			{"text": "Capital?", "weight": 2, "choices": []map[string]any{{"text": "Yes", "weight": 1}, {"text": "No", "weight": 0}}},
			{"text": "Style?", "weight": 1, "choices": []map[string]any{{"text": "a", "weight": 1}, {"text": "b", "weight": 2}}},
		},
	}), http.StatusCreated)

	created := decode[api.CreateSessionResponse](t, post(t, srv.URL+"/api/sessions", map[string]any{
		"teams": []string{"Lions", "Tigers"},
	}), http.StatusCreated)
	id := created.Session.SessionID

	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
	defer rc.Close()
	ps := rc.Subscribe(ctx, notify.SessionChannel("demo", id))
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/sessions/"+id+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	started := decode[api.StartQuestionsResponse](t, post(t, srv.URL+"/api/sessions/"+id+"/start-questions", map[string]any{
		"question_ids": []int64{saved.Questions[0].ID, saved.Questions[1].ID},
	}, api.HeaderHostToken, created.HostToken), http.StatusOK)

	judges := []string{"Judy", "Olga", "Amir"}
	tokens := make([]string, len(judges))
	for i, name := range judges {
		joined := decode[api.JoinJudgeResponse](t, post(t, srv.URL+"/api/judges/join", map[string]any{
			"pin": "1234", "name": name, "session_id": id,
		}), http.StatusOK)
		tokens[i] = joined.JudgeToken
	}

	// Every judge submits the answer sheet of the current team at the same time.
	var eg errgroup.Group
	for i, tok := range tokens {
		i, tok := i, tok
		eg.Go(func() error {
			resp, err := send(srv.URL+"/api/answers/final", map[string]any{
				"session_id": id,
				"team_id":    started.Team.ID,
				"answers": []map[string]any{
					{"question_id": saved.Questions[0].ID, "answer": "Yes"},
					{"question_id": saved.Questions[1].ID, "answer": map[string]any{"text": "b"}},
				},
			}, api.HeaderJudgeToken, tok)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("judge %s: status %d", judges[i], resp.StatusCode)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/leaderboard")
	require.NoError(t, err)
	l := decode[api.Leaderboard](t, resp, http.StatusOK)
	require.Len(t, l.Entries, 2)
	assert.Equal(t, "Lions", l.Entries[0].TeamName)
	assert.Equal(t, 9.0, l.Entries[0].TotalPoints)

	ended := decode[api.Session](t, post(t, srv.URL+"/api/sessions/"+id+"/end", nil, api.HeaderHostToken, created.HostToken), http.StatusOK)
	assert.Equal(t, 9.0, ended.TotalPoints)

	// Redis subscribers get every session event.
	var sessionEvents []string
	for !containsEvent(sessionEvents, "session_ended") {
		msg, err := ps.ReceiveMessage(ctx)
		require.NoError(t, err)

		var m notify.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &m))
		sessionEvents = append(sessionEvents, m.Event)
	}
	assert.Contains(t, sessionEvents, "questions_started")
	assert.Contains(t, sessionEvents, "final_answers_submitted")
	assert.Contains(t, sessionEvents, "leaderboard_updated")

	// The leaderboard mirror follows the authoritative totals.
	require.Eventually(t, func() bool {
		score, err := rs.ZScore("demo:"+id+":leaderboard", "Lions")
		return err == nil && score == 9
	}, 2*time.Second, 20*time.Millisecond)

	// The websocket client sees the same stream.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var wsEvents []string
	for !containsEvent(wsEvents, "session_ended") {
		var m notify.Message
		require.NoError(t, ws.ReadJSON(&m))
		assert.Equal(t, id, m.SessionID)
		wsEvents = append(wsEvents, m.Event)
	}
	assert.Contains(t, wsEvents, "final_answers_submitted")
}

func containsEvent(events []string, name string) bool {
	for _, e := range events {
		if e == name {
			return true
		}
	}
	return false
}
