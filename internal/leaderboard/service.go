// Package leaderboard mirrors session leaderboards into Redis and publishes them to subscribers.
package leaderboard

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/result"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Results  Results
	Redis    redis.UniversalClient
	Prefix   string
}

// Results provides the authoritative leaderboard.
type Results interface {
	GetLeaderboard(ctx context.Context, req result.GetLeaderboardRequest) (*domain.Leaderboard, error)
}

type Service struct {
	// mu orders mirror updates so the last write reflects the latest committed totals.
	mu sync.Mutex

	// trailing holds the pending trailing publish per session.
	trailingMu sync.Mutex
	trailing   map[string]*time.Timer
	stopped    bool

	eb      *event.Bus
	results Results
	redis   redis.UniversalClient
	prefix  string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:      c.EventBus,
		results: c.Results,
		redis:   c.Redis,
		prefix:  c.Prefix,

		trailing: make(map[string]*time.Timer),
	}

	s.eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		se, ok := e.(domain.SessionEvent)
		if !ok {
			return nil
		}
		return s.UpdateLeaderboard(ctx, se.SessionID)
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns the mirrored leaderboard of a session. Team IDs are not mirrored.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.SessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.NotFound("leaderboard not found: session=%s", req.SessionID)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			TeamName:    z.Member.(string),
			TotalPoints: z.Score,
		})
	}

	// Redis orders equal scores by member descending.
	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.TotalPoints, a.TotalPoints),
			cmp.Compare(a.TeamName, b.TeamName),
		)
	})

	return &domain.Leaderboard{
		SessionID: req.SessionID,
		Entries:   entries,
	}, nil
}

// UpdateLeaderboard overwrites the mirrored leaderboard of a session and schedules its publication.
func (s *Service) UpdateLeaderboard(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.results.GetLeaderboard(ctx, result.GetLeaderboardRequest{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", sessionID, err)
	}

	key := s.getLeaderboardKey(sessionID)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		for _, e := range l.Entries {
			p.ZAdd(ctx, key, redis.Z{
				Score:  e.TotalPoints,
				Member: e.TeamName,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, l)
}

// schedulePublishLeaderboard publishes the leaderboard at most once per publish interval.
// Every judge submission updates the leaderboard, and bursts of submissions are common at the end of a round.
// An update throttled away is followed by one trailing publish of the latest leaderboard.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, l *domain.Leaderboard) error {
	// This is a simple way to prevent multiple instances of the service from publishing the leaderboard.
	// But it's not perfect and can be improved.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(l.SessionID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		s.scheduleTrailingPublish(l.SessionID)
		return nil
	}

	return s.publishLeaderboard(ctx, l)
}

func (s *Service) scheduleTrailingPublish(sessionID string) {
	s.trailingMu.Lock()
	defer s.trailingMu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.trailing[sessionID]; ok {
		return
	}

	s.trailing[sessionID] = time.AfterFunc(publishInterval, func() {
		s.trailingMu.Lock()
		delete(s.trailing, sessionID)
		s.trailingMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		l, err := s.results.GetLeaderboard(ctx, result.GetLeaderboardRequest{SessionID: sessionID})
		if err == nil {
			err = s.publishLeaderboard(ctx, l)
		}
		if err != nil {
			slog.ErrorContext(ctx, "leaderboard: trailing publish failed", "session_id", sessionID, "error", err)
		}
	})
}

// Stop cancels the pending trailing publishes. Updates after Stop are published only when not throttled.
func (s *Service) Stop() {
	s.trailingMu.Lock()
	defer s.trailingMu.Unlock()

	s.stopped = true
	for id, t := range s.trailing {
		t.Stop()
		delete(s.trailing, id)
	}
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		TeamID      int64   `json:"team_id"`
		TeamName    string  `json:"team_name"`
		TotalPoints float64 `json:"total_points"`
	}
)

func (s *Service) publishLeaderboard(ctx context.Context, l *domain.Leaderboard) error {
	data := Leaderboard{
		SessionID: l.SessionID,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			TeamID:      e.TeamID,
			TeamName:    e.TeamName,
			TotalPoints: e.TotalPoints,
		})
	}

	b, err := json.Marshal(Notification{Event: "leaderboard", Data: data})
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}

	return s.redis.Publish(ctx, s.GetChannel(l.SessionID), b).Err()
}

// GetChannel returns the pubsub channel the session leaderboard is published to.
func (s *Service) GetChannel(session string) string {
	return fmt.Sprintf("%s:session:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
