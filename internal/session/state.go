package session

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"fmt"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/errors"
	"github.com/victornm/judgeboard/internal/store"
)

// Find loads a session by id.
func Find(ctx context.Context, st store.SessionStore, id string) (*domain.Session, error) {
	if id == "" {
		return nil, errors.Validation("session id is required")
	}

	ss, err := st.GetSession(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("session not found: session=%s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return ss, nil
}

// FindOpen loads a session that has not ended.
func FindOpen(ctx context.Context, st store.SessionStore, id string) (*domain.Session, error) {
	ss, err := Find(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if ss.Ended() {
		return nil, errors.TerminalState(ss.ID)
	}

	return ss, nil
}

// findMutable loads a session the host is allowed to change.
// The host token is checked before the terminal state.
func findMutable(ctx context.Context, st store.SessionStore, id, hostToken string) (*domain.Session, error) {
	ss, err := Find(ctx, st, id)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(ss.HostToken), []byte(hostToken)) != 1 {
		return nil, errors.PermissionDenied("host token mismatch: session=%s", ss.ID)
	}

	if ss.Ended() {
		return nil, errors.TerminalState(ss.ID)
	}

	return ss, nil
}

// CurrentTeam resolves the Team row named at the session's current index.
func CurrentTeam(ctx context.Context, st store.TeamStore, ss *domain.Session) (*domain.Team, error) {
	name, ok := ss.CurrentTeam()
	if !ok {
		return nil, errors.NotFound("no team at current index: session=%s, index=%d", ss.ID, ss.CurrentTeamIndex)
	}

	t, err := st.FindTeamByName(ctx, name)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("team not found: session=%s, team=%s", ss.ID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("find team: %w", err)
	}

	return t, nil
}
