package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/homefinder/internal/db"
	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/session"
)

// store is the consumer interface for session persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repo keeps conversation state as JSON under <prefix>session:<id>, expiring after ttl of inactivity.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a session repository.
func New(s store, keyPrefix string, ttl time.Duration) *Repo {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Repo{store: s, prefix: keyPrefix + "session:", ttl: ttl}
}

// Get loads a session. Unknown or expired ids yield domain.ErrSessionNotFound.
func (r *Repo) Get(ctx context.Context, id string) (session.State, error) {
	data, err := r.store.Get(ctx, r.prefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return session.State{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return session.State{}, fmt.Errorf("get session %s: %w", id, err)
	}

	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		return session.State{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return st, nil
}

// Save stores the session and refreshes its expiry.
func (r *Repo) Save(ctx context.Context, st session.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	if err := r.store.SetWithTTL(ctx, r.prefix+st.ID, data, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", st.ID, err)
	}
	return nil
}
