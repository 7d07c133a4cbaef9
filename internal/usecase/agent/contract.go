package agent

import (
	"context"

	"github.com/kailas-cloud/homefinder/internal/domain/listing"
	"github.com/kailas-cloud/homefinder/internal/domain/session"
)

// Searcher runs listing searches.
type Searcher interface {
	Search(ctx context.Context, c listing.Criteria, topK int) ([]listing.Hit, error)
}

// SessionStore persists conversation state.
type SessionStore interface {
	Get(ctx context.Context, id string) (session.State, error)
	Save(ctx context.Context, st session.State) error
}

// ContactStore persists submitted leads.
type ContactStore interface {
	Save(ctx context.Context, st session.State) error
}

// Publisher delivers events to the frontend of a call. It must not block.
type Publisher interface {
	Publish(sessionID string, ev session.Event)
}
