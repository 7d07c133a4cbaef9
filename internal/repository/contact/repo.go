package contact

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/homefinder/internal/domain/session"
)

type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
}

// Repo stores submitted leads as hashes under <prefix>contact:<session id>.
type Repo struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates a contact repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix + "contact:", now: time.Now}
}

// Save persists the contact details collected in st.
func (r *Repo) Save(ctx context.Context, st session.State) error {
	fields := map[string]string{
		"session_id":   st.ID,
		"email":        st.Contact.Email,
		"phone":        st.Contact.Phone,
		"language":     string(st.Language),
		"submitted_at": strconv.FormatInt(r.now().Unix(), 10),
	}
	if err := r.store.HSet(ctx, r.prefix+st.ID, fields); err != nil {
		return fmt.Errorf("save contact %s: %w", st.ID, err)
	}
	return nil
}
