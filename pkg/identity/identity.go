// Package identity tracks the visitor identity token (a UUID-v4 issued by the backend) for one
// tenant and mirrors it into a kvstore.Store under "userId-<chatbotSlug>".
package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/chatbot-client/pkg/kvstore"
)

// StorageKey returns the store key holding the identity for a tenant.
func StorageKey(chatbotSlug string) string {
	return "userId-" + chatbotSlug
}

// IsValidUUIDv4 accepts only the canonical 36 character hyphenated form with version 4 and
// the RFC 4122 variant.
func IsValidUUIDv4(s string) bool {
	if len(s) != 36 {
		return false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}

// Tracker holds the in-memory identity and keeps the store in sync with it.
type Tracker struct {
	slug   string
	store  kvstore.Store
	logger zerolog.Logger

	mu     sync.RWMutex
	userID string
}

func NewTracker(chatbotSlug string, store kvstore.Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = kvstore.NewMemoryStore()
	}
	return &Tracker{slug: chatbotSlug, store: store, logger: logger}
}

// Load initialises the identity from explicit, falling back to the stored value.
// Values that are not UUID-v4 are discarded.
func (t *Tracker) Load(ctx context.Context, explicit string) error {
	candidate := explicit
	if candidate == "" {
		v, ok, err := t.store.Get(ctx, StorageKey(t.slug))
		if err != nil {
			return errors.Wrap(err, "load identity")
		}
		if ok {
			candidate = v
		}
	}
	if candidate != "" && !IsValidUUIDv4(candidate) {
		t.logger.Warn().Str("user_id", candidate).Msg("discarding identity that is not a UUID-v4")
		candidate = ""
	}

	t.mu.Lock()
	t.userID = candidate
	t.mu.Unlock()
	if candidate != "" {
		t.logger.Debug().Str("user_id", candidate).Msg("identity loaded")
	}
	return nil
}

// Current returns the identity, or "" when none is known.
func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID
}

// Confirm records the identity the server considers authoritative. It reports whether the
// local value changed.
func (t *Tracker) Confirm(ctx context.Context, serverID string) (bool, error) {
	t.mu.Lock()
	if t.userID == serverID {
		t.mu.Unlock()
		return false, nil
	}
	previous := t.userID
	t.userID = serverID
	t.mu.Unlock()

	t.logger.Info().Str("previous", previous).Str("user_id", serverID).Msg("updating identity from server")
	if err := t.store.Set(ctx, StorageKey(t.slug), serverID); err != nil {
		return true, errors.Wrap(err, "persist identity")
	}
	return true, nil
}

// Reset forgets the identity in memory and in the store.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.userID = ""
	t.mu.Unlock()
	return errors.Wrap(t.store.Remove(ctx, StorageKey(t.slug)), "clear identity")
}
