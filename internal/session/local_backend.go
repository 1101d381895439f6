package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/rs/zerolog"
)

// LocalBackend persists a guest session into the local store:
// write-through on every change, since losing a guest's last few
// seconds is a better tradeoff than batching complexity.
type LocalBackend struct {
	store *localstore.Store
	log   zerolog.Logger
}

// NewLocalBackend creates a backend for an unauthenticated session.
func NewLocalBackend(store *localstore.Store, log zerolog.Logger) *LocalBackend {
	return &LocalBackend{
		store: store,
		log:   log.With().Str("component", "local_backend").Logger(),
	}
}

// SaveAnswer records the answer in the guest store, which gates the
// soft registration prompt. The snapshot carries the authoritative copy.
func (b *LocalBackend) SaveAnswer(ctx context.Context, questionID uuid.UUID, value localstore.AnswerValue) error {
	return b.store.SaveGuestAnswer(ctx, questionID.String(), value)
}

// SaveSnapshot overwrites the single guest session slot.
func (b *LocalBackend) SaveSnapshot(ctx context.Context, snap *localstore.SessionSnapshot) error {
	return b.store.SaveSession(ctx, snap)
}

// Submit ends a guest session. There is no server round trip: scoring
// happens client-side via Controller.PreviewScore, and the finished
// session's slot is released.
func (b *LocalBackend) Submit(ctx context.Context, _ int) error {
	return b.store.ClearSession(ctx)
}
