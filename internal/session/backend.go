package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/localstore"
)

// Backend is the persistence target of an active session, selected once
// at controller construction by authentication state. The controller
// never branches on which one it is: the fold/reset/navigate invariant
// is backend-agnostic.
type Backend interface {
	// SaveAnswer persists one answer mutation. Implementations may be
	// asynchronous; a returned error means the mutation was rejected
	// outright, not that a network call failed in the background.
	SaveAnswer(ctx context.Context, questionID uuid.UUID, value localstore.AnswerValue) error

	// SaveSnapshot mirrors the full session state. A no-op for
	// server-backed sessions, write-through for guests.
	SaveSnapshot(ctx context.Context, snap *localstore.SessionSnapshot) error

	// Submit finalizes the attempt with the authoritative total time.
	Submit(ctx context.Context, timeSpentSeconds int) error
}
