package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/attemptapi"
	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/rs/zerolog"
)

// RemoteBackend persists through the attempt service. Attempt creation
// is fired without blocking the session: answers saved before the id
// arrives are buffered and flushed the moment it does.
type RemoteBackend struct {
	client *attemptapi.Client
	log    zerolog.Logger

	mu        sync.Mutex
	attemptID int64
	hasID     bool
	released  bool
	pending   []pendingAnswer
}

type pendingAnswer struct {
	questionID uuid.UUID
	value      localstore.AnswerValue
}

// NewRemoteBackend creates a backend for an authenticated session.
func NewRemoteBackend(client *attemptapi.Client, log zerolog.Logger) *RemoteBackend {
	return &RemoteBackend{
		client: client,
		log:    log.With().Str("component", "remote_backend").Logger(),
	}
}

// CreateAttempt requests a server attempt. Answer saves stay buffered
// until Flush so a pending guest snapshot can be bulk-synced first;
// a flushed edit landing before the bulk sync would be overwritten by
// the older snapshot value. Callers run it in a goroutine so the
// session renders before the id returns.
func (b *RemoteBackend) CreateAttempt(ctx context.Context, paperID uuid.UUID) (int64, error) {
	attempt, err := b.client.CreateAttempt(ctx, paperID)
	if err != nil {
		return 0, fmt.Errorf("create attempt: %w", err)
	}

	b.mu.Lock()
	b.attemptID = attempt.ID
	b.hasID = true
	b.mu.Unlock()
	return attempt.ID, nil
}

// Flush releases the buffer: everything held so far is fired and later
// saves go straight to the server. Call once, after any reconciliation.
func (b *RemoteBackend) Flush() {
	b.mu.Lock()
	attemptID, ok := b.attemptID, b.hasID
	if !ok {
		b.mu.Unlock()
		return
	}
	b.released = true
	buffered := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, p := range buffered {
		b.fire(attemptID, p.questionID, p.value)
	}
}

// AttemptID reports the server attempt id once creation has completed.
func (b *RemoteBackend) AttemptID() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attemptID, b.hasID
}

// SaveAnswer fires an independent save call per mutation. Calls are not
// ordered; each is keyed by question id and last write wins server-side.
func (b *RemoteBackend) SaveAnswer(_ context.Context, questionID uuid.UUID, value localstore.AnswerValue) error {
	b.mu.Lock()
	if !b.released {
		b.pending = append(b.pending, pendingAnswer{questionID: questionID, value: value})
		b.mu.Unlock()
		return nil
	}
	attemptID := b.attemptID
	b.mu.Unlock()

	b.fire(attemptID, questionID, value)
	return nil
}

func (b *RemoteBackend) fire(attemptID int64, questionID uuid.UUID, value localstore.AnswerValue) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := b.client.SaveAnswer(ctx, attemptID, questionID, value.AnswerText, value.SelectedOption); err != nil {
			b.log.Warn().Err(err).Str("question_id", questionID.String()).Msg("Answer save failed")
		}
	}()
}

// SaveSnapshot is a no-op: state already lives on the server.
func (b *RemoteBackend) SaveSnapshot(context.Context, *localstore.SessionSnapshot) error {
	return nil
}

// Submit finalizes the server attempt. Requires the attempt id; a
// session whose creation call never succeeded cannot submit.
func (b *RemoteBackend) Submit(ctx context.Context, timeSpentSeconds int) error {
	attemptID, ok := b.AttemptID()
	if !ok {
		return fmt.Errorf("submit: no attempt id")
	}
	return b.client.SubmitAttempt(ctx, attemptID, timeSpentSeconds)
}
