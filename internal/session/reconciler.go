package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/attemptapi"
	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/rs/zerolog"
)

// Reconciler migrates a guest session into a freshly created server
// attempt: one bulk call carrying the answers, total time, and
// per-question times, then a wipe of all local guest state.
type Reconciler struct {
	client *attemptapi.Client
	store  *localstore.Store
	log    zerolog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(client *attemptapi.Client, store *localstore.Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		client: client,
		store:  store,
		log:    log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcilePending takes the stored snapshot and, if it is flagged for
// sync and belongs to paperID, replays it into attemptID. Taking the
// snapshot is atomic with the trigger, so a second caller racing this
// one finds an empty slot and does nothing, so the reconciliation can
// never double-fire. If the bulk call fails the snapshot is put back,
// so the next mount retries and no guest progress is ever discarded.
//
// Returns true when a sync actually happened.
func (r *Reconciler) ReconcilePending(ctx context.Context, attemptID int64, paperID uuid.UUID) (bool, error) {
	snap, err := r.store.TakeSession(ctx)
	if err != nil {
		return false, fmt.Errorf("take snapshot: %w", err)
	}
	if snap == nil || !snap.PendingSync {
		if snap != nil {
			// Not ours to consume; put it back untouched.
			if err := r.store.SaveSession(ctx, snap); err != nil {
				return false, fmt.Errorf("restore snapshot: %w", err)
			}
		}
		return false, nil
	}
	if snap.PaperID != paperID.String() {
		if err := r.store.SaveSession(ctx, snap); err != nil {
			return false, fmt.Errorf("restore snapshot: %w", err)
		}
		return false, nil
	}

	if err := r.reconcile(ctx, attemptID, snap); err != nil {
		if saveErr := r.store.SaveSession(ctx, snap); saveErr != nil {
			r.log.Error().Err(saveErr).Msg("Failed to restore snapshot after failed sync")
		}
		return false, err
	}

	if err := r.store.ClearGuestData(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Guest store cleanup failed")
	}
	r.log.Info().Int64("attempt_id", attemptID).Int("answers", len(snap.Answers)).Msg("Guest session reconciled")
	return true, nil
}

func (r *Reconciler) reconcile(ctx context.Context, attemptID int64, snap *localstore.SessionSnapshot) error {
	req := &model.SyncAnswersRequest{
		TimeSpentSeconds: snap.TotalSeconds,
		QuestionTimes:    snap.QuestionTimes,
	}
	for id, value := range snap.Answers {
		questionID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("malformed question id %q: %w", id, err)
		}
		req.Answers = append(req.Answers, model.SyncAnswer{
			QuestionID:     questionID,
			AnswerText:     value.AnswerText,
			SelectedOption: value.SelectedOption,
		})
	}

	result, err := r.client.SyncAnswers(ctx, attemptID, req)
	if err != nil {
		return fmt.Errorf("sync answers: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("sync rejected for attempt %d", attemptID)
	}
	return nil
}
