package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/prepwise-backend/internal/config"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TrackingWorker consumes the tracking-events queue and applies activity
// records to PostgreSQL. Tracking is best-effort telemetry: a malformed
// event is dropped, a persist failure is requeued once the DB recovers.
type TrackingWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewTrackingWorker creates a new TrackingWorker.
func NewTrackingWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *TrackingWorker {
	return &TrackingWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "tracking_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *TrackingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *TrackingWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.QueueKey.TrackingEventsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var event model.TrackingEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.apply(ctx, &event); err != nil {
		w.log.Error().Err(err).
			Int64("attempt_id", event.AttemptID).
			Str("action", string(event.Action)).
			Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, config.QueueKey.TrackingEventsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// apply mutates attempt/answer tracking columns for one event. Events are
// idempotence-tolerant and a late event can only skew diagnostics, never
// the authoritative answers or total time (which update_time overwrites).
func (w *TrackingWorker) apply(ctx context.Context, e *model.TrackingEvent) error {
	switch e.Action {
	case model.TrackViewQuestion:
		return w.applyViewQuestion(ctx, e)
	case model.TrackViewPDF:
		return w.applyViewPDF(ctx, e)
	case model.TrackPause:
		_, err := w.pool.Exec(ctx,
			`UPDATE attempts
			 SET status = $1, paused_at = $2, last_activity_at = NOW()
			 WHERE id = $3 AND status = $4`,
			model.AttemptStatusPaused, e.OccurredAt, e.AttemptID, model.AttemptStatusInProgress)
		return err
	case model.TrackResume:
		_, err := w.pool.Exec(ctx,
			`UPDATE attempts
			 SET total_pause_time_seconds = total_pause_time_seconds +
			         GREATEST(0, EXTRACT(EPOCH FROM ($1::timestamptz - paused_at))::int),
			     status = $2, paused_at = NULL, last_activity_at = NOW()
			 WHERE id = $3 AND paused_at IS NOT NULL`,
			e.OccurredAt, model.AttemptStatusInProgress, e.AttemptID)
		return err
	case model.TrackUpdateTime:
		_, err := w.pool.Exec(ctx,
			`UPDATE attempts
			 SET time_spent_seconds = $1, last_activity_at = NOW()
			 WHERE id = $2 AND status IN ($3, $4)`,
			e.TimeSpentSeconds, e.AttemptID,
			model.AttemptStatusInProgress, model.AttemptStatusPaused)
		return err
	default:
		w.log.Warn().Str("action", string(e.Action)).Msg("Unknown tracking action, dropped")
		return nil
	}
}

func (w *TrackingWorker) applyViewQuestion(ctx context.Context, e *model.TrackingEvent) error {
	if e.QuestionID != nil {
		// Record the question as viewed (set semantics on the jsonb array).
		_, err := w.pool.Exec(ctx,
			`UPDATE attempts
			 SET last_question_index = $1,
			     questions_viewed = CASE
			         WHEN questions_viewed @> to_jsonb($2::text) THEN questions_viewed
			         ELSE questions_viewed || to_jsonb($2::text)
			     END,
			     last_activity_at = NOW()
			 WHERE id = $3`,
			e.QuestionIndex, e.QuestionID.String(), e.AttemptID)
		if err != nil {
			return err
		}

		// Stamp first view of the newly shown question.
		if _, err := w.pool.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_id, answer_text, selected_option, first_viewed_at)
			 VALUES ($1, $2, '', '', $3)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET first_viewed_at = COALESCE(answers.first_viewed_at, EXCLUDED.first_viewed_at),
			     updated_at = NOW()`,
			e.AttemptID, *e.QuestionID, e.OccurredAt); err != nil {
			return err
		}
	}

	// Fold the dwell time into the question being left. Accumulates: a
	// revisited question keeps its earlier total.
	if e.PreviousQuestionID != nil && e.TimeOnPreviousSeconds > 0 {
		if _, err := w.pool.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_id, answer_text, selected_option,
			                      time_spent_seconds, last_viewed_at, view_count)
			 VALUES ($1, $2, '', '', $3, $4, 1)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET time_spent_seconds = answers.time_spent_seconds + EXCLUDED.time_spent_seconds,
			     last_viewed_at = EXCLUDED.last_viewed_at,
			     view_count = answers.view_count + 1,
			     updated_at = NOW()`,
			e.AttemptID, *e.PreviousQuestionID, e.TimeOnPreviousSeconds, e.OccurredAt); err != nil {
			return err
		}
	}
	return nil
}

func (w *TrackingWorker) applyViewPDF(ctx context.Context, e *model.TrackingEvent) error {
	var lastPage any
	if e.PageNumber > 0 {
		lastPage = e.PageNumber
	}
	if _, err := w.pool.Exec(ctx,
		`UPDATE attempts
		 SET pdf_views = pdf_views + 1,
		     pdf_last_page_viewed = COALESCE($1, pdf_last_page_viewed),
		     last_activity_at = NOW()
		 WHERE id = $2`,
		lastPage, e.AttemptID); err != nil {
		return err
	}

	if e.QuestionID != nil {
		if _, err := w.pool.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_id, answer_text, selected_option, pdf_reference_clicks)
			 VALUES ($1, $2, '', '', 1)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET pdf_reference_clicks = answers.pdf_reference_clicks + 1,
			     updated_at = NOW()`,
			e.AttemptID, *e.QuestionID); err != nil {
			return err
		}
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *TrackingWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.QueueKey.TrackingEventsQueue).Result()
		if err != nil {
			break
		}

		var event model.TrackingEvent
		if err := json.Unmarshal([]byte(result), &event); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.apply(ctx, &event); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.QueueKey.TrackingEventsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
