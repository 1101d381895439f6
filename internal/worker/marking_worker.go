package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/prepwise-backend/internal/config"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/prepwise/prepwise-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const markingPollTimeout = time.Second

// MarkingWorker consumes the marking-jobs queue and runs the asynchronous
// marking pipeline for submitted attempts: MCQs first, then written
// answers, then score calculation. Progress is written to PostgreSQL and
// announced on a Redis channel for the websocket stream.
type MarkingWorker struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	marker *service.MarkingService
	delay  time.Duration
	log    zerolog.Logger
}

// NewMarkingWorker creates a new MarkingWorker.
func NewMarkingWorker(pool *pgxpool.Pool, rdb *redis.Client, marker *service.MarkingService, cfg *config.Config, log zerolog.Logger) *MarkingWorker {
	return &MarkingWorker{
		pool:   pool,
		rdb:    rdb,
		marker: marker,
		delay:  cfg.MarkingPerQuestionDelay,
		log:    log.With().Str("component", "marking_worker").Logger(),
	}
}

type markingJob struct {
	AttemptID int64 `json:"attempt_id"`
}

// answerRow is one answer joined with its question, as the marker needs it.
type answerRow struct {
	AnswerID       int64
	AnswerText     string
	SelectedOption string
	QuestionID     uuid.UUID
	Number         int
	Text           string
	Type           model.QuestionType
	Marks          int
	CorrectAnswer  string
}

// Start begins the worker loop. Call in a goroutine.
func (w *MarkingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *MarkingWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, markingPollTimeout, config.QueueKey.MarkingJobsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var job markingJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Msg("Invalid job payload, dropped")
		return
	}

	// Marking jobs are not requeued: a retried half-marked attempt would
	// double progress counters. The user re-submits instead (the failure
	// is visible via the failed progress status).
	if err := w.mark(ctx, job.AttemptID); err != nil {
		w.log.Error().Err(err).Int64("attempt_id", job.AttemptID).Msg("Marking failed")
		w.fail(ctx, job.AttemptID)
	}
}

func (w *MarkingWorker) mark(ctx context.Context, attemptID int64) error {
	if err := w.begin(ctx, attemptID); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	w.addMessage(ctx, attemptID, "info", "Alright, let's see what you've got!")

	rows, err := w.loadAnswers(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}

	// 1. MCQs first: deterministic, no delay.
	mcqCorrect, mcqTotal := 0, 0
	var written []answerRow
	for _, row := range rows {
		if row.Type != model.QuestionTypeMCQ {
			written = append(written, row)
			continue
		}
		mcqTotal++
		answer := &model.Answer{SelectedOption: row.SelectedOption}
		question := &model.Question{Marks: row.Marks, CorrectAnswer: row.CorrectAnswer}
		res := w.marker.MarkMCQ(answer, question)
		if res.IsCorrect {
			mcqCorrect++
		}
		if err := w.saveMark(ctx, row.AnswerID, res); err != nil {
			return fmt.Errorf("save mcq mark: %w", err)
		}
		if err := w.advance(ctx, attemptID, nil); err != nil {
			return err
		}
	}
	if mcqTotal > 0 {
		w.addMessage(ctx, attemptID, "info",
			fmt.Sprintf("Multiple choice: %d/%d correct", mcqCorrect, mcqTotal))
	}

	// 2. Written answers, one at a time with progress messages.
	halfway := len(written) / 2
	for i, row := range written {
		preview := row.Text
		if len(preview) > 80 {
			preview = preview[:80] + "..."
		}
		w.addMessage(ctx, attemptID, "progress", fmt.Sprintf("Marking Q%d: %s", row.Number, preview))

		res := w.marker.MarkWritten(row.AnswerText, row.Marks)
		if err := w.saveMark(ctx, row.AnswerID, res); err != nil {
			return fmt.Errorf("save written mark: %w", err)
		}
		if err := w.advance(ctx, attemptID, &row.Number); err != nil {
			return err
		}

		feedback := res.Feedback
		if len(feedback) > 80 {
			feedback = feedback[:80] + "..."
		}
		w.addMessage(ctx, attemptID, "result",
			fmt.Sprintf("Q%d: %.4g/%d: %s", row.Number, res.Score, row.Marks, feedback))

		if len(written) > 2 && i+1 == halfway {
			w.addMessage(ctx, attemptID, "info",
				fmt.Sprintf("Halfway there, %d/%d written questions done!", i+1, len(written)))
		}

		if w.delay > 0 {
			time.Sleep(w.delay)
		}
	}

	// 3. Score calculation.
	if err := w.setStatus(ctx, attemptID, model.MarkingStatusCalculating); err != nil {
		return err
	}
	w.addMessage(ctx, attemptID, "info", "Calculating your final score...")

	pct, err := w.finalizeAttempt(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	if _, err := w.pool.Exec(ctx,
		`UPDATE marking_progress
		 SET status = $1, current_question_number = NULL, completed_at = NOW(), updated_at = NOW()
		 WHERE attempt_id = $2`,
		model.MarkingStatusCompleted, attemptID); err != nil {
		return err
	}
	w.addMessage(ctx, attemptID, "complete", fmt.Sprintf("All done! Final score: %.0f%%", pct))

	w.log.Info().Int64("attempt_id", attemptID).Float64("percentage", pct).Msg("Attempt marked")
	return nil
}

func (w *MarkingWorker) begin(ctx context.Context, attemptID int64) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE marking_progress
		 SET status = $1, started_at = NOW(), updated_at = NOW()
		 WHERE attempt_id = $2`,
		model.MarkingStatusMarking, attemptID)
	return err
}

func (w *MarkingWorker) setStatus(ctx context.Context, attemptID int64, status model.MarkingStatus) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE marking_progress SET status = $1, updated_at = NOW() WHERE attempt_id = $2`,
		status, attemptID)
	if err == nil {
		w.publish(ctx, attemptID)
	}
	return err
}

// advance bumps questions_marked and the current question pointer.
func (w *MarkingWorker) advance(ctx context.Context, attemptID int64, questionNumber *int) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE marking_progress
		 SET questions_marked = questions_marked + 1,
		     current_question_number = $1,
		     updated_at = NOW()
		 WHERE attempt_id = $2`,
		questionNumber, attemptID)
	if err == nil {
		w.publish(ctx, attemptID)
	}
	return err
}

// addMessage appends a progress line. Message failures are logged and
// swallowed: losing a line never aborts marking.
func (w *MarkingWorker) addMessage(ctx context.Context, attemptID int64, kind, text string) {
	raw, _ := json.Marshal([]model.MarkingMessage{{Kind: kind, Text: text, At: time.Now()}})
	_, err := w.pool.Exec(ctx,
		`UPDATE marking_progress
		 SET messages = messages || $1::jsonb, updated_at = NOW()
		 WHERE attempt_id = $2`,
		raw, attemptID)
	if err != nil {
		w.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("Progress message dropped")
		return
	}
	w.publish(ctx, attemptID)
}

// publish nudges websocket streamers to re-read the progress row.
func (w *MarkingWorker) publish(ctx context.Context, attemptID int64) {
	_ = w.rdb.Publish(ctx, config.CacheKey.MarkingProgressChannel(attemptID), "update").Err()
}

func (w *MarkingWorker) loadAnswers(ctx context.Context, attemptID int64) ([]answerRow, error) {
	rows, err := w.pool.Query(ctx,
		`SELECT a.id, a.answer_text, a.selected_option,
		        q.id, q.question_number, q.question_text, q.question_type, q.marks, q.correct_answer
		 FROM answers a
		 JOIN questions q ON a.question_id = q.id
		 WHERE a.attempt_id = $1
		 ORDER BY q.question_number ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []answerRow
	for rows.Next() {
		var r answerRow
		if err := rows.Scan(&r.AnswerID, &r.AnswerText, &r.SelectedOption,
			&r.QuestionID, &r.Number, &r.Text, &r.Type, &r.Marks, &r.CorrectAnswer); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (w *MarkingWorker) saveMark(ctx context.Context, answerID int64, res service.MarkResult) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE answers
		 SET is_correct = $1, score = $2, feedback = $3, ai_marked = $4,
		     confidence_score = $5, confidence_level = $6, marked_at = NOW(), updated_at = NOW()
		 WHERE id = $7`,
		res.IsCorrect, res.Score, res.Feedback, res.AIMarked,
		res.ConfidenceScore, res.ConfidenceLevel, answerID)
	return err
}

// finalizeAttempt computes totals over the marked answers and moves the
// attempt to marked. Returns the percentage.
func (w *MarkingWorker) finalizeAttempt(ctx context.Context, attemptID int64) (float64, error) {
	var total, maxScore float64
	err := w.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(a.score), 0), COALESCE(SUM(q.marks), 0)
		 FROM answers a
		 JOIN questions q ON a.question_id = q.id
		 WHERE a.attempt_id = $1`, attemptID,
	).Scan(&total, &maxScore)
	if err != nil {
		return 0, err
	}

	var pct float64
	if maxScore > 0 {
		pct = total / maxScore * 100
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, marked_at = NOW(), total_score = $2, percentage = $3, last_activity_at = NOW()
		 WHERE id = $4`,
		model.AttemptStatusMarked, total, pct, attemptID)
	return pct, err
}

// fail records a terminal failed status so the client's polling view can
// offer a re-submit.
func (w *MarkingWorker) fail(ctx context.Context, attemptID int64) {
	_, err := w.pool.Exec(ctx,
		`UPDATE marking_progress
		 SET status = $1,
		     error_message = 'An unexpected error occurred during marking. Please try again.',
		     completed_at = NOW(), updated_at = NOW()
		 WHERE attempt_id = $2`,
		model.MarkingStatusFailed, attemptID)
	if err != nil {
		w.log.Error().Err(err).Int64("attempt_id", attemptID).Msg("Failed to record marking failure")
		return
	}
	w.addMessage(ctx, attemptID, "error", "Something went wrong. Please try submitting again.")
}
