package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/prepwise-backend/internal/model"
)

// MarkingProgressRepository handles marking job progress data access.
type MarkingProgressRepository struct {
	pool *pgxpool.Pool
}

// NewMarkingProgressRepository creates a new MarkingProgressRepository.
func NewMarkingProgressRepository(pool *pgxpool.Pool) *MarkingProgressRepository {
	return &MarkingProgressRepository{pool: pool}
}

// CreateQueued inserts (or resets) the progress row for an attempt in the
// queued state. Re-submitting after a failed marking run reuses the row.
func (r *MarkingProgressRepository) CreateQueued(ctx context.Context, attemptID int64, questionsTotal int) error {
	queuedMsg, _ := json.Marshal([]model.MarkingMessage{{
		Kind: "info",
		Text: "Your paper is in the marking queue...",
		At:   time.Now(),
	}})
	_, err := r.pool.Exec(ctx,
		`INSERT INTO marking_progress (attempt_id, status, questions_total, questions_marked, messages)
		 VALUES ($1, $2, $3, 0, $4)
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     questions_total = EXCLUDED.questions_total,
		     questions_marked = 0,
		     messages = EXCLUDED.messages,
		     error_message = '',
		     started_at = NULL,
		     completed_at = NULL,
		     updated_at = NOW()`,
		attemptID, model.MarkingStatusQueued, questionsTotal, queuedMsg)
	return err
}

// GetByAttempt retrieves the progress row for an attempt.
func (r *MarkingProgressRepository) GetByAttempt(ctx context.Context, attemptID int64) (*model.MarkingProgress, error) {
	p := &model.MarkingProgress{}
	var messagesJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, status, questions_total, questions_marked, current_question_number,
		        messages, error_message, started_at, completed_at, updated_at
		 FROM marking_progress WHERE attempt_id = $1`, attemptID,
	).Scan(&p.AttemptID, &p.Status, &p.QuestionsTotal, &p.QuestionsMarked, &p.CurrentQuestionNumber,
		&messagesJSON, &p.ErrorMessage, &p.StartedAt, &p.CompletedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &p.Messages); err != nil {
			return nil, err
		}
	}
	if p.Messages == nil {
		p.Messages = []model.MarkingMessage{}
	}
	return p, nil
}
