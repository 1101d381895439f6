package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/prepwise-backend/internal/model"
)

// AnswerRepository handles answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or overwrites the answer for (attempt, question).
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO answers (attempt_id, question_id, answer_text, selected_option)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET answer_text = EXCLUDED.answer_text,
		     selected_option = EXCLUDED.selected_option,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		a.AttemptID, a.QuestionID, a.AnswerText, a.SelectedOption,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// ListByAttempt retrieves all answers for an attempt in question order.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID int64) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.attempt_id, a.question_id, a.answer_text, a.selected_option,
		        a.is_correct, a.score, a.feedback, a.ai_marked, a.marked_at,
		        a.confidence_score, a.confidence_level,
		        a.time_spent_seconds, a.first_viewed_at, a.last_viewed_at,
		        a.view_count, a.pdf_reference_clicks, a.created_at, a.updated_at
		 FROM answers a
		 JOIN questions q ON a.question_id = q.id
		 WHERE a.attempt_id = $1
		 ORDER BY q.question_number ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.AnswerText, &a.SelectedOption,
			&a.IsCorrect, &a.Score, &a.Feedback, &a.AIMarked, &a.MarkedAt,
			&a.ConfidenceScore, &a.ConfidenceLevel,
			&a.TimeSpentSeconds, &a.FirstViewedAt, &a.LastViewedAt,
			&a.ViewCount, &a.PDFRefClicks, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// BulkUpsert replays a guest session's answers and per-question times in
// a single transaction. Existing answers for the same questions are
// overwritten (last write wins). Returns the number of answers synced.
func (r *AnswerRepository) BulkUpsert(ctx context.Context, attemptID int64, answers []model.SyncAnswer, questionTimes map[string]int) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	synced := 0
	for _, ans := range answers {
		if ans.QuestionID == uuid.Nil {
			continue
		}
		qTime := questionTimes[ans.QuestionID.String()]
		if _, err := tx.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_id, answer_text, selected_option, time_spent_seconds)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET answer_text = EXCLUDED.answer_text,
			     selected_option = EXCLUDED.selected_option,
			     time_spent_seconds = EXCLUDED.time_spent_seconds,
			     updated_at = NOW()`,
			attemptID, ans.QuestionID, ans.AnswerText, ans.SelectedOption, qTime,
		); err != nil {
			return 0, err
		}
		synced++
	}

	// Time entries for questions the guest viewed but never answered.
	for qidStr, qTime := range questionTimes {
		qid, err := uuid.Parse(qidStr)
		if err != nil || qTime <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO answers (attempt_id, question_id, answer_text, selected_option, time_spent_seconds)
			 VALUES ($1, $2, '', '', $3)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET time_spent_seconds = EXCLUDED.time_spent_seconds,
			     updated_at = NOW()`,
			attemptID, qid, qTime,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return synced, nil
}
