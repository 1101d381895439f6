package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/prepwise-backend/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, paper_id, status, started_at, submitted_at, marked_at,
	total_score, percentage, time_spent_seconds, last_activity_at, paused_at,
	total_pause_time_seconds, last_question_index, questions_viewed, pdf_views, pdf_last_page_viewed`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	var viewedJSON []byte
	err := row.Scan(&a.ID, &a.UserID, &a.PaperID, &a.Status, &a.StartedAt, &a.SubmittedAt,
		&a.MarkedAt, &a.TotalScore, &a.Percentage, &a.TimeSpentSeconds, &a.LastActivityAt,
		&a.PausedAt, &a.TotalPauseSeconds, &a.LastQuestionIndex, &viewedJSON,
		&a.PDFViews, &a.PDFLastPage)
	if err != nil {
		return nil, err
	}
	if len(viewedJSON) > 0 {
		if err := json.Unmarshal(viewedJSON, &a.QuestionsViewed); err != nil {
			return nil, err
		}
	}
	if a.QuestionsViewed == nil {
		a.QuestionsViewed = []string{}
	}
	return a, nil
}

// Create inserts a new in-progress attempt and fills in the generated id.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (user_id, paper_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, started_at, last_activity_at`,
		a.UserID, a.PaperID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt, &a.LastActivityAt)
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id int64) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetByIDForUser retrieves an attempt owned by the given user.
func (r *AttemptRepository) GetByIDForUser(ctx context.Context, id int64, userID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListByUser retrieves all attempts for a user, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1 ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// MarkSubmitted transitions an attempt to submitted and records the
// authoritative total time sent by the client.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, id int64, timeSpentSeconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, submitted_at = $2, time_spent_seconds = $3, last_activity_at = NOW()
		 WHERE id = $4`,
		model.AttemptStatusSubmitted, time.Now(), timeSpentSeconds, id)
	return err
}

// SetTimeSpent overwrites the attempt's total time (bulk sync path).
func (r *AttemptRepository) SetTimeSpent(ctx context.Context, id int64, seconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET time_spent_seconds = $1, last_activity_at = NOW() WHERE id = $2`,
		seconds, id)
	return err
}

// UserHasAttemptForPaper reports whether the user already has a live
// (in_progress or paused) attempt for this paper, and returns it if so.
func (r *AttemptRepository) UserHasAttemptForPaper(ctx context.Context, userID int, paperID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1 AND paper_id = $2 AND status IN ($3, $4)
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID, paperID, model.AttemptStatusInProgress, model.AttemptStatusPaused))
}
