package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/prepwise-backend/internal/model"
)

// PaperRepository handles paper and question data access.
type PaperRepository struct {
	pool *pgxpool.Pool
}

// NewPaperRepository creates a new PaperRepository.
func NewPaperRepository(pool *pgxpool.Pool) *PaperRepository {
	return &PaperRepository{pool: pool}
}

// ListPublished retrieves published papers, newest exam year first.
func (r *PaperRepository) ListPublished(ctx context.Context, page, perPage int) ([]model.Paper, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM papers WHERE status = $1`, model.PaperStatusPublished,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, subject, board, year, duration_minutes, total_marks, pdf_url, status, created_at, updated_at
		 FROM papers
		 WHERE status = $1
		 ORDER BY year DESC, subject ASC, title ASC
		 LIMIT $2 OFFSET $3`,
		model.PaperStatusPublished, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var papers []model.Paper
	for rows.Next() {
		var p model.Paper
		if err := rows.Scan(&p.ID, &p.Title, &p.Subject, &p.Board, &p.Year,
			&p.DurationMinutes, &p.TotalMarks, &p.PDFURL, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		papers = append(papers, p)
	}
	return papers, total, rows.Err()
}

// GetByID retrieves a single paper.
func (r *PaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Paper, error) {
	p := &model.Paper{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, subject, board, year, duration_minutes, total_marks, pdf_url, status, created_at, updated_at
		 FROM papers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.Subject, &p.Board, &p.Year,
		&p.DurationMinutes, &p.TotalMarks, &p.PDFURL, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListQuestions retrieves a paper's questions in display order.
func (r *PaperRepository) ListQuestions(ctx context.Context, paperID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, paper_id, question_number, question_text, question_type, marks, options, correct_answer, pdf_page
		 FROM questions
		 WHERE paper_id = $1
		 ORDER BY question_number ASC`, paperID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var optionsJSON []byte
		if err := rows.Scan(&q.ID, &q.PaperID, &q.Number, &q.Text, &q.Type,
			&q.Marks, &optionsJSON, &q.CorrectAnswer, &q.PDFPage); err != nil {
			return nil, err
		}
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
				return nil, err
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
