package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/prepwise/prepwise-backend/internal/repository"
)

// ErrPaperNotAvailable is returned for unknown or unpublished papers.
var ErrPaperNotAvailable = errors.New("paper is not available")

// PaperService handles the paper catalog read path.
type PaperService struct {
	paperRepo *repository.PaperRepository
}

// NewPaperService creates a new PaperService.
func NewPaperService(paperRepo *repository.PaperRepository) *PaperService {
	return &PaperService{paperRepo: paperRepo}
}

// ListPapers returns published papers with pagination.
func (s *PaperService) ListPapers(ctx context.Context, page, perPage int) ([]model.Paper, int64, error) {
	return s.paperRepo.ListPublished(ctx, page, perPage)
}

// GetPayload returns a published paper with its questions.
//
// The payload includes MCQ correct answers so an unauthenticated client
// can score its preview locally. This mirrors the production data shape;
// authoritative marking never trusts the client's copy.
func (s *PaperService) GetPayload(ctx context.Context, paperID uuid.UUID) (*model.PaperPayload, error) {
	paper, err := s.paperRepo.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaperNotAvailable
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}
	if paper.Status != model.PaperStatusPublished {
		return nil, ErrPaperNotAvailable
	}

	questions, err := s.paperRepo.ListQuestions(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		// A paper with no questions cannot start a session.
		return nil, ErrPaperNotAvailable
	}

	return &model.PaperPayload{Paper: *paper, Questions: questions}, nil
}
