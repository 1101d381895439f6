package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prepwise/prepwise-backend/internal/config"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/prepwise/prepwise-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Common attempt errors, mapped to HTTP codes by the handlers.
var (
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptSubmitted   = errors.New("attempt has already been submitted")
	ErrAttemptNotMarked   = errors.New("attempt has not been marked")
	ErrQuestionNotInPaper = errors.New("question does not belong to this paper")
)

// AttemptService handles the attempt lifecycle: create, save answers,
// bulk sync, tracking, submit.
type AttemptService struct {
	attemptRepo  *repository.AttemptRepository
	answerRepo   *repository.AnswerRepository
	paperRepo    *repository.PaperRepository
	progressRepo *repository.MarkingProgressRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	answerRepo *repository.AnswerRepository,
	paperRepo *repository.PaperRepository,
	progressRepo *repository.MarkingProgressRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo:  attemptRepo,
		answerRepo:   answerRepo,
		paperRepo:    paperRepo,
		progressRepo: progressRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// CreateAttempt starts a new attempt for a published paper. Every call
// creates a fresh attempt; resuming is a client-side concern.
func (s *AttemptService) CreateAttempt(ctx context.Context, userID int, paperID uuid.UUID) (*model.Attempt, error) {
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

	attempt := &model.Attempt{
		UserID:          userID,
		PaperID:         paperID,
		Status:          model.AttemptStatusInProgress,
		QuestionsViewed: []string{},
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

// GetAttempt retrieves an attempt owned by the user.
func (s *AttemptService) GetAttempt(ctx context.Context, userID int, attemptID int64) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByIDForUser(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// GetActiveAttempt retrieves the user's live attempt for a paper, so a
// returning client can resume instead of starting over. Returns
// ErrAttemptNotFound when no in-progress or paused attempt exists.
func (s *AttemptService) GetActiveAttempt(ctx context.Context, userID int, paperID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.UserHasAttemptForPaper(ctx, userID, paperID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts retrieves the user's attempts, newest first.
func (s *AttemptService) ListAttempts(ctx context.Context, userID int) ([]model.Attempt, error) {
	return s.attemptRepo.ListByUser(ctx, userID)
}

// SaveAnswer upserts one answer. Last write wins per (attempt, question).
func (s *AttemptService) SaveAnswer(ctx context.Context, userID int, req *model.SaveAnswerRequest) (*model.Answer, error) {
	attempt, err := s.GetAttempt(ctx, userID, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptSubmitted
	}

	// The question must belong to the paper being attempted.
	questions, err := s.paperRepo.ListQuestions(ctx, attempt.PaperID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	found := false
	for _, q := range questions {
		if q.ID == req.QuestionID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrQuestionNotInPaper
	}

	answer := &model.Answer{
		AttemptID:      req.AttemptID,
		QuestionID:     req.QuestionID,
		AnswerText:     req.AnswerText,
		SelectedOption: req.SelectedOption,
	}
	if err := s.answerRepo.Upsert(ctx, answer); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return answer, nil
}

// SyncAnswers replays a guest session into an existing attempt in one
// bulk call: answers, per-question times, and the total time.
func (s *AttemptService) SyncAnswers(ctx context.Context, userID int, attemptID int64, req *model.SyncAnswersRequest) (*model.SyncAnswersResult, error) {
	attempt, err := s.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress && attempt.Status != model.AttemptStatusPaused {
		return nil, ErrAttemptSubmitted
	}

	synced, err := s.answerRepo.BulkUpsert(ctx, attemptID, req.Answers, req.QuestionTimes)
	if err != nil {
		return nil, fmt.Errorf("bulk upsert: %w", err)
	}

	if req.TimeSpentSeconds > 0 {
		if err := s.attemptRepo.SetTimeSpent(ctx, attemptID, req.TimeSpentSeconds); err != nil {
			return nil, fmt.Errorf("set time spent: %w", err)
		}
	}

	return &model.SyncAnswersResult{Success: true, SyncedCount: synced, AttemptID: attemptID}, nil
}

// Track enqueues an activity event onto the Redis tracking queue. The
// tracking worker applies it to Postgres asynchronously so telemetry
// never blocks the answer-saving path.
func (s *AttemptService) Track(ctx context.Context, userID int, attemptID int64, req *model.TrackRequest) error {
	attempt, err := s.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status != model.AttemptStatusInProgress && attempt.Status != model.AttemptStatusPaused {
		return ErrAttemptSubmitted
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}
	event := model.TrackingEvent{
		AttemptID:             attemptID,
		Action:                req.Action,
		QuestionID:            req.QuestionID,
		QuestionIndex:         req.QuestionIndex,
		TimeOnPreviousSeconds: req.TimeOnPreviousSeconds,
		PreviousQuestionID:    req.PreviousQuestionID,
		PageNumber:            req.PageNumber,
		TimeSpentSeconds:      req.TimeSpentSeconds,
		OccurredAt:            occurredAt,
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.QueueKey.TrackingEventsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

// Submit transitions the attempt to submitted, creates the queued
// marking-progress record, and enqueues the marking job. The caller
// does not wait for marking.
func (s *AttemptService) Submit(ctx context.Context, userID int, attemptID int64, timeSpentSeconds int) (*model.Attempt, error) {
	attempt, err := s.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress && attempt.Status != model.AttemptStatusPaused {
		return nil, ErrAttemptSubmitted
	}

	if err := s.attemptRepo.MarkSubmitted(ctx, attemptID, timeSpentSeconds); err != nil {
		return nil, fmt.Errorf("mark submitted: %w", err)
	}

	answers, err := s.answerRepo.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	if err := s.progressRepo.CreateQueued(ctx, attemptID, len(answers)); err != nil {
		return nil, fmt.Errorf("create marking progress: %w", err)
	}

	job, _ := json.Marshal(map[string]int64{"attempt_id": attemptID})
	if err := s.rdb.RPush(ctx, config.QueueKey.MarkingJobsQueue, job).Err(); err != nil {
		return nil, fmt.Errorf("enqueue marking job: %w", err)
	}

	return s.GetAttempt(ctx, userID, attemptID)
}

// GetResults retrieves a marked attempt together with its answers.
func (s *AttemptService) GetResults(ctx context.Context, userID int, attemptID int64) (*model.Attempt, []model.Answer, error) {
	attempt, err := s.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if attempt.Status != model.AttemptStatusMarked {
		return nil, nil, ErrAttemptNotMarked
	}
	answers, err := s.answerRepo.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}
	return attempt, answers, nil
}

// GetMarkingProgress retrieves the marking job state for polling clients.
func (s *AttemptService) GetMarkingProgress(ctx context.Context, userID int, attemptID int64) (*model.MarkingProgress, error) {
	if _, err := s.GetAttempt(ctx, userID, attemptID); err != nil {
		return nil, err
	}
	progress, err := s.progressRepo.GetByAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return progress, nil
}

// GetAnswers retrieves an attempt's answers regardless of marking state.
func (s *AttemptService) GetAnswers(ctx context.Context, userID int, attemptID int64) ([]model.Answer, error) {
	if _, err := s.GetAttempt(ctx, userID, attemptID); err != nil {
		return nil, err
	}
	return s.answerRepo.ListByAttempt(ctx, attemptID)
}
