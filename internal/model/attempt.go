package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusPaused     AttemptStatus = "paused"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusMarked     AttemptStatus = "marked"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
)

// Attempt represents one student's timed pass through one paper.
type Attempt struct {
	ID               int64         `json:"id"`
	UserID           int           `json:"user_id"`
	PaperID          uuid.UUID     `json:"paper_id"`
	Status           AttemptStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	MarkedAt         *time.Time    `json:"marked_at,omitempty"`
	TotalScore       *float64      `json:"total_score,omitempty"`
	Percentage       *float64      `json:"percentage,omitempty"`
	TimeSpentSeconds int           `json:"time_spent_seconds"`

	// Activity tracking (diagnostic, not authoritative).
	LastActivityAt    time.Time  `json:"last_activity_at"`
	PausedAt          *time.Time `json:"paused_at,omitempty"`
	TotalPauseSeconds int        `json:"total_pause_time_seconds"`
	LastQuestionIndex int        `json:"last_question_index"`
	QuestionsViewed   []string   `json:"questions_viewed"`
	PDFViews          int        `json:"pdf_views"`
	PDFLastPage       *int       `json:"pdf_last_page_viewed,omitempty"`
}

// Answer is one student response to one question within an attempt.
// Unique per (attempt, question); last write wins.
type Answer struct {
	ID             int64      `json:"id"`
	AttemptID      int64      `json:"attempt_id"`
	QuestionID     uuid.UUID  `json:"question_id"`
	AnswerText     string     `json:"answer_text"`
	SelectedOption string     `json:"selected_option"`
	IsCorrect      *bool      `json:"is_correct,omitempty"`
	Score          *float64   `json:"score,omitempty"`
	Feedback       string     `json:"feedback,omitempty"`
	AIMarked       bool       `json:"ai_marked"`
	MarkedAt       *time.Time `json:"marked_at,omitempty"`

	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	ConfidenceLevel string   `json:"confidence_level,omitempty"`

	// Per-question time tracking.
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	FirstViewedAt    *time.Time `json:"first_viewed_at,omitempty"`
	LastViewedAt     *time.Time `json:"last_viewed_at,omitempty"`
	ViewCount        int        `json:"view_count"`
	PDFRefClicks     int        `json:"pdf_reference_clicks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateAttemptRequest is the payload for starting an attempt.
type CreateAttemptRequest struct {
	PaperID uuid.UUID `json:"paper_id" binding:"required"`
}

// SaveAnswerRequest is the payload for upserting a single answer.
// AnswerText and SelectedOption are mutually exclusive in practice
// (depends on question type); the server stores whichever is present.
type SaveAnswerRequest struct {
	AttemptID      int64     `json:"attempt_id" binding:"required"`
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	AnswerText     string    `json:"answer_text" binding:"omitempty,max=20000"`
	SelectedOption string    `json:"selected_option" binding:"omitempty,max=10"`
}

// SubmitAttemptRequest carries the authoritative total time at submit.
type SubmitAttemptRequest struct {
	TimeSpentSeconds int `json:"time_spent_seconds" binding:"min=0"`
}

// SyncAnswer is one answer inside a bulk guest-session sync.
type SyncAnswer struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	AnswerText     string    `json:"answer_text" binding:"omitempty,max=20000"`
	SelectedOption string    `json:"selected_option" binding:"omitempty,max=10"`
}

// SyncAnswersRequest is the one-shot bulk upload used by guest reconciliation.
// QuestionTimes is keyed by question id string.
type SyncAnswersRequest struct {
	Answers          []SyncAnswer   `json:"answers" binding:"dive"`
	TimeSpentSeconds int            `json:"time_spent_seconds" binding:"min=0"`
	QuestionTimes    map[string]int `json:"question_times"`
}

// SyncAnswersResult reports the outcome of a bulk sync.
type SyncAnswersResult struct {
	Success     bool  `json:"success"`
	SyncedCount int   `json:"synced_count"`
	AttemptID   int64 `json:"attempt_id"`
}
