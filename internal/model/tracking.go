package model

import (
	"time"

	"github.com/google/uuid"
)

// TrackingAction discriminates activity tracking events.
type TrackingAction string

const (
	TrackViewQuestion TrackingAction = "view_question"
	TrackViewPDF      TrackingAction = "view_pdf"
	TrackPause        TrackingAction = "pause"
	TrackResume       TrackingAction = "resume"
	TrackUpdateTime   TrackingAction = "update_time"
)

// TrackingEvent is a best-effort telemetry record for an attempt.
// OccurredAt is a client-side monotonically increasing timestamp so
// out-of-order delivery is tolerable when the worker applies events.
type TrackingEvent struct {
	AttemptID int64          `json:"attempt_id"`
	Action    TrackingAction `json:"action"`

	// view_question
	QuestionID            *uuid.UUID `json:"question_id,omitempty"`
	QuestionIndex         int        `json:"question_index,omitempty"`
	TimeOnPreviousSeconds int        `json:"time_on_previous_seconds,omitempty"`
	PreviousQuestionID    *uuid.UUID `json:"previous_question_id,omitempty"`

	// view_pdf
	PageNumber int `json:"page_number,omitempty"`

	// update_time
	TimeSpentSeconds int `json:"time_spent_seconds,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// TrackRequest is the HTTP payload for POST /attempts/:id/track.
type TrackRequest struct {
	Action                TrackingAction `json:"action" binding:"required,oneof=view_question view_pdf pause resume update_time"`
	QuestionID            *uuid.UUID     `json:"question_id"`
	QuestionIndex         int            `json:"question_index" binding:"min=0"`
	TimeOnPreviousSeconds int            `json:"time_on_previous_seconds" binding:"min=0"`
	PreviousQuestionID    *uuid.UUID     `json:"previous_question_id"`
	PageNumber            int            `json:"page_number" binding:"min=0"`
	TimeSpentSeconds      int            `json:"time_spent_seconds" binding:"min=0"`
	OccurredAt            *time.Time     `json:"occurred_at"`
}
