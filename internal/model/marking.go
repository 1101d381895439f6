package model

import "time"

// MarkingStatus enumerates the states of an asynchronous marking job.
type MarkingStatus string

const (
	MarkingStatusQueued      MarkingStatus = "queued"
	MarkingStatusMarking     MarkingStatus = "marking"
	MarkingStatusCalculating MarkingStatus = "calculating"
	MarkingStatusCompleted   MarkingStatus = "completed"
	MarkingStatusFailed      MarkingStatus = "failed"
)

// MarkingMessage is one free-text progress line emitted by the marking worker.
type MarkingMessage struct {
	Kind string    `json:"kind"` // info | progress | result | fun | complete | error
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// MarkingProgress is the pollable state of one attempt's marking job.
type MarkingProgress struct {
	AttemptID             int64            `json:"attempt_id"`
	Status                MarkingStatus    `json:"status"`
	QuestionsTotal        int              `json:"questions_total"`
	QuestionsMarked       int              `json:"questions_marked"`
	CurrentQuestionNumber *int             `json:"current_question_number,omitempty"`
	Messages              []MarkingMessage `json:"messages"`
	ErrorMessage          string           `json:"error_message,omitempty"`
	StartedAt             *time.Time       `json:"started_at,omitempty"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt             time.Time        `json:"updated_at"`
}
