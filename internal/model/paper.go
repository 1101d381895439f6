package model

import (
	"time"

	"github.com/google/uuid"
)

// PaperStatus enumerates the review states of an uploaded paper.
type PaperStatus string

const (
	PaperStatusPending   PaperStatus = "PENDING_REVIEW"
	PaperStatusPublished PaperStatus = "PUBLISHED"
	PaperStatusArchived  PaperStatus = "ARCHIVED"
)

// Paper represents one past exam paper.
type Paper struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Subject         string      `json:"subject"`
	Board           string      `json:"board"`
	Year            int         `json:"year"`
	DurationMinutes int         `json:"duration_minutes"`
	TotalMarks      int         `json:"total_marks"`
	PDFURL          string      `json:"pdf_url,omitempty"`
	Status          PaperStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// QuestionType distinguishes auto-markable from AI-marked questions.
type QuestionType string

const (
	QuestionTypeMCQ     QuestionType = "mcq"
	QuestionTypeWritten QuestionType = "written"
)

// QuestionOption is a single multiple-choice option.
type QuestionOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question represents a single question within a paper.
//
// CorrectAnswer is served to clients so the guest preview can score
// multiple-choice questions locally without a server round trip.
type Question struct {
	ID            uuid.UUID        `json:"id"`
	PaperID       uuid.UUID        `json:"paper_id"`
	Number        int              `json:"question_number"`
	Text          string           `json:"question_text"`
	Type          QuestionType     `json:"question_type"`
	Marks         int              `json:"marks"`
	Options       []QuestionOption `json:"options,omitempty"`
	CorrectAnswer string           `json:"correct_answer,omitempty"`
	PDFPage       *int             `json:"pdf_page,omitempty"`
}

// PaperPayload is the full paper sent to a client starting an attempt.
type PaperPayload struct {
	Paper     Paper      `json:"paper"`
	Questions []Question `json:"questions"`
}
