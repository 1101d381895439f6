package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/prepwise/prepwise-backend/internal/model"
)

// MarkResult is the outcome of marking one answer.
type MarkResult struct {
	Score           float64
	Feedback        string
	IsCorrect       bool
	AIMarked        bool
	ConfidenceScore float64
	ConfidenceLevel string
}

// MarkingService scores answers. MCQs are marked deterministically;
// written answers use a length-based heuristic until a marking-scheme
// pipeline is wired in.
type MarkingService struct{}

// NewMarkingService creates a new MarkingService.
func NewMarkingService() *MarkingService {
	return &MarkingService{}
}

// MarkMCQ scores a multiple-choice answer against the question key.
func (s *MarkingService) MarkMCQ(answer *model.Answer, question *model.Question) MarkResult {
	correct := answer.SelectedOption != "" && answer.SelectedOption == question.CorrectAnswer

	res := MarkResult{
		IsCorrect:       correct,
		AIMarked:        false,
		ConfidenceScore: 1.0,
		ConfidenceLevel: "high",
	}
	if correct {
		res.Score = float64(question.Marks)
		res.Feedback = "Correct!"
	} else {
		res.Score = 0
		res.Feedback = fmt.Sprintf("Incorrect. The correct answer is %s.", question.CorrectAnswer)
	}
	return res
}

// MarkWritten scores a free-text answer. Empty answers get zero; short
// answers get partial credit; substantial answers get a holding score
// pending detailed feedback.
func (s *MarkingService) MarkWritten(answerText string, marks int) MarkResult {
	text := strings.TrimSpace(answerText)
	maxMarks := float64(marks)

	var score float64
	var feedback string
	switch {
	case text == "":
		score = 0
		feedback = "No answer provided."
	case len(text) < 20:
		score = maxMarks * 0.25
		feedback = "Your answer is very brief. Try to provide more detail and explanation."
	case len(text) < 50:
		score = maxMarks * 0.5
		feedback = "Your answer shows some understanding. Consider expanding with more details."
	default:
		score = maxMarks * 0.6
		feedback = "Your answer has been recorded. Detailed AI feedback is currently unavailable."
	}
	score = math.Round(score*100) / 100

	return MarkResult{
		Score:           score,
		Feedback:        feedback,
		IsCorrect:       score >= maxMarks*0.5 && maxMarks > 0,
		AIMarked:        false,
		ConfidenceScore: 0.3,
		ConfidenceLevel: "low",
	}
}
