package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prepwise/prepwise-backend/internal/model"
)

func TestMarkMCQ(t *testing.T) {
	s := NewMarkingService()
	question := &model.Question{Type: model.QuestionTypeMCQ, Marks: 2, CorrectAnswer: "B"}

	t.Run("Correct", func(t *testing.T) {
		res := s.MarkMCQ(&model.Answer{SelectedOption: "B"}, question)
		assert.True(t, res.IsCorrect)
		assert.Equal(t, 2.0, res.Score)
		assert.Equal(t, "Correct!", res.Feedback)
		assert.Equal(t, "high", res.ConfidenceLevel)
	})

	t.Run("Incorrect", func(t *testing.T) {
		res := s.MarkMCQ(&model.Answer{SelectedOption: "A"}, question)
		assert.False(t, res.IsCorrect)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, "Incorrect. The correct answer is B.", res.Feedback)
	})

	t.Run("NoSelection", func(t *testing.T) {
		res := s.MarkMCQ(&model.Answer{}, question)
		assert.False(t, res.IsCorrect)
		assert.Equal(t, 0.0, res.Score)
	})
}

func TestMarkWritten(t *testing.T) {
	s := NewMarkingService()

	t.Run("Empty", func(t *testing.T) {
		res := s.MarkWritten("   ", 10)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, "No answer provided.", res.Feedback)
		assert.False(t, res.IsCorrect)
	})

	t.Run("VeryBrief", func(t *testing.T) {
		res := s.MarkWritten("short answer", 10)
		assert.Equal(t, 2.5, res.Score)
		assert.False(t, res.IsCorrect)
	})

	t.Run("SomeUnderstanding", func(t *testing.T) {
		res := s.MarkWritten("an answer of moderate length with detail", 10)
		assert.Equal(t, 5.0, res.Score)
		assert.True(t, res.IsCorrect, "half marks counts as correct")
	})

	t.Run("Substantial", func(t *testing.T) {
		res := s.MarkWritten(strings.Repeat("a detailed explanation ", 5), 10)
		assert.Equal(t, 6.0, res.Score)
		assert.True(t, res.IsCorrect)
		assert.Equal(t, "low", res.ConfidenceLevel)
	})

	t.Run("RoundsToTwoDecimals", func(t *testing.T) {
		res := s.MarkWritten("short answer", 3) // 3 * 0.25 = 0.75
		assert.Equal(t, 0.75, res.Score)
	})
}
