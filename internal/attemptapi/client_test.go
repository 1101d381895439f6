package attemptapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/prepwise-backend/internal/model"
)

func TestCreateAttemptDecodesEnvelope(t *testing.T) {
	paperID := uuid.New()
	var gotAuth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/attempts", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, paperID.String(), body["paper_id"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"attempt": model.Attempt{ID: 42, PaperID: paperID, Status: model.AttemptStatusInProgress},
			},
			"metadata": map[string]string{"request_id": "r1"},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zerolog.Nop())
	client.SetToken("tok123")

	attempt, err := client.CreateAttempt(context.Background(), paperID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), attempt.ID)
	assert.Equal(t, model.AttemptStatusInProgress, attempt.Status)
	assert.Equal(t, "Bearer tok123", gotAuth)
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"data":null,"error":{"code":"ATTEMPT_NOT_FOUND","message":"Attempt not found."},"metadata":{}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zerolog.Nop())
	_, err := client.MarkingProgress(context.Background(), 99)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "ATTEMPT_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "Attempt not found.", apiErr.Message)
}

func TestSaveAnswerAndSubmitShapes(t *testing.T) {
	questionID := uuid.New()
	var paths []string
	var bodies []map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{},"metadata":{}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zerolog.Nop())

	require.NoError(t, client.SaveAnswer(context.Background(), 7, questionID, "an answer", ""))
	require.NoError(t, client.SubmitAttempt(context.Background(), 7, 125))

	require.Equal(t, []string{"/api/v1/attempts/7/answers", "/api/v1/attempts/7/submit"}, paths)
	assert.Equal(t, questionID.String(), bodies[0]["question_id"])
	assert.Equal(t, "an answer", bodies[0]["answer_text"])
	assert.Equal(t, float64(125), bodies[1]["time_spent_seconds"])
}

func TestGetPaperPayload(t *testing.T) {
	paperID := uuid.New()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/papers/"+paperID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": model.PaperPayload{
				Paper: model.Paper{ID: paperID, Title: "Biology 2021", Status: model.PaperStatusPublished},
				Questions: []model.Question{
					{ID: uuid.New(), Number: 1, Type: model.QuestionTypeMCQ, CorrectAnswer: "C"},
				},
			},
			"metadata": map[string]string{},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zerolog.Nop())
	payload, err := client.GetPaper(context.Background(), paperID)
	require.NoError(t, err)
	assert.Equal(t, "Biology 2021", payload.Paper.Title)
	require.Len(t, payload.Questions, 1)
	assert.Equal(t, "C", payload.Questions[0].CorrectAnswer)
}
