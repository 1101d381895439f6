// Package attemptapi is the typed HTTP client for the attempt service.
// It is the only network surface the session engine talks to.
package attemptapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/rs/zerolog"
)

// APIError is a structured error decoded from the response envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to the attempt service. The zero token means guest:
// only the public paper and auth endpoints will succeed.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the service at baseURL (no trailing slash).
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "attemptapi").Logger(),
	}
}

// SetToken attaches a bearer token to subsequent requests. Called when
// a guest registers or logs in mid-session.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Authenticated reports whether the client carries a token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// envelope mirrors the service's response shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// Register creates an account and returns the issued token.
func (c *Client) Register(ctx context.Context, name, email, password string) (string, error) {
	var out struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name": name, "email": email, "password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Login authenticates and returns the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// GetPaper fetches a paper with its questions.
func (c *Client) GetPaper(ctx context.Context, paperID uuid.UUID) (*model.PaperPayload, error) {
	var out model.PaperPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/papers/"+paperID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPapers fetches one page of the published paper catalog.
func (c *Client) ListPapers(ctx context.Context, page, perPage int) ([]model.Paper, error) {
	var out struct {
		Papers []model.Paper `json:"papers"`
	}
	path := fmt.Sprintf("/api/v1/papers?page=%d&per_page=%d", page, perPage)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Papers, nil
}

// CreateAttempt starts a server attempt for a paper.
func (c *Client) CreateAttempt(ctx context.Context, paperID uuid.UUID) (*model.Attempt, error) {
	var out struct {
		Attempt *model.Attempt `json:"attempt"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/attempts", map[string]string{
		"paper_id": paperID.String(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Attempt, nil
}

// SaveAnswer upserts one answer on the server. Last write wins.
func (c *Client) SaveAnswer(ctx context.Context, attemptID int64, questionID uuid.UUID, answerText, selectedOption string) error {
	path := fmt.Sprintf("/api/v1/attempts/%d/answers", attemptID)
	return c.do(ctx, http.MethodPost, path, map[string]any{
		"attempt_id":      attemptID,
		"question_id":     questionID.String(),
		"answer_text":     answerText,
		"selected_option": selectedOption,
	}, nil)
}

// Track fires one telemetry event. Callers treat failures as droppable.
func (c *Client) Track(ctx context.Context, attemptID int64, req *model.TrackRequest) error {
	path := fmt.Sprintf("/api/v1/attempts/%d/track", attemptID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// SubmitAttempt submits with the authoritative total time.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID int64, timeSpentSeconds int) error {
	path := fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID)
	return c.do(ctx, http.MethodPost, path, map[string]int{
		"time_spent_seconds": timeSpentSeconds,
	}, nil)
}

// SyncAnswers bulk-replays a guest session into an attempt.
func (c *Client) SyncAnswers(ctx context.Context, attemptID int64, req *model.SyncAnswersRequest) (*model.SyncAnswersResult, error) {
	var out model.SyncAnswersResult
	path := fmt.Sprintf("/api/v1/attempts/%d/sync-answers", attemptID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkingProgress polls the marking job state for a submitted attempt.
func (c *Client) MarkingProgress(ctx context.Context, attemptID int64) (*model.MarkingProgress, error) {
	var out struct {
		Progress *model.MarkingProgress `json:"progress"`
	}
	path := fmt.Sprintf("/api/v1/attempts/%d/marking", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Progress, nil
}

// Results fetches a marked attempt with its answers.
func (c *Client) Results(ctx context.Context, attemptID int64) (*model.Attempt, []model.Answer, error) {
	var out struct {
		Attempt *model.Attempt `json:"attempt"`
		Answers []model.Answer `json:"answers"`
	}
	path := fmt.Sprintf("/api/v1/attempts/%d/results", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Attempt, out.Answers, nil
}
