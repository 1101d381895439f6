package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/middleware"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/prepwise/prepwise-backend/internal/response"
	"github.com/prepwise/prepwise-backend/internal/service"
	"github.com/prepwise/prepwise-backend/internal/timeutil"
	"github.com/prepwise/prepwise-backend/internal/validator"
	"github.com/rs/zerolog"
)

// AttemptHandler handles the attempt lifecycle endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Create godoc
// POST /api/v1/attempts
func (h *AttemptHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.CreateAttempt(c.Request.Context(), claims.UserID, req.PaperID)
	if err != nil {
		if errors.Is(err, service.ErrPaperNotAvailable) {
			response.Fail(c, http.StatusNotFound, response.ErrPaperNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Create attempt failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// List godoc
// GET /api/v1/attempts
func (h *AttemptHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attempts, err := h.attemptService.ListAttempts(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("List attempts failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// Active godoc
// GET /api/v1/attempts/active?paper_id=
// Lets a returning client resume a live attempt instead of creating a
// duplicate.
func (h *AttemptHandler) Active(c *gin.Context) {
	claims := middleware.GetClaims(c)

	paperID, err := uuid.Parse(c.Query("paper_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.GetActiveAttempt(c.Request.Context(), claims.UserID, paperID)
	if err != nil {
		h.failAttempt(c, err, "Get active attempt failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Get godoc
// GET /api/v1/attempts/:id
func (h *AttemptHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failAttempt(c, err, "Get attempt failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// SaveAnswer godoc
// POST /api/v1/attempts/:id/answers
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	// The path, not the body, names the attempt.
	req.AttemptID = attemptID

	answer, err := h.attemptService.SaveAnswer(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		h.failAttempt(c, err, "Save answer failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// SyncAnswers godoc
// POST /api/v1/attempts/:id/sync-answers
// Bulk-replays a guest session: answers, per-question times, total time.
func (h *AttemptHandler) SyncAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.SyncAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.SyncAnswers(c.Request.Context(), claims.UserID, attemptID, &req)
	if err != nil {
		h.failAttempt(c, err, "Sync answers failed")
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Track godoc
// POST /api/v1/attempts/:id/track
// Fire-and-forget telemetry; 202 signals "queued", not "applied".
func (h *AttemptHandler) Track(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.TrackRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Track(c.Request.Context(), claims.UserID, attemptID, &req); err != nil {
		h.failAttempt(c, err, "Track event failed")
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// Submit godoc
// POST /api/v1/attempts/:id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, attemptID, req.TimeSpentSeconds)
	if err != nil {
		h.failAttempt(c, err, "Submit attempt failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Results godoc
// GET /api/v1/attempts/:id/results
func (h *AttemptHandler) Results(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	attempt, answers, err := h.attemptService.GetResults(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failAttempt(c, err, "Get results failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":          attempt,
		"answers":          answers,
		"time_spent_label": timeutil.FormatSeconds(attempt.TimeSpentSeconds),
	})
}

// MarkingProgress godoc
// GET /api/v1/attempts/:id/marking
// Polling fallback for clients without a websocket.
func (h *AttemptHandler) MarkingProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	progress, err := h.attemptService.GetMarkingProgress(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failAttempt(c, err, "Get marking progress failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}

// ListAnswers godoc
// GET /api/v1/attempts/:id/answers
func (h *AttemptHandler) ListAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	answers, err := h.attemptService.GetAnswers(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failAttempt(c, err, "List answers failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}

// failAttempt maps attempt service errors to HTTP responses.
func (h *AttemptHandler) failAttempt(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAttemptSubmitted):
		response.Fail(c, http.StatusBadRequest, response.ErrAttemptSubmitted)
	case errors.Is(err, service.ErrAttemptNotMarked):
		response.Fail(c, http.StatusBadRequest, response.ErrAttemptNotMarked)
	case errors.Is(err, service.ErrQuestionNotInPaper):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInPaper)
	case errors.Is(err, service.ErrPaperNotAvailable):
		response.Fail(c, http.StatusNotFound, response.ErrPaperNotFound)
	default:
		h.log.Error().Err(err).Msg(logMsg)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func parseAttemptID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
