package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/rs/zerolog"
)

// Tracker emits best-effort telemetry: question views with dwell time,
// PDF page views, pause/resume markers, periodic time updates. Nothing
// here is authoritative; any single lost event is acceptable.
type Tracker interface {
	ViewQuestion(questionID uuid.UUID, index int, previousID *uuid.UUID, timeOnPreviousSeconds int)
	ViewPDF(pageNumber int, questionID *uuid.UUID)
	Pause()
	Resume()
	UpdateTime(totalSeconds int)
}

// NopTracker drops everything. Used for guest sessions, where there is
// no attempt to track against.
type NopTracker struct{}

func (NopTracker) ViewQuestion(uuid.UUID, int, *uuid.UUID, int) {}
func (NopTracker) ViewPDF(int, *uuid.UUID)                      {}
func (NopTracker) Pause()                                       {}
func (NopTracker) Resume()                                      {}
func (NopTracker) UpdateTime(int)                               {}

// trackClient is the slice of attemptapi.Client the tracker needs.
type trackClient interface {
	Track(ctx context.Context, attemptID int64, req *model.TrackRequest) error
}

// attemptIDSource reports the server attempt id once it exists. Events
// raised before then are dropped, matching the fire-and-forget contract.
type attemptIDSource interface {
	AttemptID() (int64, bool)
}

// RemoteTracker sends each event in its own goroutine and silently
// drops failures. It stamps events with a client-side timestamp so the
// server tolerates out-of-order delivery.
type RemoteTracker struct {
	client  trackClient
	ids     attemptIDSource
	clock   Clock
	timeout time.Duration
	log     zerolog.Logger
}

// NewRemoteTracker creates a tracker bound to a remote backend's attempt id.
func NewRemoteTracker(client trackClient, ids attemptIDSource, clock Clock, log zerolog.Logger) *RemoteTracker {
	return &RemoteTracker{
		client:  client,
		ids:     ids,
		clock:   clock,
		timeout: 10 * time.Second,
		log:     log.With().Str("component", "tracker").Logger(),
	}
}

func (t *RemoteTracker) send(req *model.TrackRequest) {
	attemptID, ok := t.ids.AttemptID()
	if !ok {
		return
	}
	now := t.clock.Now()
	req.OccurredAt = &now

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.client.Track(ctx, attemptID, req); err != nil {
			// Dropped, not retried: losing a tracking event cannot
			// corrupt the attempt's authoritative state.
			t.log.Debug().Err(err).Str("action", string(req.Action)).Msg("Tracking event dropped")
		}
	}()
}

func (t *RemoteTracker) ViewQuestion(questionID uuid.UUID, index int, previousID *uuid.UUID, timeOnPreviousSeconds int) {
	t.send(&model.TrackRequest{
		Action:                model.TrackViewQuestion,
		QuestionID:            &questionID,
		QuestionIndex:         index,
		PreviousQuestionID:    previousID,
		TimeOnPreviousSeconds: timeOnPreviousSeconds,
	})
}

func (t *RemoteTracker) ViewPDF(pageNumber int, questionID *uuid.UUID) {
	t.send(&model.TrackRequest{
		Action:     model.TrackViewPDF,
		PageNumber: pageNumber,
		QuestionID: questionID,
	})
}

func (t *RemoteTracker) Pause() {
	t.send(&model.TrackRequest{Action: model.TrackPause})
}

func (t *RemoteTracker) Resume() {
	t.send(&model.TrackRequest{Action: model.TrackResume})
}

func (t *RemoteTracker) UpdateTime(totalSeconds int) {
	t.send(&model.TrackRequest{
		Action:           model.TrackUpdateTime,
		TimeSpentSeconds: totalSeconds,
	})
}
