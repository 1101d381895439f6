package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/prepwise/prepwise-backend/internal/model"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeBackend struct {
	mu        sync.Mutex
	answers   map[string]localstore.AnswerValue
	snapshots []*localstore.SessionSnapshot
	submitted []int
	submitErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{answers: make(map[string]localstore.AnswerValue)}
}

func (b *fakeBackend) SaveAnswer(_ context.Context, questionID uuid.UUID, value localstore.AnswerValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers[questionID.String()] = value
	return nil
}

func (b *fakeBackend) SaveSnapshot(_ context.Context, snap *localstore.SessionSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, snap)
	return nil
}

func (b *fakeBackend) Submit(_ context.Context, timeSpentSeconds int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return b.submitErr
	}
	b.submitted = append(b.submitted, timeSpentSeconds)
	return nil
}

func (b *fakeBackend) lastSnapshot() *localstore.SessionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.snapshots) == 0 {
		return nil
	}
	return b.snapshots[len(b.snapshots)-1]
}

type trackedEvent struct {
	action      model.TrackingAction
	questionID  string
	previousID  string
	prevSeconds int
	total       int
}

type recordingTracker struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (t *recordingTracker) ViewQuestion(questionID uuid.UUID, _ int, previousID *uuid.UUID, timeOnPreviousSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ev := trackedEvent{action: model.TrackViewQuestion, questionID: questionID.String(), prevSeconds: timeOnPreviousSeconds}
	if previousID != nil {
		ev.previousID = previousID.String()
	}
	t.events = append(t.events, ev)
}

func (t *recordingTracker) ViewPDF(pageNumber int, _ *uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{action: model.TrackViewPDF, total: pageNumber})
}

func (t *recordingTracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{action: model.TrackPause})
}

func (t *recordingTracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{action: model.TrackResume})
}

func (t *recordingTracker) UpdateTime(totalSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{action: model.TrackUpdateTime, total: totalSeconds})
}

func (t *recordingTracker) all() []trackedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]trackedEvent, len(t.events))
	copy(out, t.events)
	return out
}

func testPayload(t *testing.T, n int) *model.PaperPayload {
	t.Helper()
	payload := &model.PaperPayload{
		Paper: model.Paper{ID: uuid.New(), Title: "Physics 2019 Paper 1", Status: model.PaperStatusPublished},
	}
	for i := 0; i < n; i++ {
		q := model.Question{
			ID:      uuid.New(),
			PaperID: payload.Paper.ID,
			Number:  i + 1,
			Text:    "question",
			Type:    model.QuestionTypeWritten,
			Marks:   4,
		}
		if i%2 == 0 {
			q.Type = model.QuestionTypeMCQ
			q.Marks = 1
			q.Options = []model.QuestionOption{{Key: "A", Text: "a"}, {Key: "B", Text: "b"}}
			q.CorrectAnswer = "B"
		}
		payload.Questions = append(payload.Questions, q)
	}
	return payload
}

func newTestController(t *testing.T, payload *model.PaperPayload, backend Backend, tracker Tracker) *Controller {
	t.Helper()
	ctrl, err := New(Config{
		Payload:         payload,
		Backend:         backend,
		Tracker:         tracker,
		Clock:           &fakeClock{now: time.Unix(1700000000, 0)},
		Log:             zerolog.Nop(),
		FlushEveryTicks: 1 << 30, // no periodic flush unless a test wants it
	})
	require.NoError(t, err)
	return ctrl
}

func ticks(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

func startActive(t *testing.T, c *Controller) {
	t.Helper()
	c.mu.Lock()
	c.state = StateActive
	c.mu.Unlock()
}

func sumTimes(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func TestNewRejectsEmptyPaper(t *testing.T) {
	_, err := New(Config{Payload: &model.PaperPayload{}, Backend: newFakeBackend(), Log: zerolog.Nop()})
	assert.Error(t, err)
}

func TestTimeConservation(t *testing.T) {
	ctrl := newTestController(t, testPayload(t, 4), newFakeBackend(), &recordingTracker{})
	startActive(t, ctrl)

	check := func() {
		t.Helper()
		assert.Equal(t, ctrl.TotalSeconds(),
			sumTimes(ctrl.QuestionTimes())+ctrl.CurrentQuestionSeconds(),
			"folded times plus unfolded time must equal the total")
	}

	ticks(ctrl, 5)
	check()
	require.NoError(t, ctrl.Navigate(1))
	check()
	ticks(ctrl, 3)
	check()
	require.NoError(t, ctrl.Navigate(3))
	check()
	ticks(ctrl, 7)
	check()
	require.NoError(t, ctrl.Pause())
	check()
	require.NoError(t, ctrl.Resume())
	ticks(ctrl, 2)
	check()

	assert.Equal(t, 17, ctrl.TotalSeconds())
}

func TestQuestionTimeAccumulatesAcrossRevisits(t *testing.T) {
	payload := testPayload(t, 3)
	ctrl := newTestController(t, payload, newFakeBackend(), &recordingTracker{})
	startActive(t, ctrl)
	q0 := payload.Questions[0].ID.String()

	ticks(ctrl, 20)
	require.NoError(t, ctrl.Navigate(1))
	ticks(ctrl, 5)
	require.NoError(t, ctrl.Navigate(0)) // back to the first question
	ticks(ctrl, 15)
	require.NoError(t, ctrl.Navigate(2))

	assert.Equal(t, 35, ctrl.QuestionTimes()[q0], "revisits accumulate, not overwrite")
}

func TestPauseContributesZeroTime(t *testing.T) {
	payload := testPayload(t, 2)
	ctrl := newTestController(t, payload, newFakeBackend(), &recordingTracker{})
	startActive(t, ctrl)

	ticks(ctrl, 10)
	require.NoError(t, ctrl.Pause())
	assert.Equal(t, StatePaused, ctrl.State())

	// The world keeps ticking; the session must not.
	ticks(ctrl, 30)
	require.NoError(t, ctrl.Resume())
	ticks(ctrl, 4)

	assert.Equal(t, 14, ctrl.TotalSeconds())
	assert.Equal(t, 14, sumTimes(ctrl.QuestionTimes())+ctrl.CurrentQuestionSeconds())
}

func TestTrackingCallSequence(t *testing.T) {
	payload := testPayload(t, 3)
	tracker := &recordingTracker{}
	backend := newFakeBackend()
	ctrl := newTestController(t, payload, backend, tracker)
	ctrl.Start(context.Background())
	defer ctrl.Close()

	ticks(ctrl, 20)
	require.NoError(t, ctrl.Navigate(1))
	ticks(ctrl, 15)
	require.NoError(t, ctrl.Navigate(2))
	require.NoError(t, ctrl.Submit(context.Background()))

	events := tracker.all()
	require.Len(t, events, 4)

	assert.Equal(t, model.TrackViewQuestion, events[0].action)
	assert.Equal(t, payload.Questions[0].ID.String(), events[0].questionID)
	assert.Empty(t, events[0].previousID)

	assert.Equal(t, model.TrackViewQuestion, events[1].action)
	assert.Equal(t, payload.Questions[0].ID.String(), events[1].previousID)
	assert.Equal(t, 20, events[1].prevSeconds)

	assert.Equal(t, model.TrackViewQuestion, events[2].action)
	assert.Equal(t, payload.Questions[1].ID.String(), events[2].previousID)
	assert.Equal(t, 15, events[2].prevSeconds)

	assert.Equal(t, model.TrackUpdateTime, events[3].action)
	assert.Equal(t, 35, events[3].total)

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, 35, backend.submitted[0])
}

func TestPausedStartDefersViewEvent(t *testing.T) {
	payload := testPayload(t, 3)
	tracker := &recordingTracker{}
	snap := &localstore.SessionSnapshot{
		PaperID:      payload.Paper.ID.String(),
		CurrentIndex: 1,
		TotalSeconds: 40,
		IsPaused:     true,
	}

	ctrl, err := New(Config{
		Payload:  payload,
		Backend:  newFakeBackend(),
		Tracker:  tracker,
		Snapshot: snap,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	ctrl.Start(context.Background())
	defer ctrl.Close()

	assert.Equal(t, StatePaused, ctrl.State())
	assert.Empty(t, tracker.all(), "a frozen session must not record a question view")

	require.NoError(t, ctrl.Resume())

	events := tracker.all()
	require.Len(t, events, 2)
	assert.Equal(t, model.TrackResume, events[0].action)
	assert.Equal(t, model.TrackViewQuestion, events[1].action)
	assert.Equal(t, payload.Questions[1].ID.String(), events[1].questionID)
	assert.Empty(t, events[1].previousID)
	assert.Zero(t, events[1].prevSeconds)
}

func TestPartialSubmitSucceeds(t *testing.T) {
	payload := testPayload(t, 5)
	backend := newFakeBackend()
	ctrl := newTestController(t, payload, backend, &recordingTracker{})
	startActive(t, ctrl)

	require.NoError(t, ctrl.SetAnswer("the mitochondria"))
	require.NoError(t, ctrl.Navigate(1))
	require.NoError(t, ctrl.SelectOption("B"))

	require.NoError(t, ctrl.Submit(context.Background()))
	assert.Equal(t, StateDone, ctrl.State())

	// Unanswered questions are absent, not present with empty values.
	assert.Len(t, ctrl.Answers(), 2)
	assert.Len(t, backend.answers, 2)
}

func TestSubmitFailureIsRecoverable(t *testing.T) {
	backend := newFakeBackend()
	backend.submitErr = errors.New("service unavailable")
	ctrl := newTestController(t, testPayload(t, 2), backend, &recordingTracker{})
	startActive(t, ctrl)
	ticks(ctrl, 8)

	err := ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, ctrl.State())
	assert.Error(t, ctrl.SubmitError())

	backend.mu.Lock()
	backend.submitErr = nil
	backend.mu.Unlock()

	require.NoError(t, ctrl.Submit(context.Background()))
	assert.Equal(t, StateDone, ctrl.State())
	require.Len(t, backend.submitted, 1)
	assert.Equal(t, 8, backend.submitted[0])
}

func TestAnswerWriteThrough(t *testing.T) {
	payload := testPayload(t, 2)
	backend := newFakeBackend()
	ctrl := newTestController(t, payload, backend, &recordingTracker{})
	startActive(t, ctrl)

	require.NoError(t, ctrl.SelectOption("A"))
	require.NoError(t, ctrl.SetAnswer("draft"))

	key := payload.Questions[0].ID.String()
	assert.Equal(t, localstore.AnswerValue{AnswerText: "draft", SelectedOption: "A"}, backend.answers[key])

	snap := backend.lastSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, payload.Paper.ID.String(), snap.PaperID)
	assert.Equal(t, localstore.AnswerValue{AnswerText: "draft", SelectedOption: "A"}, snap.Answers[key])
	assert.False(t, snap.PendingSync)

	require.NoError(t, ctrl.MarkPendingSync())
	assert.True(t, backend.lastSnapshot().PendingSync)
}

func TestPeriodicFlush(t *testing.T) {
	payload := testPayload(t, 2)
	tracker := &recordingTracker{}
	backend := newFakeBackend()
	ctrl, err := New(Config{
		Payload:         payload,
		Backend:         backend,
		Tracker:         tracker,
		Clock:           &fakeClock{now: time.Unix(1700000000, 0)},
		Log:             zerolog.Nop(),
		FlushEveryTicks: 10,
	})
	require.NoError(t, err)
	startActive(t, ctrl)

	ticks(ctrl, 25)

	var updates []int
	for _, ev := range tracker.all() {
		if ev.action == model.TrackUpdateTime {
			updates = append(updates, ev.total)
		}
	}
	assert.Equal(t, []int{10, 20}, updates)
	require.NotNil(t, backend.lastSnapshot())
	assert.Equal(t, 20, backend.lastSnapshot().TotalSeconds)
}

func TestHydrationFromSnapshot(t *testing.T) {
	payload := testPayload(t, 3)
	q0 := payload.Questions[0].ID.String()
	snap := &localstore.SessionSnapshot{
		PaperID:       payload.Paper.ID.String(),
		CurrentIndex:  2,
		TotalSeconds:  125,
		Answers:       map[string]localstore.AnswerValue{q0: {AnswerText: "42"}},
		QuestionTimes: map[string]int{q0: 100},
	}

	ctrl, err := New(Config{
		Payload:  payload,
		Backend:  newFakeBackend(),
		Tracker:  &recordingTracker{},
		Snapshot: snap,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	startActive(t, ctrl)

	assert.Equal(t, 2, ctrl.CurrentIndex())
	assert.Equal(t, 125, ctrl.TotalSeconds())
	assert.Equal(t, 100, ctrl.QuestionTimes()[q0])
	assert.Equal(t, "42", ctrl.Answers()[q0].AnswerText)
}

func TestHydrationIgnoresOtherPaper(t *testing.T) {
	payload := testPayload(t, 3)
	snap := &localstore.SessionSnapshot{
		PaperID:      uuid.NewString(),
		CurrentIndex: 2,
		TotalSeconds: 500,
	}

	ctrl, err := New(Config{
		Payload:  payload,
		Backend:  newFakeBackend(),
		Tracker:  &recordingTracker{},
		Snapshot: snap,
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, ctrl.CurrentIndex())
	assert.Equal(t, 0, ctrl.TotalSeconds())
}

func TestPreviewScore(t *testing.T) {
	payload := testPayload(t, 4) // questions 0 and 2 are MCQ, correct option B
	ctrl := newTestController(t, payload, newFakeBackend(), &recordingTracker{})
	startActive(t, ctrl)

	require.NoError(t, ctrl.SelectOption("B")) // correct
	require.NoError(t, ctrl.Navigate(2))
	require.NoError(t, ctrl.SelectOption("A")) // wrong
	require.NoError(t, ctrl.Navigate(1))
	require.NoError(t, ctrl.SetAnswer("written answer"))

	res := ctrl.PreviewScore()
	assert.Equal(t, 4, res.TotalQuestions)
	assert.Equal(t, 3, res.Answered)
	assert.Equal(t, 2, res.MCQTotal)
	assert.Equal(t, 1, res.MCQCorrect)
	assert.Equal(t, 2, res.MarksAvailable)
	assert.Equal(t, 1, res.MarksAwarded)
}
