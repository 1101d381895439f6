package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/rs/zerolog"
)

// State enumerates the controller lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StatePaused       State = "paused"
	StateSubmitting   State = "submitting"
	StateDone         State = "done"
	StateError        State = "error"
)

var (
	// ErrNotActive rejects mutations outside the Active state.
	ErrNotActive = errors.New("session is not active")
	// ErrBadIndex rejects navigation outside the question range.
	ErrBadIndex = errors.New("question index out of range")
	// ErrNotSubmittable rejects submit outside Active/Paused/Error.
	ErrNotSubmittable = errors.New("session cannot be submitted in this state")
)

// Config assembles a Controller. Backend and Tracker are selected by
// authentication state before construction; the controller itself is
// backend-agnostic.
type Config struct {
	Payload  *model.PaperPayload
	Backend  Backend
	Tracker  Tracker
	Clock    Clock                       // nil means the system clock
	Snapshot *localstore.SessionSnapshot // resume source, may be nil
	Log      zerolog.Logger

	// FlushEveryTicks is how many one-second ticks pass between
	// update_time flushes and periodic snapshot writes. Zero means 10.
	FlushEveryTicks int
}

// Controller owns all in-memory state of one attempt session: the
// current question index, the answer map, the running and per-question
// timers, and pause state. Every transition runs under one mutex, so
// fold/track/reset/navigate is atomic with respect to timer ticks.
type Controller struct {
	mu sync.Mutex

	state          State
	payload        *model.PaperPayload
	index          int
	answers        map[string]localstore.AnswerValue
	questionTimes  map[string]int
	totalSeconds   int
	currentSeconds int
	ticksToFlush   int
	pendingSync    bool
	startPaused    bool
	viewOwed       bool
	submitErr      error

	backend    Backend
	tracker    Tracker
	clock      Clock
	flushEvery int
	log        zerolog.Logger
	cancel     context.CancelFunc
}

// New validates the paper payload and builds a controller in the
// Initializing state, hydrated from the snapshot when one exists for
// this paper. A payload without questions is fatal: the session must
// not start half-initialized.
func New(cfg Config) (*Controller, error) {
	if cfg.Payload == nil || len(cfg.Payload.Questions) == 0 {
		return nil, fmt.Errorf("paper payload has no questions")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NopTracker{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.FlushEveryTicks <= 0 {
		cfg.FlushEveryTicks = 10
	}

	c := &Controller{
		state:         StateInitializing,
		payload:       cfg.Payload,
		answers:       make(map[string]localstore.AnswerValue),
		questionTimes: make(map[string]int),
		backend:       cfg.Backend,
		tracker:       cfg.Tracker,
		clock:         cfg.Clock,
		flushEvery:    cfg.FlushEveryTicks,
		log:           cfg.Log.With().Str("component", "session").Logger(),
	}

	if snap := cfg.Snapshot; snap != nil && snap.PaperID == cfg.Payload.Paper.ID.String() {
		c.index = snap.CurrentIndex
		if c.index < 0 || c.index >= len(cfg.Payload.Questions) {
			c.index = 0
		}
		c.totalSeconds = snap.TotalSeconds
		c.startPaused = snap.IsPaused
		c.pendingSync = snap.PendingSync
		for id, v := range snap.Answers {
			c.answers[id] = v
		}
		for id, t := range snap.QuestionTimes {
			c.questionTimes[id] = t
		}
		c.log.Info().Str("paper_id", snap.PaperID).Int("total_seconds", snap.TotalSeconds).Msg("Session hydrated from snapshot")
	}

	return c, nil
}

// Start transitions out of Initializing and begins the one-second
// clock, which stops when ctx is cancelled or Close is called.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	if c.state == StateInitializing {
		if c.startPaused {
			c.state = StatePaused
		} else {
			c.state = StateActive
		}
	}
	// A session resuming into Paused is frozen; the initial view event
	// waits for Resume so nothing is recorded while frozen.
	if c.state == StateActive {
		q := c.currentLocked()
		c.tracker.ViewQuestion(q.ID, c.index, nil, 0)
	} else {
		c.viewOwed = true
	}
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick advances the clocks by one second. Exported so tests can drive
// time deterministically instead of waiting on the real ticker.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.totalSeconds++
	c.currentSeconds++
	c.ticksToFlush++

	flush := c.ticksToFlush >= c.flushEvery
	var snap *localstore.SessionSnapshot
	total := c.totalSeconds
	if flush {
		c.ticksToFlush = 0
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if flush {
		c.tracker.UpdateTime(total)
		c.persist(snap)
	}
}

// SetAnswer overwrites the current question's free-text answer.
func (c *Controller) SetAnswer(text string) error {
	return c.mutateAnswer(func(v *localstore.AnswerValue) { v.AnswerText = text })
}

// SelectOption overwrites the current question's selected MCQ option.
func (c *Controller) SelectOption(option string) error {
	return c.mutateAnswer(func(v *localstore.AnswerValue) { v.SelectedOption = option })
}

func (c *Controller) mutateAnswer(mutate func(*localstore.AnswerValue)) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	q := c.currentLocked()
	key := q.ID.String()
	v := c.answers[key]
	mutate(&v)
	c.answers[key] = v
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.backend.SaveAnswer(context.Background(), q.ID, v); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	c.persist(snap)
	return nil
}

// Navigate switches to another question. The order is the controller's
// primary correctness invariant: fold the leaving question's time,
// emit the tracking event tagged with that question, reset the
// per-question clock, then move the index. All under one lock, so no
// tick can observe reset-but-unfolded time.
func (c *Controller) Navigate(to int) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	if to < 0 || to >= len(c.payload.Questions) {
		c.mu.Unlock()
		return ErrBadIndex
	}
	if to == c.index {
		c.mu.Unlock()
		return nil
	}

	prev := c.currentLocked()
	folded := c.currentSeconds
	if folded > 0 {
		c.questionTimes[prev.ID.String()] += folded
	}

	next := c.payload.Questions[to]
	prevID := prev.ID
	c.tracker.ViewQuestion(next.ID, to, &prevID, folded)

	c.currentSeconds = 0
	c.index = to

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(snap)
	return nil
}

// Pause folds the current question's time exactly as navigation does,
// then freezes the clocks.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	q := c.currentLocked()
	if c.currentSeconds > 0 {
		c.questionTimes[q.ID.String()] += c.currentSeconds
		c.currentSeconds = 0
	}
	c.state = StatePaused
	c.tracker.Pause()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(snap)
	return nil
}

// Resume restarts the clocks without folding: nothing accumulated
// while paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("session is not paused")
	}
	c.state = StateActive
	c.tracker.Resume()
	if c.viewOwed {
		c.viewOwed = false
		q := c.currentLocked()
		c.tracker.ViewQuestion(q.ID, c.index, nil, 0)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(snap)
	return nil
}

// ViewPDF reports a PDF page view against the current question.
func (c *Controller) ViewPDF(pageNumber int) {
	c.mu.Lock()
	q := c.currentLocked()
	id := q.ID
	c.mu.Unlock()
	c.tracker.ViewPDF(pageNumber, &id)
}

// MarkPendingSync flags the guest session for reconciliation after an
// observed registration or login, and persists the flag immediately so
// a reload before the sync still owes one.
func (c *Controller) MarkPendingSync() error {
	c.mu.Lock()
	c.pendingSync = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return c.backend.SaveSnapshot(context.Background(), snap)
}

// Submit performs the final fold, flushes the authoritative total time,
// and finalizes through the backend. An unanswered remainder is fine:
// absent questions stay absent, not empty. On failure the session
// enters Error and stays re-submittable.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive && c.state != StatePaused && c.state != StateError {
		c.mu.Unlock()
		return ErrNotSubmittable
	}
	q := c.currentLocked()
	if c.currentSeconds > 0 {
		c.questionTimes[q.ID.String()] += c.currentSeconds
		c.currentSeconds = 0
	}
	total := c.totalSeconds
	c.state = StateSubmitting
	c.tracker.UpdateTime(total)
	c.mu.Unlock()

	if err := c.backend.Submit(ctx, total); err != nil {
		c.mu.Lock()
		c.state = StateError
		c.submitErr = err
		c.mu.Unlock()
		return fmt.Errorf("submit: %w", err)
	}

	c.mu.Lock()
	c.state = StateDone
	c.submitErr = nil
	c.mu.Unlock()
	return nil
}

// PreviewResult is the client-side score for a guest submit: only
// multiple-choice questions can be scored without a server attempt.
type PreviewResult struct {
	TotalQuestions int `json:"total_questions"`
	Answered       int `json:"answered"`
	MCQTotal       int `json:"mcq_total"`
	MCQCorrect     int `json:"mcq_correct"`
	MarksAvailable int `json:"marks_available"`
	MarksAwarded   int `json:"marks_awarded"`
}

// PreviewScore computes the guest preview from the answer map and the
// correct options carried in the paper payload.
func (c *Controller) PreviewScore() PreviewResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := PreviewResult{TotalQuestions: len(c.payload.Questions)}
	for _, q := range c.payload.Questions {
		v, answered := c.answers[q.ID.String()]
		if answered && (v.AnswerText != "" || v.SelectedOption != "") {
			res.Answered++
		}
		if q.Type != model.QuestionTypeMCQ {
			continue
		}
		res.MCQTotal++
		res.MarksAvailable += q.Marks
		if answered && v.SelectedOption != "" && v.SelectedOption == q.CorrectAnswer {
			res.MCQCorrect++
			res.MarksAwarded += q.Marks
		}
	}
	return res
}

// Close stops the clock goroutine. The session's in-memory state may
// be discarded afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubmitError returns the error of the last failed submit, if any.
func (c *Controller) SubmitError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitErr
}

// CurrentIndex returns the current question index.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// CurrentQuestion returns the question at the current index.
func (c *Controller) CurrentQuestion() model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.currentLocked()
}

// TotalSeconds returns the authoritative total time. When elapsed real
// time and per-question folds diverge, this value wins: the breakdown
// is diagnostic, not authoritative.
func (c *Controller) TotalSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSeconds
}

// CurrentQuestionSeconds returns the not-yet-folded time on the
// current question.
func (c *Controller) CurrentQuestionSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSeconds
}

// QuestionTimes returns a copy of the folded per-question times.
func (c *Controller) QuestionTimes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.questionTimes))
	for id, t := range c.questionTimes {
		out[id] = t
	}
	return out
}

// Answers returns a copy of the answer map.
func (c *Controller) Answers() map[string]localstore.AnswerValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]localstore.AnswerValue, len(c.answers))
	for id, v := range c.answers {
		out[id] = v
	}
	return out
}

func (c *Controller) currentLocked() *model.Question {
	return &c.payload.Questions[c.index]
}

func (c *Controller) snapshotLocked() *localstore.SessionSnapshot {
	snap := &localstore.SessionSnapshot{
		PaperID:       c.payload.Paper.ID.String(),
		CurrentIndex:  c.index,
		TotalSeconds:  c.totalSeconds,
		IsPaused:      c.state == StatePaused,
		PendingSync:   c.pendingSync,
		Answers:       make(map[string]localstore.AnswerValue, len(c.answers)),
		QuestionTimes: make(map[string]int, len(c.questionTimes)),
		SavedAt:       c.clock.Now(),
	}
	for id, v := range c.answers {
		snap.Answers[id] = v
	}
	for id, t := range c.questionTimes {
		snap.QuestionTimes[id] = t
	}
	return snap
}

func (c *Controller) persist(snap *localstore.SessionSnapshot) {
	if err := c.backend.SaveSnapshot(context.Background(), snap); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot write failed")
	}
}
