package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/prepwise-backend/internal/attemptapi"
	"github.com/prepwise/prepwise-backend/internal/localstore"
)

// attemptServer records the kind of every request in arrival order so
// tests can assert on sequencing across goroutines.
type attemptServer struct {
	mu    sync.Mutex
	calls []string
}

func (s *attemptServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		switch {
		case r.URL.Path == "/api/v1/attempts":
			s.calls = append(s.calls, "create")
		case strings.HasSuffix(r.URL.Path, "/sync-answers"):
			s.calls = append(s.calls, "sync")
		case strings.HasSuffix(r.URL.Path, "/answers"):
			s.calls = append(s.calls, "answer")
		default:
			s.calls = append(s.calls, r.URL.Path)
		}
		kind := s.calls[len(s.calls)-1]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch kind {
		case "create":
			fmt.Fprint(w, `{"data":{"attempt":{"id":7,"status":"in_progress"}},"error":null,"metadata":{}}`)
		case "sync":
			fmt.Fprint(w, `{"data":{"success":true,"synced_count":1,"attempt_id":7},"error":null,"metadata":{}}`)
		default:
			fmt.Fprint(w, `{"data":{},"error":null,"metadata":{}}`)
		}
	}
}

func (s *attemptServer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *attemptServer) count(kind string) int {
	n := 0
	for _, c := range s.snapshot() {
		if c == kind {
			n++
		}
	}
	return n
}

func TestSavesHeldUntilFlush(t *testing.T) {
	srv := &attemptServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	backend := NewRemoteBackend(client, zerolog.Nop())

	// One edit before the id exists, one after. Neither may reach the
	// server until the buffer is released.
	require.NoError(t, backend.SaveAnswer(context.Background(), uuid.New(), localstore.AnswerValue{AnswerText: "early"}))

	id, err := backend.CreateAttempt(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	require.NoError(t, backend.SaveAnswer(context.Background(), uuid.New(), localstore.AnswerValue{SelectedOption: "B"}))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, srv.count("answer"), "held saves must not fire before Flush")

	backend.Flush()
	require.Eventually(t, func() bool { return srv.count("answer") == 2 },
		2*time.Second, 10*time.Millisecond)

	// Saves after the release go straight out.
	require.NoError(t, backend.SaveAnswer(context.Background(), uuid.New(), localstore.AnswerValue{AnswerText: "late"}))
	require.Eventually(t, func() bool { return srv.count("answer") == 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestFlushBeforeIDIsANoop(t *testing.T) {
	srv := &attemptServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	backend := NewRemoteBackend(client, zerolog.Nop())

	require.NoError(t, backend.SaveAnswer(context.Background(), uuid.New(), localstore.AnswerValue{AnswerText: "x"}))
	backend.Flush()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, srv.snapshot(), "nothing can fire without an attempt id")
}

// A fresh edit made while a guest snapshot is being reconciled must not
// be overwritten by the older snapshot value: the bulk sync has to land
// before any held answer save.
func TestReconcileLandsBeforeHeldSaves(t *testing.T) {
	ctx := context.Background()
	srv := &attemptServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	paperID := uuid.New()
	questionIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	store := newTestStore(t)
	require.NoError(t, store.SaveSession(ctx, guestSnapshot(paperID, questionIDs)))

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	backend := NewRemoteBackend(client, zerolog.Nop())

	// The fresh edit arrives while the mount goroutine is still working.
	require.NoError(t, backend.SaveAnswer(ctx, questionIDs[0], localstore.AnswerValue{AnswerText: "newer"}))

	attemptID, err := backend.CreateAttempt(ctx, paperID)
	require.NoError(t, err)

	r := NewReconciler(client, store, zerolog.Nop())
	synced, err := r.ReconcilePending(ctx, attemptID, paperID)
	require.NoError(t, err)
	require.True(t, synced)

	backend.Flush()
	require.Eventually(t, func() bool { return srv.count("answer") == 1 },
		2*time.Second, 10*time.Millisecond)

	calls := srv.snapshot()
	require.Equal(t, "create", calls[0])
	syncAt, answerAt := -1, -1
	for i, c := range calls {
		switch c {
		case "sync":
			syncAt = i
		case "answer":
			answerAt = i
		}
	}
	require.NotEqual(t, -1, syncAt)
	require.NotEqual(t, -1, answerAt)
	assert.Less(t, syncAt, answerAt, "bulk sync must precede the held save")
}
