package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/prepwise-backend/internal/attemptapi"
	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/prepwise/prepwise-backend/internal/model"
)

type syncServer struct {
	mu       sync.Mutex
	requests []model.SyncAnswersRequest
	fail     bool
}

func (s *syncServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var req model.SyncAnswersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"data":null,"error":{"code":"INVALID_PAYLOAD","message":"bad"},"metadata":{}}`)
			return
		}
		if s.fail {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"data":null,"error":{"code":"INTERNAL_ERROR","message":"boom"},"metadata":{}}`)
			return
		}
		s.requests = append(s.requests, req)

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"data": model.SyncAnswersResult{Success: true, SyncedCount: len(req.Answers), AttemptID: 7},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func guestSnapshot(paperID uuid.UUID, questionIDs []uuid.UUID) *localstore.SessionSnapshot {
	// Three of five questions answered over ten minutes.
	return &localstore.SessionSnapshot{
		PaperID:      paperID.String(),
		CurrentIndex: 2,
		TotalSeconds: 600,
		PendingSync:  true,
		Answers: map[string]localstore.AnswerValue{
			questionIDs[0].String(): {AnswerText: "42"},
			questionIDs[1].String(): {SelectedOption: "B"},
			questionIDs[2].String(): {AnswerText: "photosynthesis"},
		},
		QuestionTimes: map[string]int{
			questionIDs[0].String(): 200,
			questionIDs[1].String(): 150,
			questionIDs[2].String(): 230,
		},
		SavedAt: time.Now(),
	}
}

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "store.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReconcileGuestSession(t *testing.T) {
	ctx := context.Background()
	srv := &syncServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	paperID := uuid.New()
	questionIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	store := newTestStore(t)
	require.NoError(t, store.SaveSession(ctx, guestSnapshot(paperID, questionIDs)))
	require.NoError(t, store.SaveGuestAnswer(ctx, questionIDs[0].String(), localstore.AnswerValue{AnswerText: "42"}))

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	r := NewReconciler(client, store, zerolog.Nop())

	synced, err := r.ReconcilePending(ctx, 7, paperID)
	require.NoError(t, err)
	assert.True(t, synced)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	assert.Len(t, req.Answers, 3, "exactly the answered questions, nothing else")
	assert.Equal(t, 600, req.TimeSpentSeconds)
	assert.Equal(t, 580, sumTimes(req.QuestionTimes))

	// Local state is gone: the slot, and the guest capture stores.
	snap, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	active, err := store.HasGuestActivity(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	// A racing second trigger finds nothing to do.
	synced, err = r.ReconcilePending(ctx, 7, paperID)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Len(t, srv.requests, 1, "no duplicate sync")
}

func TestFailedSyncPreservesSnapshot(t *testing.T) {
	ctx := context.Background()
	srv := &syncServer{fail: true}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	paperID := uuid.New()
	questionIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	store := newTestStore(t)
	original := guestSnapshot(paperID, questionIDs)
	require.NoError(t, store.SaveSession(ctx, original))

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	r := NewReconciler(client, store, zerolog.Nop())

	synced, err := r.ReconcilePending(ctx, 7, paperID)
	require.Error(t, err)
	assert.False(t, synced)

	// The snapshot survives untouched, so the next mount retries.
	snap, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.PendingSync)
	assert.Equal(t, original.Answers, snap.Answers)
	assert.Equal(t, original.TotalSeconds, snap.TotalSeconds)
}

func TestReconcileSkipsUnflaggedSnapshot(t *testing.T) {
	ctx := context.Background()
	srv := &syncServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	paperID := uuid.New()
	questionIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	store := newTestStore(t)
	snap := guestSnapshot(paperID, questionIDs)
	snap.PendingSync = false
	require.NoError(t, store.SaveSession(ctx, snap))

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	r := NewReconciler(client, store, zerolog.Nop())

	synced, err := r.ReconcilePending(ctx, 7, paperID)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Empty(t, srv.requests)

	kept, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, kept, "an unflagged snapshot is not consumed")
}

func TestReconcileSkipsOtherPaper(t *testing.T) {
	ctx := context.Background()
	srv := &syncServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	paperID := uuid.New()
	questionIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	store := newTestStore(t)
	require.NoError(t, store.SaveSession(ctx, guestSnapshot(paperID, questionIDs)))

	client := attemptapi.NewClient(ts.URL, zerolog.Nop())
	r := NewReconciler(client, store, zerolog.Nop())

	synced, err := r.ReconcilePending(ctx, 7, uuid.New())
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Empty(t, srv.requests)

	kept, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, paperID.String(), kept.PaperID)
}
