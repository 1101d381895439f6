package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshot(paperID string) *SessionSnapshot {
	return &SessionSnapshot{
		PaperID:      paperID,
		CurrentIndex: 1,
		TotalSeconds: 90,
		Answers: map[string]AnswerValue{
			"q-1": {AnswerText: "42"},
			"q-2": {SelectedOption: "B"},
		},
		QuestionTimes: map[string]int{"q-1": 60, "q-2": 30},
		SavedAt:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestSessionSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "s.db"))

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "empty store has no session")

	snap := sampleSnapshot("paper-a")
	require.NoError(t, store.SaveSession(ctx, snap))

	loaded, err = store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Answers, loaded.Answers)
	assert.Equal(t, snap.QuestionTimes, loaded.QuestionTimes)
	assert.Equal(t, 90, loaded.TotalSeconds)
}

func TestSecondPaperReplacesFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "s.db"))

	require.NoError(t, store.SaveSession(ctx, sampleSnapshot("paper-a")))

	second := sampleSnapshot("paper-b")
	second.TotalSeconds = 5
	require.NoError(t, store.SaveSession(ctx, second))

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "paper-b", loaded.PaperID, "single slot: last paper wins")
	assert.Equal(t, 5, loaded.TotalSeconds)
}

func TestTakeSessionIsOneShot(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, store.SaveSession(ctx, sampleSnapshot("paper-a")))

	taken, err := store.TakeSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, taken)
	assert.Equal(t, "paper-a", taken.PaperID)

	again, err := store.TakeSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "the slot is consumed with the read")
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "s.db"))

	require.NoError(t, store.ClearSession(ctx), "clearing an empty slot is fine")
	require.NoError(t, store.SaveSession(ctx, sampleSnapshot("paper-a")))
	require.NoError(t, store.ClearSession(ctx))

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "s.db")

	store := openTestStore(t, path)
	require.NoError(t, store.SaveSession(ctx, sampleSnapshot("paper-a")))
	require.NoError(t, store.SaveGuestAnswer(ctx, "q-9", AnswerValue{AnswerText: "later"}))
	require.NoError(t, store.Close())

	reopened := openTestStore(t, path)
	loaded, err := reopened.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded, "a closed tab resumes mid-paper")
	assert.Equal(t, "paper-a", loaded.PaperID)

	active, err := reopened.HasGuestActivity(ctx)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestGuestStores(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "s.db"))

	active, err := store.HasGuestActivity(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, store.SaveGuestAnswer(ctx, "q-1", AnswerValue{SelectedOption: "A"}))
	require.NoError(t, store.SaveGuestAnswer(ctx, "q-1", AnswerValue{SelectedOption: "C"})) // overwrite
	require.NoError(t, store.SaveGuestBookmark(ctx, "paper-55"))
	require.NoError(t, store.SaveGuestBookmark(ctx, "paper-55")) // idempotent

	active, err = store.HasGuestActivity(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, store.ClearGuestData(ctx))
	active, err = store.HasGuestActivity(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}
