package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/service"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func sampleRun(id string, createdAt time.Time) *model.VerificationRun {
	return &model.VerificationRun{
		ID:        id,
		FileID:    "app.json",
		Language:  "es",
		CreatedAt: createdAt,
		Stats:     model.RunStats{Passed: 4, Attention: 2, AutoReviewed: 1},
		Issues: []model.VerificationIssue{
			{
				Key:          "greeting",
				Source:       "Hello",
				Translation:  "Holla",
				Issues:       []string{"spelling"},
				SuggestedFix: "Hola",
			},
			{
				Key:         "farewell",
				Source:      "Goodbye",
				Translation: "Adiós amigo",
				Issues:      []string{"too informal", "register mismatch"},
			},
		},
		HasMore:          true,
		NextOffset:       10,
		TotalUnreviewed:  25,
		SkippedUnchanged: 3,
		IncludeReviewed:  true,
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	createdAt := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)
	run := sampleRun("run-1", createdAt)
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.LatestRun(ctx, "app.json", "es")
	require.NoError(t, err)

	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, run.FileID, loaded.FileID)
	assert.Equal(t, run.Language, loaded.Language)
	assert.True(t, createdAt.Equal(loaded.CreatedAt))
	assert.Equal(t, run.Stats, loaded.Stats)
	assert.Equal(t, run.Issues, loaded.Issues)
	assert.True(t, loaded.HasMore)
	assert.Equal(t, 10, loaded.NextOffset)
	assert.Equal(t, 25, loaded.TotalUnreviewed)
	assert.Equal(t, 3, loaded.SkippedUnchanged)
	assert.True(t, loaded.IncludeReviewed)
}

func TestLatestRunPicksMostRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := sampleRun("run-old", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	newer := sampleRun("run-new", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveRun(ctx, older))
	require.NoError(t, store.SaveRun(ctx, newer))

	loaded, err := store.LatestRun(ctx, "app.json", "es")
	require.NoError(t, err)
	assert.Equal(t, "run-new", loaded.ID)
}

func TestLatestRunScopedByFileAndLanguage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-es", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))

	_, err := store.LatestRun(ctx, "app.json", "de")
	assert.True(t, errors.Is(err, common.ErrNoRun))

	_, err = store.LatestRun(ctx, "other.json", "es")
	assert.True(t, errors.Is(err, common.ErrNoRun))
}

func TestSaveRunIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))

	run.Stats.Passed = 9
	run.HasMore = false
	run.Issues = run.Issues[:1]
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.LatestRun(ctx, "app.json", "es")
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Stats.Passed)
	assert.False(t, loaded.HasMore)
	require.Len(t, loaded.Issues, 1)
	assert.Equal(t, "greeting", loaded.Issues[0].Key)
}

func TestContinuationSaveKeepsEarlierIssues(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveRun(ctx, run))

	// A resumed run saves under the same id with the next batch's issues
	// appended; the earlier ones must still come back from LatestRun.
	run.Issues = append(run.Issues, model.VerificationIssue{
		Key:         "menu.save",
		Source:      "Save",
		Translation: "Salvar",
		Issues:      []string{"wrong register"},
	})
	run.HasMore = false
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.LatestRun(ctx, "app.json", "es")
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.ID)
	require.Len(t, loaded.Issues, 3)
	assert.Equal(t, "greeting", loaded.Issues[0].Key)
	assert.Equal(t, "farewell", loaded.Issues[1].Key)
	assert.Equal(t, "menu.save", loaded.Issues[2].Key)
}

func TestDeleteIssue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))

	require.NoError(t, store.DeleteIssue(ctx, "run-1", "greeting"))

	loaded, err := store.LatestRun(ctx, "app.json", "es")
	require.NoError(t, err)
	require.Len(t, loaded.Issues, 1)
	assert.Equal(t, "farewell", loaded.Issues[0].Key)

	// Deleting an absent issue is not an error.
	require.NoError(t, store.DeleteIssue(ctx, "run-1", "greeting"))
}

func TestDeleteRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))
	require.NoError(t, store.DeleteRun(ctx, "run-1"))

	_, err := store.LatestRun(ctx, "app.json", "es")
	assert.True(t, errors.Is(err, common.ErrNoRun))
}

func TestIssuesPreserveArrivalOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := &model.VerificationRun{
		ID:        "run-1",
		FileID:    "app.json",
		Language:  "es",
		CreatedAt: time.Now().UTC(),
	}
	for _, key := range []string{"z", "m", "a", "q"} {
		run.Issues = append(run.Issues, model.VerificationIssue{
			Key:         key,
			Source:      "s",
			Translation: "t",
			Issues:      []string{"note"},
		})
	}
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.LatestRun(ctx, "app.json", "es")
	require.NoError(t, err)
	keys := make([]string, len(loaded.Issues))
	for i, issue := range loaded.Issues {
		keys[i] = issue.Key
	}
	assert.Equal(t, []string{"z", "m", "a", "q"}, keys)
}

func TestSaveRunRequiresID(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveRun(context.Background(), &model.VerificationRun{})
	require.Error(t, err)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

// Compile-time check that RunStore satisfies the storage contract.
var _ service.RunStorage = (*RunStore)(nil)
