package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/store"
)

// fakeRemote backs the translation store in these tests.
type fakeRemote struct {
	mu          sync.Mutex
	records     []model.TranslationRecord
	updateErr   error
	updateCalls map[string]int
	block       chan struct{}
}

func (f *fakeRemote) ListTranslations(_ context.Context, _, _ string, stateFilter model.TranslationState) ([]model.TranslationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TranslationRecord
	for _, rec := range f.records {
		if stateFilter == "" || rec.State == stateFilter {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRemote) UpdateTranslation(_ context.Context, _, _, key, translation string, state model.TranslationState) error {
	f.mu.Lock()
	if f.updateCalls == nil {
		f.updateCalls = make(map[string]int)
	}
	f.updateCalls[key]++
	block := f.block
	err := f.updateErr
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].Key == key {
			f.records[i].Translation = translation
			f.records[i].State = state
		}
	}
	return nil
}

func (f *fakeRemote) calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls[key]
}

func (f *fakeRemote) StartTranslation(context.Context, string, []string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeRemote) StartVerification(context.Context, string, string, int, bool) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeRemote) StreamURL(model.JobKind, string) string { return "" }

func (f *fakeRemote) TranslateSingle(context.Context, string, string, string, string) (*model.SingleTranslation, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) ReviewSingle(context.Context, string, string, string, string, string) (*model.SingleReview, error) {
	return nil, errors.New("not implemented")
}

// fakeRunStorage records issue deletions.
type fakeRunStorage struct {
	mu        sync.Mutex
	deleted   []string
	deleteErr error
}

func (f *fakeRunStorage) SaveRun(context.Context, *model.VerificationRun) error { return nil }

func (f *fakeRunStorage) LatestRun(context.Context, string, string) (*model.VerificationRun, error) {
	return nil, common.ErrNoRun
}

func (f *fakeRunStorage) DeleteIssue(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeRunStorage) DeleteRun(context.Context, string) error { return nil }

func (f *fakeRunStorage) Close() error { return nil }

func testIssue(key string) model.VerificationIssue {
	return model.VerificationIssue{
		Key:          key,
		Source:       "src-" + key,
		Translation:  key + "-old",
		Issues:       []string{"too literal"},
		SuggestedFix: key + "-fixed",
	}
}

func testRun(keys ...string) *model.VerificationRun {
	run := &model.VerificationRun{ID: "run-1", FileID: "app.json", Language: "es"}
	for _, key := range keys {
		run.Issues = append(run.Issues, testIssue(key))
	}
	return run
}

func newResolverUnderTest(t *testing.T, remote *fakeRemote, runs *fakeRunStorage) (*Resolver, *store.Store) {
	t.Helper()
	st, err := store.New(remote, "app.json", "es")
	require.NoError(t, err)
	require.NoError(t, st.Fetch(context.Background(), ""))
	return New(st, runs), st
}

func recordsFor(keys ...string) []model.TranslationRecord {
	var out []model.TranslationRecord
	for _, key := range keys {
		out = append(out, model.TranslationRecord{
			Key:         key,
			Source:      "src-" + key,
			Translation: key + "-old",
			State:       model.StateNeedsReview,
		})
	}
	return out
}

func TestApplyWritesSuggestedFix(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a", "b")}
	runs := &fakeRunStorage{}
	resolver, st := newResolverUnderTest(t, remote, runs)
	run := testRun("a", "b")

	require.NoError(t, resolver.Apply(context.Background(), run, run.Issues[0]))

	rec, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a-fixed", rec.Translation)
	assert.Equal(t, model.StateReviewed, rec.State)

	// Resolved issue leaves the run and the persisted store.
	require.Len(t, run.Issues, 1)
	assert.Equal(t, "b", run.Issues[0].Key)
	assert.Equal(t, []string{"a"}, runs.deleted)
}

func TestApplyRequiresSuggestedFix(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a")}
	resolver, _ := newResolverUnderTest(t, remote, &fakeRunStorage{})
	run := testRun("a")
	run.Issues[0].SuggestedFix = ""

	err := resolver.Apply(context.Background(), run, run.Issues[0])
	require.Error(t, err)

	var validationErr *common.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, 0, remote.calls("a"))
	assert.Len(t, run.Issues, 1)
}

func TestDismissKeepsTranslation(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a")}
	resolver, st := newResolverUnderTest(t, remote, &fakeRunStorage{})
	run := testRun("a")

	require.NoError(t, resolver.Dismiss(context.Background(), run, run.Issues[0]))

	rec, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a-old", rec.Translation)
	assert.Equal(t, model.StateReviewed, rec.State)
	assert.Empty(t, run.Issues)
}

func TestFlagKeepsTranslation(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a")}
	resolver, st := newResolverUnderTest(t, remote, &fakeRunStorage{})
	run := testRun("a")

	require.NoError(t, resolver.Flag(context.Background(), run, run.Issues[0]))

	rec, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a-old", rec.Translation)
	assert.Equal(t, model.StateFlagged, rec.State)
}

func TestFailureKeepsIssueAndReleasesClaim(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a")}
	remote.updateErr = common.NewRequestError(500, "boom")
	runs := &fakeRunStorage{}
	resolver, st := newResolverUnderTest(t, remote, runs)
	run := testRun("a")

	err := resolver.Dismiss(context.Background(), run, run.Issues[0])
	require.Error(t, err)

	// Issue survives, store is rolled back, and the key can be retried.
	assert.Len(t, run.Issues, 1)
	assert.Empty(t, runs.deleted)
	rec, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, model.StateNeedsReview, rec.State)
	assert.False(t, resolver.InFlight("a"))

	remote.mu.Lock()
	remote.updateErr = nil
	remote.mu.Unlock()
	require.NoError(t, resolver.Dismiss(context.Background(), run, run.Issues[0]))
	assert.Empty(t, run.Issues)
}

func TestConcurrentResolutionsOfSameKeyCollapse(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a"), block: make(chan struct{})}
	resolver, _ := newResolverUnderTest(t, remote, &fakeRunStorage{})
	run := testRun("a")

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- resolver.Dismiss(context.Background(), run, run.Issues[0])
	}()

	// Wait until the first resolution holds the claim mid-call.
	require.Eventually(t, func() bool {
		return resolver.InFlight("a")
	}, time.Second, time.Millisecond)

	err := resolver.Dismiss(context.Background(), run, testIssue("a"))
	require.Error(t, err)
	assert.True(t, common.IsInFlight(err))

	close(remote.block)
	require.NoError(t, <-firstDone)

	// Exactly one network call went out for the key.
	assert.Equal(t, 1, remote.calls("a"))
	assert.False(t, resolver.InFlight("a"))
}

func TestResolveAllAppliesEveryIssue(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a", "b", "c", "d", "e")}
	runs := &fakeRunStorage{}
	resolver, st := newResolverUnderTest(t, remote, runs)
	run := testRun("a", "b", "c", "d", "e")

	require.NoError(t, resolver.ResolveAll(context.Background(), ActionApply, run))

	assert.Empty(t, run.Issues)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		rec, ok := st.Get(key)
		require.True(t, ok)
		assert.Equal(t, key+"-fixed", rec.Translation)
		assert.Equal(t, model.StateReviewed, rec.State)
		assert.Equal(t, 1, remote.calls(key))
	}
	assert.Len(t, runs.deleted, 5)
}

func TestResolveAllSurfacesFirstFailure(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a", "b")}
	remote.updateErr = common.NewRequestError(500, "boom")
	resolver, _ := newResolverUnderTest(t, remote, &fakeRunStorage{})
	run := testRun("a", "b")

	err := resolver.ResolveAll(context.Background(), ActionDismiss, run)
	require.Error(t, err)
	assert.Len(t, run.Issues, 2)
}

func TestDoRejectsUnknownAction(t *testing.T) {
	remote := &fakeRemote{records: recordsFor("a")}
	resolver, _ := newResolverUnderTest(t, remote, &fakeRunStorage{})
	run := testRun("a")

	err := resolver.Do(context.Background(), Action("merge"), run, run.Issues[0])
	require.Error(t, err)
}
