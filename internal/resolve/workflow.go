// Package resolve applies, dismisses, or flags verification issues against
// the translation store, with per-key in-flight tracking to prevent
// duplicate concurrent operations.
package resolve

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/service"
	"github.com/stringvet/stringvet/internal/store"
)

// Action names one of the three mutating resolutions.
type Action string

// Resolution actions.
const (
	// ActionApply writes the suggested fix and marks the record reviewed.
	ActionApply Action = "apply"
	// ActionDismiss rewrites the translation unchanged and marks it
	// reviewed, clearing the flag without touching content.
	ActionDismiss Action = "dismiss"
	// ActionFlag rewrites the translation unchanged and marks it flagged.
	ActionFlag Action = "flag"
)

// bulkWorkers bounds concurrent resolutions in the bulk path.
const bulkWorkers = 4

// Resolver consumes issues surfaced by a verification run, resolving them
// one by one against the store and the persisted run.
type Resolver struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	store    *store.Store
	runs     service.RunStorage
}

// New creates a resolver over the given store and run storage.
func New(st *store.Store, runs service.RunStorage) *Resolver {
	return &Resolver{
		inflight: make(map[string]struct{}),
		store:    st,
		runs:     runs,
	}
}

// Apply writes the issue's suggested fix as the new translation and marks
// the record reviewed.
func (r *Resolver) Apply(ctx context.Context, run *model.VerificationRun, issue model.VerificationIssue) error {
	if issue.SuggestedFix == "" {
		return common.NewValidationError("suggested fix", "issue has no suggested fix to apply")
	}
	return r.resolve(ctx, run, issue, issue.SuggestedFix, model.StateReviewed)
}

// Dismiss rewrites the existing translation unchanged and marks the record
// reviewed; a content-neutral write used purely to clear the flag.
func (r *Resolver) Dismiss(ctx context.Context, run *model.VerificationRun, issue model.VerificationIssue) error {
	return r.resolve(ctx, run, issue, issue.Translation, model.StateReviewed)
}

// Flag rewrites the existing translation unchanged and marks the record
// flagged for later attention.
func (r *Resolver) Flag(ctx context.Context, run *model.VerificationRun, issue model.VerificationIssue) error {
	return r.resolve(ctx, run, issue, issue.Translation, model.StateFlagged)
}

// Do dispatches one action by name.
func (r *Resolver) Do(ctx context.Context, action Action, run *model.VerificationRun, issue model.VerificationIssue) error {
	switch action {
	case ActionApply:
		return r.Apply(ctx, run, issue)
	case ActionDismiss:
		return r.Dismiss(ctx, run, issue)
	case ActionFlag:
		return r.Flag(ctx, run, issue)
	}
	return common.NewValidationError("action", "unknown resolution action")
}

// ResolveAll runs one action over every issue of a run with bounded
// concurrency. The per-key in-flight guard still applies; the first error
// is returned after the remaining workers drain.
func (r *Resolver) ResolveAll(ctx context.Context, action Action, run *model.VerificationRun) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkWorkers)

	for _, issue := range run.Issues {
		issue := issue
		g.Go(func() error {
			err := r.Do(gctx, action, run, issue)
			if err != nil && !common.IsInFlight(err) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// resolve performs one guarded resolution: claim the key, write through the
// store (optimistic save + remote update), and on success drop the issue
// from the persisted run and refresh the store's filtered view. The claim
// is always released so the action stays retryable.
func (r *Resolver) resolve(ctx context.Context, run *model.VerificationRun, issue model.VerificationIssue, text string, state model.TranslationState) error {
	if err := r.claim(issue.Key); err != nil {
		return err
	}
	defer r.release(issue.Key)

	if err := r.store.Save(ctx, issue.Key, text, state); err != nil {
		slog.Warn("Issue resolution failed",
			"key", issue.Key,
			"state", state,
			"error", err)
		return err
	}

	if err := r.runs.DeleteIssue(ctx, run.ID, issue.Key); err != nil {
		slog.Warn("Failed to drop resolved issue from run", "key", issue.Key, "error", err)
	}
	r.removeIssue(run, issue.Key)

	if err := r.store.Refresh(ctx); err != nil {
		slog.Warn("Failed to refresh translations after resolution", "key", issue.Key, "error", err)
	}

	return nil
}

// claim reserves a key for one in-flight call. At most one network call per
// key may be in flight at any time.
func (r *Resolver) claim(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[key]; busy {
		return common.ErrInFlight
	}
	r.inflight[key] = struct{}{}
	return nil
}

func (r *Resolver) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, key)
}

// InFlight reports whether a resolution for the key is currently running;
// calling surfaces disable the corresponding control.
func (r *Resolver) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inflight[key]
	return busy
}

// removeIssue drops one issue from the in-memory run by key, preserving the
// order of the rest. The resolver's lock also serializes bulk-path mutation
// of the shared run.
func (r *Resolver) removeIssue(run *model.VerificationRun, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range run.Issues {
		if run.Issues[i].Key == key {
			run.Issues = append(run.Issues[:i], run.Issues[i+1:]...)
			return
		}
	}
}
