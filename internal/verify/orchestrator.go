// Package verify drives repeated paginated verification batches over one
// streaming channel, accumulating issues and running statistics across a run.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/service"
	"github.com/stringvet/stringvet/internal/stream"
)

// Phase is the orchestrator's position in its state machine.
type Phase int

// Orchestrator phases.
const (
	// PhaseStart: idle, no batch in flight.
	PhaseStart Phase = iota
	// PhaseProcessing: exactly one batch in flight.
	PhaseProcessing
	// PhaseResults: terminal display; Continue or StartReview can re-enter
	// PhaseProcessing.
	PhaseResults
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseProcessing:
		return "processing"
	case PhaseResults:
		return "results"
	}
	return "unknown"
}

// Config holds the per-run options passed to every batch request.
type Config struct {
	IncludeReviewed bool
	AutoContinue    bool
}

// Snapshot is a consistent view of the orchestrator's accumulated state.
type Snapshot struct {
	Phase            Phase
	RunID            string
	Issues           []model.VerificationIssue
	Stats            model.RunStats
	TotalReviewed    int
	TotalUnreviewed  int
	SkippedUnchanged int
	HasMore          bool
	NextOffset       int
	Batches          int
}

// Orchestrator implements the start -> processing -> results state machine.
// Accumulators are mutated exclusively inside the completion handler of the
// active batch, which runs on the channel's single reader goroutine, so a
// continuation request is always issued before any other handler runs.
type Orchestrator struct {
	mu      sync.Mutex
	client  service.RemoteService
	channel *stream.Channel[model.BatchVerificationResult]
	cfg     Config

	fileID   string
	language string

	phase            Phase
	runID            string
	startedAt        time.Time
	issues           []model.VerificationIssue
	stats            model.RunStats
	totalReviewed    int
	totalUnreviewed  int
	skippedUnchanged int
	offset           int
	nextOffset       int
	hasMore          bool
	batches          int
	runErr           error
	done             chan struct{}
}

// New creates an orchestrator for one (file, language) pair.
func New(client service.RemoteService, channel *stream.Channel[model.BatchVerificationResult], fileID, language string, cfg Config) (*Orchestrator, error) {
	if fileID == "" {
		return nil, common.NewValidationError("file id", "must not be empty")
	}
	if language == "" {
		return nil, common.NewValidationError("language", "must not be empty")
	}
	return &Orchestrator{
		client:   client,
		channel:  channel,
		cfg:      cfg,
		fileID:   fileID,
		language: language,
		phase:    PhaseStart,
	}, nil
}

// StartReview resets all accumulators, mints a new run id, and requests the
// first batch at the given offset, transitioning to PhaseProcessing. To pick
// up a persisted run use Resume instead.
func (o *Orchestrator) StartReview(ctx context.Context, offset int) error {
	if offset < 0 {
		return common.NewValidationError("offset", "must not be negative")
	}

	o.mu.Lock()
	if o.phase == PhaseProcessing {
		o.mu.Unlock()
		return common.NewValidationError("review", "a batch is already in flight")
	}
	o.phase = PhaseProcessing
	o.runID = uuid.NewString()
	o.startedAt = time.Now().UTC()
	o.issues = nil
	o.stats = model.RunStats{}
	o.totalReviewed = 0
	o.totalUnreviewed = 0
	o.skippedUnchanged = 0
	o.offset = offset
	o.nextOffset = offset
	o.hasMore = false
	o.batches = 0
	o.runErr = nil
	o.done = make(chan struct{})
	runID := o.runID
	o.mu.Unlock()

	slog.Info("Starting verification run",
		"run_id", runID,
		"language", o.language,
		"offset", offset,
		"include_reviewed", o.cfg.IncludeReviewed,
		"auto_continue", o.cfg.AutoContinue)

	if err := o.requestBatch(ctx, offset); err != nil {
		o.finish(err)
		return err
	}
	return nil
}

// Resume seeds the accumulators from a persisted run and requests the next
// batch at its saved offset. The continuation keeps the run's id, so saving
// the result upserts the same row and issues still unresolved from the
// earlier batches stay reachable instead of being shadowed by a fresh run.
func (o *Orchestrator) Resume(ctx context.Context, prev *model.VerificationRun) error {
	if prev == nil || prev.ID == "" {
		return common.NewValidationError("run", "must have an id")
	}
	if !prev.HasMore {
		return common.NewValidationError("run", "has no records left to review")
	}

	o.mu.Lock()
	if o.phase == PhaseProcessing {
		o.mu.Unlock()
		return common.NewValidationError("review", "a batch is already in flight")
	}
	o.phase = PhaseProcessing
	o.runID = prev.ID
	o.startedAt = prev.CreatedAt
	o.issues = append([]model.VerificationIssue(nil), prev.Issues...)
	o.stats = prev.Stats
	o.totalReviewed = 0
	o.totalUnreviewed = prev.TotalUnreviewed
	o.skippedUnchanged = prev.SkippedUnchanged
	o.offset = prev.NextOffset
	o.nextOffset = prev.NextOffset
	o.hasMore = prev.HasMore
	o.batches = 0
	o.runErr = nil
	o.done = make(chan struct{})
	offset := o.nextOffset
	o.mu.Unlock()

	slog.Info("Resuming verification run",
		"run_id", prev.ID,
		"language", o.language,
		"offset", offset,
		"include_reviewed", o.cfg.IncludeReviewed)

	if err := o.requestBatch(ctx, offset); err != nil {
		o.finish(err)
		return err
	}
	return nil
}

// Continue manually requests the next batch of a run that stopped in
// PhaseResults with more records outstanding.
func (o *Orchestrator) Continue(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseResults {
		o.mu.Unlock()
		return common.NewValidationError("continue", "no finished batch to continue from")
	}
	if !o.hasMore {
		o.mu.Unlock()
		return common.NewValidationError("continue", "nothing left to review")
	}
	o.phase = PhaseProcessing
	o.runErr = nil
	o.done = make(chan struct{})
	next := o.nextOffset
	o.mu.Unlock()

	if err := o.requestBatch(ctx, next); err != nil {
		o.finish(err)
		return err
	}
	return nil
}

// Wait blocks until the run reaches PhaseResults or the context is
// canceled, and returns the run's error state if any.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runErr
}

// Snapshot returns a copy of the accumulated state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	issues := make([]model.VerificationIssue, len(o.issues))
	copy(issues, o.issues)
	return Snapshot{
		Phase:            o.phase,
		RunID:            o.runID,
		Issues:           issues,
		Stats:            o.stats,
		TotalReviewed:    o.totalReviewed,
		TotalUnreviewed:  o.totalUnreviewed,
		SkippedUnchanged: o.skippedUnchanged,
		HasMore:          o.hasMore,
		NextOffset:       o.nextOffset,
		Batches:          o.batches,
	}
}

// Run converts the accumulated state into a persistable verification run.
func (o *Orchestrator) Run() *model.VerificationRun {
	snap := o.Snapshot()
	o.mu.Lock()
	startedAt := o.startedAt
	o.mu.Unlock()
	return &model.VerificationRun{
		ID:               snap.RunID,
		FileID:           o.fileID,
		Language:         o.language,
		CreatedAt:        startedAt,
		Stats:            snap.Stats,
		Issues:           snap.Issues,
		HasMore:          snap.HasMore,
		NextOffset:       snap.NextOffset,
		TotalUnreviewed:  snap.TotalUnreviewed,
		SkippedUnchanged: snap.SkippedUnchanged,
		IncludeReviewed:  o.cfg.IncludeReviewed,
	}
}

// Close tears down the underlying channel and discards any pending
// completion; accumulated state survives for inspection.
func (o *Orchestrator) Close() {
	o.channel.Reset()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseProcessing {
		o.phase = PhaseResults
	}
	o.closeDoneLocked()
}

// requestBatch starts one verification batch job and subscribes to its
// stream. The error path of the subscription (onComplete never invoked) is
// observed through the terminal channel.
func (o *Orchestrator) requestBatch(ctx context.Context, offset int) error {
	jobID, err := o.client.StartVerification(ctx, o.fileID, o.language, offset, o.cfg.IncludeReviewed)
	if err != nil {
		return err
	}

	slog.Debug("Verification batch started", "job_id", jobID, "offset", offset)

	term, err := o.channel.Connect(ctx, o.client.StreamURL(model.JobVerify, jobID), func(result model.BatchVerificationResult) {
		o.handleBatch(ctx, result)
	})
	if err != nil {
		return err
	}

	go func() {
		<-term
		// A continuation opened inside the completion handler owns the slot
		// before this fires; only a dead channel means the batch failed.
		if o.channel.Active() {
			return
		}
		o.mu.Lock()
		processing := o.phase == PhaseProcessing
		o.mu.Unlock()
		if processing && o.channel.Result() == nil {
			o.finish(o.channel.Err())
		}
	}()

	return nil
}

// handleBatch folds one completed batch into the accumulators and applies
// the continuation policy: greedy pagination when AutoContinue is set,
// otherwise PhaseResults with a manual continue available while HasMore.
func (o *Orchestrator) handleBatch(ctx context.Context, result model.BatchVerificationResult) {
	o.mu.Lock()
	o.issues = append(o.issues, result.Issues...)
	o.stats.Passed += result.Passed
	o.stats.Attention += result.NeedsAttention
	o.stats.AutoReviewed += result.AutoReviewedCount
	o.totalReviewed += result.TotalReviewed
	o.totalUnreviewed = result.TotalUnreviewed
	o.skippedUnchanged += result.SkippedUnchanged
	o.batches++
	o.hasMore = result.HasMore
	if result.NextOffset > o.nextOffset {
		o.nextOffset = result.NextOffset
	}
	next := o.nextOffset
	hasMore := o.hasMore
	o.mu.Unlock()

	slog.Info("Verification batch complete",
		"passed", result.Passed,
		"needs_attention", result.NeedsAttention,
		"auto_reviewed", result.AutoReviewedCount,
		"has_more", result.HasMore,
		"next_offset", result.NextOffset)

	if hasMore && o.cfg.AutoContinue {
		if err := o.requestBatch(ctx, next); err != nil {
			// No retry: surface whatever was accumulated so far.
			slog.Warn("Continuation failed, stopping with accumulated results", "error", err)
			o.finish(err)
		}
		return
	}

	o.finish(nil)
}

// finish transitions to PhaseResults and releases waiters.
func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phase = PhaseResults
	if err != nil && o.runErr == nil {
		o.runErr = err
	}
	o.closeDoneLocked()
}

func (o *Orchestrator) closeDoneLocked() {
	if o.done != nil {
		select {
		case <-o.done:
		default:
			close(o.done)
		}
	}
}
