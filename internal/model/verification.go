package model

import "time"

// VerificationIssue is one translation the LLM reviewer found problems with.
// Issues are unique per run by Key.
type VerificationIssue struct {
	Key          string   `json:"key"`
	Source       string   `json:"source"`
	Translation  string   `json:"translation"`
	Issues       []string `json:"issues"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// BatchVerificationResult is the terminal payload of one verification batch.
// NextOffset is monotonically non-decreasing across a run; HasMore=false is
// the terminal condition for the run.
type BatchVerificationResult struct {
	Success           bool                `json:"success"`
	TotalReviewed     int                 `json:"total_reviewed"`
	Passed            int                 `json:"passed"`
	NeedsAttention    int                 `json:"needs_attention"`
	Issues            []VerificationIssue `json:"issues"`
	HasMore           bool                `json:"has_more"`
	TotalUnreviewed   int                 `json:"total_unreviewed"`
	NextOffset        int                 `json:"next_offset"`
	AutoReviewedCount int                 `json:"auto_reviewed_count"`
	SkippedUnchanged  int                 `json:"skipped_unchanged"`
}

// RunStats are the running totals accumulated across the batches of one
// verification run.
type RunStats struct {
	Passed       int `json:"passed"`
	Attention    int `json:"attention"`
	AutoReviewed int `json:"auto_reviewed"`
}

// VerificationRun is the accumulated outcome of one verification run: every
// issue surfaced across its batches, in arrival order, plus the continuation
// state needed to resume a manual run.
type VerificationRun struct {
	ID               string
	FileID           string
	Language         string
	CreatedAt        time.Time
	Stats            RunStats
	Issues           []VerificationIssue
	HasMore          bool
	NextOffset       int
	TotalUnreviewed  int
	SkippedUnchanged int
	IncludeReviewed  bool
}
