// Package model defines the domain types shared across the application.
package model

import "fmt"

// TranslationState is the review state of a single translation record.
type TranslationState string

// Translation record states.
const (
	StateNew           TranslationState = "new"
	StateTranslated    TranslationState = "translated"
	StateNeedsReview   TranslationState = "needs_review"
	StateReviewed      TranslationState = "reviewed"
	StateFlagged       TranslationState = "flagged"
	StateStale         TranslationState = "stale"
	StateNotTranslated TranslationState = "not_translated"
)

// ParseState validates a wire-format state string.
func ParseState(s string) (TranslationState, error) {
	switch st := TranslationState(s); st {
	case StateNew, StateTranslated, StateNeedsReview, StateReviewed,
		StateFlagged, StateStale, StateNotTranslated:
		return st, nil
	}
	return "", fmt.Errorf("unknown translation state %q", s)
}

// TranslationRecord is one localizable string for a (file, language) pair.
// Records are identified solely by Key within that scope.
type TranslationRecord struct {
	Key         string           `json:"key"`
	Source      string           `json:"source"`
	Translation string           `json:"translation"`
	State       TranslationState `json:"state"`
}

// TabCounts is a derived projection over a translation snapshot, partitioned
// by review status. It is never authoritative on its own; CountsFor is the
// only way to compute it from scratch.
type TabCounts struct {
	Untranslated int `json:"untranslated"`
	NeedsReview  int `json:"needs_review"`
	Flagged      int `json:"flagged"`
	Total        int `json:"total"`
}

// CountsFor computes tab counts as a pure function of a full snapshot.
// Records still in "new" state have no usable translation yet, so they count
// toward the untranslated bucket alongside "not_translated".
func CountsFor(records []TranslationRecord) TabCounts {
	counts := TabCounts{Total: len(records)}
	for _, rec := range records {
		switch rec.State {
		case StateNew, StateNotTranslated:
			counts.Untranslated++
		case StateNeedsReview:
			counts.NeedsReview++
		case StateFlagged:
			counts.Flagged++
		}
	}
	return counts
}

// SingleTranslation is the authoritative result of a single-item machine
// translation call.
type SingleTranslation struct {
	Key          string           `json:"key"`
	Translation  string           `json:"translation"`
	State        TranslationState `json:"state"`
	QualityScore float64          `json:"quality_score"`
	Provider     string           `json:"provider"`
}

// ReviewSuggestion is one alternative translation proposed by a single-item
// LLM review.
type ReviewSuggestion struct {
	Text        string `json:"text"`
	Explanation string `json:"explanation"`
}

// SingleReview is the result of a single-item LLM review call.
type SingleReview struct {
	Key                 string             `json:"key"`
	Issues              []string           `json:"issues"`
	Suggestions         []ReviewSuggestion `json:"suggestions"`
	OriginalTranslation string             `json:"original_translation"`
}
