// Package store owns the authoritative in-memory translation snapshot for
// one (file, language) pair, with optimistic local mutation and derived tab
// counts.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
	"github.com/stringvet/stringvet/internal/service"
)

// Store holds the translation records last fetched from the remote service.
// Records are matched and replaced solely by key; their order equals the
// order of the last fetch response.
type Store struct {
	mu         sync.RWMutex
	client     service.RemoteService
	fileID     string
	language   string
	records    []model.TranslationRecord
	counts     model.TabCounts
	lastFilter model.TranslationState
}

// New creates a store bound to one (file, language) pair.
func New(client service.RemoteService, fileID, language string) (*Store, error) {
	if fileID == "" {
		return nil, common.NewValidationError("file id", "must not be empty")
	}
	if language == "" {
		return nil, common.NewValidationError("language", "must not be empty")
	}
	return &Store{client: client, fileID: fileID, language: language}, nil
}

// listRetryOptions bounds the retries around idempotent snapshot reads.
var listRetryOptions = service.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
}

// Fetch replaces the whole snapshot with the server's result for the given
// filter. Tab counts are filter-independent: a narrowed fetch recomputes
// them from a separate unfiltered fetch, so a caller viewing only one bucket
// still sees correct totals for every bucket.
func (s *Store) Fetch(ctx context.Context, stateFilter model.TranslationState) error {
	filtered, err := s.list(ctx, stateFilter)
	if err != nil {
		return err
	}

	counts := model.CountsFor(filtered)
	if stateFilter != "" {
		full, err := s.list(ctx, "")
		if err != nil {
			return err
		}
		counts = model.CountsFor(full)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = filtered
	s.counts = counts
	s.lastFilter = stateFilter
	return nil
}

// Refresh re-fetches the snapshot with the last used filter.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	filter := s.lastFilter
	s.mu.RUnlock()
	return s.Fetch(ctx, filter)
}

// Save applies new text and state to the matching record immediately, then
// sends the authoritative update. Based on the record's prior state it
// decrements exactly one tab counter with saturating subtraction; it never
// increments the destination bucket, so displayed counts only move downward
// between refreshes. On request failure the record is restored and only this
// save's decrement is reversed, leaving decrements made meanwhile by other
// saves in place.
func (s *Store) Save(ctx context.Context, key, text string, state model.TranslationState) error {
	if key == "" {
		return common.NewValidationError("key", "must not be empty")
	}
	if _, err := model.ParseState(string(state)); err != nil {
		return common.NewValidationError("state", err.Error())
	}

	s.mu.Lock()
	idx := s.indexLocked(key)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("translation %q: %w", key, common.ErrNotFound)
	}

	prevRecord := s.records[idx]

	s.records[idx].Translation = text
	s.records[idx].State = state
	decremented := s.decrementLocked(prevRecord.State)
	s.mu.Unlock()

	err := s.client.UpdateTranslation(ctx, s.fileID, s.language, key, text, state)
	if err != nil {
		s.mu.Lock()
		if idx := s.indexLocked(key); idx >= 0 {
			s.records[idx] = prevRecord
		}
		if decremented {
			s.incrementLocked(prevRecord.State)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// UpdateLocal mutates only the in-memory record, leaving tab counts alone.
// Used when a single-item remote call already returned the authoritative
// result.
func (s *Store) UpdateLocal(key, text string, state model.TranslationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(key)
	if idx < 0 {
		return fmt.Errorf("translation %q: %w", key, common.ErrNotFound)
	}
	s.records[idx].Translation = text
	s.records[idx].State = state
	return nil
}

// Get returns the record for a key, if present in the current snapshot.
func (s *Store) Get(key string) (model.TranslationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(key); idx >= 0 {
		return s.records[idx], true
	}
	return model.TranslationRecord{}, false
}

// Records returns a copy of the current snapshot in fetch order.
func (s *Store) Records() []model.TranslationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TranslationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Counts returns the current tab counts projection.
func (s *Store) Counts() model.TabCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

// Language returns the language this store is bound to.
func (s *Store) Language() string {
	return s.language
}

// FileID returns the file this store is bound to.
func (s *Store) FileID() string {
	return s.fileID
}

func (s *Store) list(ctx context.Context, filter model.TranslationState) ([]model.TranslationRecord, error) {
	var records []model.TranslationRecord
	err := common.WithRetry(ctx, func() error {
		var listErr error
		records, listErr = s.client.ListTranslations(ctx, s.fileID, s.language, filter)
		return listErr
	}, listRetryOptions)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) indexLocked(key string) int {
	for i := range s.records {
		if s.records[i].Key == key {
			return i
		}
	}
	return -1
}

// decrementLocked takes one off the bucket the record is leaving, saturating
// at zero, and reports whether it changed anything. Prior states outside the
// three tracked buckets decrement nothing.
func (s *Store) decrementLocked(prior model.TranslationState) bool {
	switch prior {
	case model.StateNew, model.StateNotTranslated:
		if s.counts.Untranslated > 0 {
			s.counts.Untranslated--
			return true
		}
	case model.StateNeedsReview:
		if s.counts.NeedsReview > 0 {
			s.counts.NeedsReview--
			return true
		}
	case model.StateFlagged:
		if s.counts.Flagged > 0 {
			s.counts.Flagged--
			return true
		}
	}
	return false
}

// incrementLocked reverses one decrement on rollback.
func (s *Store) incrementLocked(prior model.TranslationState) {
	switch prior {
	case model.StateNew, model.StateNotTranslated:
		s.counts.Untranslated++
	case model.StateNeedsReview:
		s.counts.NeedsReview++
	case model.StateFlagged:
		s.counts.Flagged++
	}
}
