// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/stringvet/stringvet/internal/model"
)

// RemoteService is the contract for the localization-review backend. All
// request/response calls return explicit errors; long-running jobs return an
// opaque job id whose progress is observed separately over the streaming
// endpoint named by StreamURL.
type RemoteService interface {
	// Job operations
	StartTranslation(ctx context.Context, fileID string, languages []string) (string, error)
	StartVerification(ctx context.Context, fileID, language string, offset int, includeReviewed bool) (string, error)
	StreamURL(kind model.JobKind, jobID string) string

	// Translation record operations
	ListTranslations(ctx context.Context, fileID, language string, stateFilter model.TranslationState) ([]model.TranslationRecord, error)
	UpdateTranslation(ctx context.Context, fileID, language, key, translation string, state model.TranslationState) error

	// Single-item operations
	TranslateSingle(ctx context.Context, fileID, language, key, source string) (*model.SingleTranslation, error)
	ReviewSingle(ctx context.Context, fileID, language, key, source, translation string) (*model.SingleReview, error)
}

// RunStorage persists accumulated verification runs between invocations.
type RunStorage interface {
	SaveRun(ctx context.Context, run *model.VerificationRun) error
	LatestRun(ctx context.Context, fileID, language string) (*model.VerificationRun, error)
	DeleteIssue(ctx context.Context, runID, key string) error
	DeleteRun(ctx context.Context, runID string) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
