package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/stringvet/stringvet/internal/common"
	"github.com/stringvet/stringvet/internal/model"
)

// SaveRun upserts a run and replaces its issue rows, preserving the
// accumulated arrival order.
func (s *RunStore) SaveRun(ctx context.Context, run *model.VerificationRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run must have an id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert := s.sb.Insert("runs").
		Columns("id", "file_id", "language", "created_at",
			"passed", "attention", "auto_reviewed",
			"total_unreviewed", "skipped_unchanged",
			"has_more", "next_offset", "include_reviewed").
		Values(run.ID, run.FileID, run.Language, run.CreatedAt.UTC().Format(time.RFC3339),
			run.Stats.Passed, run.Stats.Attention, run.Stats.AutoReviewed,
			run.TotalUnreviewed, run.SkippedUnchanged,
			boolToInt(run.HasMore), run.NextOffset, boolToInt(run.IncludeReviewed)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			passed=excluded.passed, attention=excluded.attention,
			auto_reviewed=excluded.auto_reviewed,
			total_unreviewed=excluded.total_unreviewed,
			skipped_unchanged=excluded.skipped_unchanged,
			has_more=excluded.has_more, next_offset=excluded.next_offset,
			include_reviewed=excluded.include_reviewed`)
	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	del := s.sb.Delete("run_issues").Where(sq.Eq{"run_id": run.ID})
	sqlStr, args, err = del.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build issue delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to clear run issues: %w", err)
	}

	for i, issue := range run.Issues {
		notes, err := json.Marshal(issue.Issues)
		if err != nil {
			return fmt.Errorf("failed to encode issue notes: %w", err)
		}
		ins := s.sb.Insert("run_issues").
			Columns("run_id", "position", "key", "source", "translation", "issues", "suggested_fix").
			Values(run.ID, i, issue.Key, issue.Source, issue.Translation, string(notes), issue.SuggestedFix)
		sqlStr, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build issue insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("failed to save issue %q: %w", issue.Key, err)
		}
	}

	return tx.Commit()
}

// LatestRun returns the most recent run for a (file, language) pair with its
// issues in accumulated order, or common.ErrNoRun when none exists.
func (s *RunStore) LatestRun(ctx context.Context, fileID, language string) (*model.VerificationRun, error) {
	query := s.sb.Select("id", "file_id", "language", "created_at",
		"passed", "attention", "auto_reviewed",
		"total_unreviewed", "skipped_unchanged",
		"has_more", "next_offset", "include_reviewed").
		From("runs").
		Where(sq.Eq{"file_id": fileID, "language": language}).
		OrderBy("created_at DESC").
		Limit(1)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}

	var run model.VerificationRun
	var createdAt string
	var hasMore, includeReviewed int
	row := s.db.QueryRowContext(ctx, sqlStr, args...)
	err = row.Scan(&run.ID, &run.FileID, &run.Language, &createdAt,
		&run.Stats.Passed, &run.Stats.Attention, &run.Stats.AutoReviewed,
		&run.TotalUnreviewed, &run.SkippedUnchanged,
		&hasMore, &run.NextOffset, &includeReviewed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.HasMore = hasMore != 0
	run.IncludeReviewed = includeReviewed != 0

	issues, err := s.issuesForRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Issues = issues
	return &run, nil
}

// DeleteIssue removes one resolved issue from a run.
func (s *RunStore) DeleteIssue(ctx context.Context, runID, key string) error {
	del := s.sb.Delete("run_issues").Where(sq.Eq{"run_id": runID, "key": key})
	sqlStr, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build issue delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete issue %q: %w", key, err)
	}
	return nil
}

// DeleteRun removes a run and its issues.
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	for _, table := range []string{"run_issues", "runs"} {
		var del sq.DeleteBuilder
		if table == "run_issues" {
			del = s.sb.Delete(table).Where(sq.Eq{"run_id": runID})
		} else {
			del = s.sb.Delete(table).Where(sq.Eq{"id": runID})
		}
		sqlStr, args, err := del.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build run delete: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
	}
	return nil
}

func (s *RunStore) issuesForRun(ctx context.Context, runID string) ([]model.VerificationIssue, error) {
	query := s.sb.Select("key", "source", "translation", "issues", "suggested_fix").
		From("run_issues").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build issue query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var issues []model.VerificationIssue
	for rows.Next() {
		var issue model.VerificationIssue
		var notes string
		if err := rows.Scan(&issue.Key, &issue.Source, &issue.Translation, &notes, &issue.SuggestedFix); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		if err := json.Unmarshal([]byte(notes), &issue.Issues); err != nil {
			return nil, fmt.Errorf("failed to decode issue notes: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
