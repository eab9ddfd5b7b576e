package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/situation-monitor/internal/models"
	"github.com/google/uuid"
)

// UserAnalysisRepository persists one cached analysis per handle key.
type UserAnalysisRepository struct {
	db *DB
}

// NewUserAnalysisRepository creates a new user analysis repository
func NewUserAnalysisRepository(db *DB) *UserAnalysisRepository {
	return &UserAnalysisRepository{db: db}
}

const userAnalysisColumns = `id, handle, situation, profile_image_url, representative_post_url, created_at, updated_at`

// GetByHandle returns the row for a handle key, or nil when none exists.
func (r *UserAnalysisRepository) GetByHandle(ctx context.Context, handle string) (*models.UserAnalysis, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userAnalysisColumns+`
		FROM user_analysis WHERE handle = $1
	`, handle)
	a, err := scanUserAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user analysis: %w", err)
	}
	return a, nil
}

// GetFresh returns the row for a handle key only if it was updated at or after cutoff.
// The comparison happens in Go so SQLite's text timestamps never take part in ordering.
func (r *UserAnalysisRepository) GetFresh(ctx context.Context, handle string, cutoff time.Time) (*models.UserAnalysis, error) {
	a, err := r.GetByHandle(ctx, handle)
	if err != nil || a == nil {
		return nil, err
	}
	if !a.IsFresh(cutoff) {
		return nil, nil
	}
	return a, nil
}

// Upsert inserts or replaces the analysis for a.Handle. On conflict the row keeps its
// original id and created_at; a is overwritten with the stored row.
func (r *UserAnalysisRepository) Upsert(ctx context.Context, a *models.UserAnalysis) error {
	if a.Handle == "" {
		return fmt.Errorf("handle cannot be empty")
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}

	var repURL sql.NullString
	if a.RepresentativePostURL != "" {
		repURL = sql.NullString{String: a.RepresentativePostURL, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_analysis (`+userAnalysisColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (handle) DO UPDATE SET
			situation = EXCLUDED.situation,
			profile_image_url = EXCLUDED.profile_image_url,
			representative_post_url = EXCLUDED.representative_post_url,
			updated_at = EXCLUDED.updated_at
	`, a.ID, a.Handle, a.Situation, a.ProfileImageURL, repURL, a.CreatedAt.UTC(), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user analysis: %w", err)
	}

	stored, err := r.GetByHandle(ctx, a.Handle)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("user analysis for %q vanished after upsert", a.Handle)
	}
	*a = *stored
	return nil
}

// List returns analyses ordered by most recently updated first.
func (r *UserAnalysisRepository) List(ctx context.Context, limit int) ([]*models.UserAnalysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userAnalysisColumns+`
		FROM user_analysis
		ORDER BY updated_at DESC, handle ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.UserAnalysis
	for rows.Next() {
		a, err := scanUserAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user analyses: %w", err)
	}
	return out, nil
}

// PurgeOlderThan deletes analyses last updated before cutoff and returns the number removed.
func (r *UserAnalysisRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_analysis WHERE updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge user analyses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged user analyses: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserAnalysis(row rowScanner) (*models.UserAnalysis, error) {
	a := &models.UserAnalysis{}
	var repURL sql.NullString
	if err := row.Scan(
		&a.ID,
		&a.Handle,
		&a.Situation,
		&a.ProfileImageURL,
		&repURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.RepresentativePostURL = repURL.String
	return a, nil
}
