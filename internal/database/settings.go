package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/benvon/situation-monitor/internal/models"
)

// Setting names in api_settings.
const (
	SettingCORS      = "cors"
	SettingRateLimit = "rate_limit"
)

// SettingsRepository stores operator-tunable API settings as JSON documents,
// one row per setting. Servers poll it, so writes take effect without restarts.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// load decodes setting name into dst. It reports false when the row is absent.
func (r *SettingsRepository) load(ctx context.Context, name string, dst any) (time.Time, bool, error) {
	var (
		raw       string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM api_settings WHERE name = $1`, name,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get %s setting: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return time.Time{}, false, fmt.Errorf("decode %s setting: %w", name, err)
	}
	return updatedAt, true, nil
}

func (r *SettingsRepository) store(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s setting: %w", name, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO api_settings (name, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, name, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s setting: %w", name, err)
	}
	return nil
}

// CORSPolicy returns the stored policy, or nil when servers should fall back
// to FRONTEND_URL.
func (r *SettingsRepository) CORSPolicy(ctx context.Context) (*models.CORSPolicy, error) {
	var p models.CORSPolicy
	updatedAt, ok, err := r.load(ctx, SettingCORS, &p)
	if err != nil || !ok {
		return nil, err
	}
	p.UpdatedAt = updatedAt
	return &p, nil
}

// SetCORSPolicy validates and stores p. Origins are normalized with ParseOrigins.
func (r *SettingsRepository) SetCORSPolicy(ctx context.Context, p *models.CORSPolicy) error {
	origins := ParseOrigins(strings.Join(p.AllowedOrigins, ","))
	if len(origins) == 0 {
		return fmt.Errorf("allowed origins cannot be empty")
	}
	for _, o := range origins {
		if err := ValidateOrigin(o); err != nil {
			return err
		}
	}
	if p.MaxAge < 0 {
		return fmt.Errorf("max age cannot be negative")
	}
	return r.store(ctx, SettingCORS, models.CORSPolicy{
		AllowedOrigins:   origins,
		AllowCredentials: p.AllowCredentials,
		MaxAge:           p.MaxAge,
	})
}

// ResetCORSPolicy removes the stored policy.
func (r *SettingsRepository) ResetCORSPolicy(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM api_settings WHERE name = $1`, SettingCORS); err != nil {
		return fmt.Errorf("reset cors setting: %w", err)
	}
	return nil
}

// RateLimit returns the stored rate, or nil when none has been set.
func (r *SettingsRepository) RateLimit(ctx context.Context) (*models.RateLimit, error) {
	var rl models.RateLimit
	updatedAt, ok, err := r.load(ctx, SettingRateLimit, &rl)
	if err != nil || !ok {
		return nil, err
	}
	rl.UpdatedAt = updatedAt
	return &rl, nil
}

// SetRateLimit stores rate. Its format is checked by the caller, which owns
// the limiter dependency.
func (r *SettingsRepository) SetRateLimit(ctx context.Context, rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return fmt.Errorf("rate cannot be empty")
	}
	return r.store(ctx, SettingRateLimit, models.RateLimit{Rate: rate})
}

// ParseOrigins splits a comma-separated origin list, trimming entries and
// dropping empty and repeated ones. A trailing slash is not part of an origin.
func ParseOrigins(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimRight(strings.TrimSpace(p), "/")
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ValidateOrigin accepts "*" or a bare http(s) scheme and host.
func ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path != "" || u.RawQuery != "" {
		return fmt.Errorf("invalid origin %q: want scheme://host[:port]", origin)
	}
	return nil
}
