package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserAnalysis is the cached outcome of analyzing one social handle.
type UserAnalysis struct {
	ID                    uuid.UUID `json:"id"`
	Handle                string    `json:"handle"`
	Situation             string    `json:"situation"`
	ProfileImageURL       string    `json:"profile_image_url"`
	RepresentativePostURL string    `json:"representative_post_url,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsFresh reports whether the analysis was refreshed at or after cutoff.
func (a *UserAnalysis) IsFresh(cutoff time.Time) bool {
	return !a.UpdatedAt.Before(cutoff)
}

// HandleKey returns the cache key for a handle: trimmed, without a leading '@', lower-cased.
// Handles are case-insensitive on the social network, so "Alice" and "alice" share one row.
func HandleKey(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}
