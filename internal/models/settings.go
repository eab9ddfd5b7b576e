package models

import "time"

// CORSPolicy is the cross-origin policy servers apply to browser clients.
type CORSPolicy struct {
	AllowedOrigins   []string  `json:"allowed_origins"`
	AllowCredentials bool      `json:"allow_credentials"`
	MaxAge           int       `json:"max_age"`
	UpdatedAt        time.Time `json:"-"`
}

// RateLimit is the per-client request rate on /api/v1 in limiter notation,
// e.g. "10-M" for ten requests a minute.
type RateLimit struct {
	Rate      string    `json:"rate"`
	UpdatedAt time.Time `json:"-"`
}
