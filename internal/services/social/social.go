// Package social fetches public profile and timeline data for a handle.
package social

import (
	"context"
	"errors"
)

// ErrRateLimited is returned when the upstream network throttles the client.
var ErrRateLimited = errors.New("social source rate limited")

// Profile is the public profile of an account.
type Profile struct {
	ID              string `json:"id"`
	UserName        string `json:"userName"`
	FullName        string `json:"fullName"`
	Description     string `json:"description,omitempty"`
	Location        string `json:"location,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	FollowersCount  int64  `json:"followersCount"`
	FollowingsCount int64  `json:"followingsCount"`
	StatusesCount   int64  `json:"statusesCount"`
	IsVerified      bool   `json:"isVerified"`
	ProfileImage    string `json:"profileImage"`
}

// Post is one entry of a user's timeline. ViewCount is nil when the network did not report it.
type Post struct {
	ID           string `json:"id"`
	FullText     string `json:"fullText"`
	CreatedAt    string `json:"createdAt,omitempty"`
	ViewCount    *int64 `json:"viewCount,omitempty"`
	LikeCount    int64  `json:"likeCount"`
	RetweetCount int64  `json:"retweetCount"`
}

// Views returns the view count, treating an absent count as zero.
func (p Post) Views() int64 {
	if p.ViewCount == nil {
		return 0
	}
	return *p.ViewCount
}

// Source is the narrow contract the analyzer needs from a social network.
type Source interface {
	// UserDetails resolves a handle. It returns (nil, nil) when the handle does not exist.
	UserDetails(ctx context.Context, handle string) (*Profile, error)
	// UserTimeline returns the user's recent posts in timeline order.
	UserTimeline(ctx context.Context, userID string) ([]Post, error)
}
