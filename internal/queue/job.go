package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/situation-monitor/internal/models"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeAnalyzeHandle pre-computes the situation analysis for one handle.
	JobTypeAnalyzeHandle JobType = "analyze_handle"
)

// DefaultMaxRetries bounds transient failures before a job goes to the DLQ.
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	Handle     string     `json:"handle"`
	NotBefore  *time.Time `json:"not_before,omitempty"` // nil = immediate
	NotAfter   *time.Time `json:"not_after,omitempty"`  // nil = no expiration
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

// NewAnalyzeJob creates a warm-up job for handle.
func NewAnalyzeJob(handle string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeAnalyzeHandle,
		Handle:     handle,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate rejects jobs that can never succeed.
func (j *Job) Validate() error {
	if j.Type != JobTypeAnalyzeHandle {
		return errors.New("unknown job type: " + string(j.Type))
	}
	if models.HandleKey(j.Handle) == "" {
		return errors.New("job has no handle")
	}
	return nil
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry returns a copy of the job scheduled delay from now with the retry count incremented.
func (j *Job) Retry(delay time.Duration) *Job {
	next := *j
	next.RetryCount++
	notBefore := time.Now().Add(delay)
	next.NotBefore = &notBefore
	return &next
}
