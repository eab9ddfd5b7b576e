package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // true for quota errors, false for rate limits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests && !apiErr.IsPermanent
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError converts a 429 from the OpenAI client into an APIError with a retry hint.
// Other failures return nil and are reported as-is.
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var sdkErr *openai.Error
	if !errors.As(err, &sdkErr) || sdkErr.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	apiErr := &APIError{
		StatusCode: sdkErr.StatusCode,
		Message:    sdkErr.Message,
		Type:       sdkErr.Type,
		Code:       sdkErr.Code,
	}
	if apiErr.Type == "" {
		apiErr.Type = "rate_limit_error"
	}
	if apiErr.Message == "" {
		apiErr.Message = err.Error()
	}

	retryAfter := 60 * time.Second
	if apiErr.Code == "insufficient_quota" {
		apiErr.IsPermanent = true
		retryAfter = time.Hour
	} else if sdkErr.Response != nil {
		if d, ok := parseRetryAfter(sdkErr.Response.Header.Get("Retry-After")); ok {
			retryAfter = d
		}
	}
	apiErr.RetryAfter = &retryAfter

	return apiErr
}

// parseRetryAfter accepts both Retry-After forms: delay seconds and an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	return parseRetryAfterAt(v, time.Now())
}

func parseRetryAfterAt(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, secs > 0
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now), true
	}
	return 0, false
}

// GetRetryDelay calculates the delay before retrying based on error type and attempt number.
func GetRetryDelay(err error, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	shift := time.Duration(1) << uint(attempt)

	if IsQuotaError(err) {
		return capDuration(time.Hour*shift, 24*time.Hour)
	}

	if IsRateLimitError(err) {
		delay := capDuration(60*time.Second*shift, 15*time.Minute)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
			delay = *apiErr.RetryAfter
		}
		return delay
	}

	return capDuration(5*time.Second*shift, 5*time.Minute)
}

func capDuration(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}
