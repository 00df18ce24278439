package player

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents whether a resolve failure is worth another attempt.
type ErrorClass int

const (
	// ErrorClassRetryable indicates a transient failure (network, rate limit, 5xx).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the URL will never resolve (unsupported, removed, private).
	ErrorClassFatal
	// ErrorClassUnknown indicates the error type cannot be determined.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ResolveError is returned when a URL cannot be turned into a playable source.
type ResolveError struct {
	URL   string
	Class ErrorClass
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %q (%s): %v", e.URL, e.Class, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// SpawnError is returned when the streaming process could not be started.
type SpawnError struct {
	Source string
	Err    error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn streamer: %v", e.Err) }

func (e *SpawnError) Unwrap() error { return e.Err }

// IsResolveError reports whether err (or anything it wraps) is a *ResolveError.
func IsResolveError(err error) bool {
	var re *ResolveError
	return errors.As(err, &re)
}

// resolveErrorClass returns the class carried by a *ResolveError in err's
// chain, or ErrorClassUnknown.
func resolveErrorClass(err error) ErrorClass {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Class
	}
	return ErrorClassUnknown
}

// IsSpawnError reports whether err (or anything it wraps) is a *SpawnError.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

var (
	fatalResolvePatterns = []string{
		"unsupported url",
		"is not a valid url",
		"invalid url",
		"malformed url",
		"video unavailable",
		"private video",
		"has been removed",
		"no longer available",
		"does not exist",
		"not found",
		"404",
		"403",
		"sign in to confirm your age",
		"members-only",
		"requested format is not available",
		"no video formats found",
		"unable to extract",
		"drm protected",
		"empty stream url",
	}
	retryableResolvePatterns = []string{
		"429",
		"too many requests",
		"rate limit",
		"500",
		"502",
		"503",
		"504",
		"timed out",
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"temporary failure in name resolution",
		"network is unreachable",
		"eof",
	}
)

// ClassifyResolveError sorts yt-dlp failures into retryable and fatal buckets.
// Server-side and network errors are checked first so "503 service unavailable"
// is not mistaken for an unavailable video. Unmatched errors are unknown.
// A failed URL is always dropped; the class only sets the log level and the
// log label.
func ClassifyResolveError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	lower := strings.ToLower(err.Error())
	for _, p := range retryableResolvePatterns {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}
	for _, p := range fatalResolvePatterns {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	return ErrorClassUnknown
}
