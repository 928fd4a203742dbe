package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

var (
	// ErrRetryable marks provider failures worth retrying: throttling,
	// transient server errors and timeouts.
	ErrRetryable = errors.New("retryable embedding error")
	// ErrFatal marks failures no retry can fix: credentials, unknown model,
	// malformed request.
	ErrFatal = errors.New("fatal embedding error")
	// ErrIncompleteVectors means a response did not carry exactly one usable
	// vector per input.
	ErrIncompleteVectors = errors.New("incomplete embedding response")
)

// Class is the retry classification of an error.
type Class int

const (
	Fatal Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

var (
	retryableHints = []string{
		"429", "rate limit", "rate_limit", "too many requests", "resourceexhausted", "resource_exhausted",
		"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable",
		"unavailable", "overloaded", "timeout", "timed out", "deadline exceeded", "connection reset",
	}
	fatalHints = []string{
		"401", "403", "unauthorized", "unauthenticated", "permission denied", "invalid api key",
		"incorrect api key", "api key not valid", "model_not_found", "model not found", "does not exist",
	}
)

// Classify decides whether err is worth another attempt. Anything it does not
// recognise is fatal.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	switch {
	case errors.Is(err, ErrIncompleteVectors), errors.Is(err, ErrFatal), errors.Is(err, context.Canceled):
		return Fatal
	case errors.Is(err, ErrRetryable), errors.Is(err, context.DeadlineExceeded):
		return Retryable
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus(gerr.Code)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Retryable
	}

	msg := strings.ToLower(err.Error())
	for _, h := range fatalHints {
		if strings.Contains(msg, h) {
			return Fatal
		}
	}
	for _, h := range retryableHints {
		if strings.Contains(msg, h) {
			return Retryable
		}
	}
	return Fatal
}

func classifyStatus(code int) Class {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return Retryable
	}
	return Fatal
}
