package genai

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("generation rate limited")
	// ErrAuth means the API key was rejected.
	ErrAuth = errors.New("generation auth failed")
	// ErrUnavailable means the provider could not be reached or failed
	// transiently. Journaling works fine without a generated prompt, so
	// callers should fall back to a canned one.
	ErrUnavailable = errors.New("generation unavailable")
)

// requestTimeout caps a single generation. A writing prompt is a nicety; the
// UI must never hang on it.
const requestTimeout = 5 * time.Second

// Generator produces a short journaling prompt for the user to write about.
type Generator interface {
	Generate(ctx context.Context, topic string) (string, error)
}
