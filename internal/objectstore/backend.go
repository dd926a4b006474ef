// Package objectstore provides whole-blob object storage backends for tide
// documents. Every backend distinguishes an absent object (models.ErrNotFound)
// from a backend failure (models.ErrStoreUnavailable).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tides/internal/models"
)

// Backend stores opaque JSON blobs under string keys
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Name() string
}

// Closer is implemented by backends holding connections
type Closer interface {
	Close(ctx context.Context) error
}

// notFound wraps models.ErrNotFound with the key that was missing
func notFound(key string) error {
	return fmt.Errorf("object %q: %w", key, models.ErrNotFound)
}

// classifyHTTPStatus maps an object-storage HTTP status onto the error taxonomy.
// 404 is not found, 429 and 5xx are transient, everything else is permanent.
func classifyHTTPStatus(backend, key string, statusCode int, body string) error {
	switch {
	case statusCode == http.StatusNotFound:
		return notFound(key)
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		return models.Unavailable(backend, fmt.Errorf("HTTP %d: %s", statusCode, truncate(body, 200)))
	default:
		return fmt.Errorf("%s: HTTP %d: %s", backend, statusCode, truncate(body, 200))
	}
}

// classifyTransportError marks request failures as transient. Caller
// cancellation is passed through untouched.
func classifyTransportError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return models.Unavailable(backend, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
