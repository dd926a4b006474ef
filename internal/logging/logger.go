package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithOwner returns a logger scoped to one owner's requests
func WithOwner(ownerID string) *slog.Logger {
	return slog.With("owner_id", ownerID)
}

// WithTide narrows an owner logger to a single tide
func WithTide(logger *slog.Logger, tideID string) *slog.Logger {
	return logger.With("tide_id", tideID)
}
