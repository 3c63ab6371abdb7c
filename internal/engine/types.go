// Package engine hands message-created events to background workers. Writes
// publish without waiting; a bounded worker pool indexes each message for
// semantic search and, when enabled, extracts structured data from it.
package engine

import (
	"fmt"
	"time"

	"github.com/scrypster/lingua/pkg/types"
)

// Job is a queued message-created event.
type Job struct {
	// Message is the committed message.
	Message types.Message

	// Timestamp is when the event was published.
	Timestamp time.Time
}

// Config holds configuration for the engine.
type Config struct {
	// NumWorkers is the number of worker goroutines (default: 2).
	NumWorkers int

	// QueueSize is the size of the event buffer (default: 1000).
	QueueSize int

	// ShutdownTimeout is the maximum time to wait for workers to drain on
	// shutdown (default: 30s).
	ShutdownTimeout time.Duration

	// AutoExtract enables structured-data extraction for new messages.
	AutoExtract bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      2,
		QueueSize:       1000,
		ShutdownTimeout: 30 * time.Second,
		AutoExtract:     true,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}
	return nil
}
