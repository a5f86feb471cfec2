package api

import "github.com/google/uuid"

// NewTraceID returns a short id used to correlate a request with its reply in logs.
// It never goes on the wire.
func NewTraceID() string {
	return uuid.NewString()[:8]
}
