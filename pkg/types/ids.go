// Package types defines the wire-level and in-process data model shared by
// every AIPerf service: the message envelope, credits and phase stats,
// worker records, and metric results.
package types

import "github.com/google/uuid"

// NewID returns a new random identifier suitable for service_id, request_id,
// and x_correlation_id fields.
func NewID() string {
	return uuid.New().String()
}

// NewShortID returns a shortened random identifier, used for command IDs and
// other fields where a full UUID would be needlessly verbose.
func NewShortID() string {
	return uuid.New().String()[:8]
}
