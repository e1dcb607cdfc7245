// Package storage provides a durable local spill target for RECORDS-mode
// metric exports, so per-request detail survives a crash of the Results
// Processor mid-run instead of living only in memory until Summarize.
package storage

import "github.com/aiperf-project/aiperf-core/pkg/types"

// RecordStore durably persists per-request metric records in append order.
type RecordStore interface {
	// Append writes rec as the next record.
	Append(rec types.MetricRecordInfo) error
	// ForEach replays every stored record in append order.
	ForEach(fn func(rec types.MetricRecordInfo) error) error
	// Close releases the store's underlying resources.
	Close() error
}
