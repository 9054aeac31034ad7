// Package metrics collects per-frontend I/O counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics accumulates operation counts and byte totals across all
// connections and queues. All methods are safe for concurrent use and
// are no-ops on a nil receiver so frontends can run unmetered.
type Metrics struct {
	reads      atomic.Uint64
	writes     atomic.Uint64
	flushes    atomic.Uint64
	readBytes  atomic.Uint64
	writeBytes atomic.Uint64
	errors     atomic.Uint64

	started time.Time
}

// New creates a Metrics with the start time set to now.
func New() *Metrics {
	return &Metrics{started: time.Now()}
}

// RecordRead counts one completed read of n bytes.
func (m *Metrics) RecordRead(n int) {
	if m == nil {
		return
	}
	m.reads.Add(1)
	m.readBytes.Add(uint64(n))
}

// RecordWrite counts one completed write of n bytes.
func (m *Metrics) RecordWrite(n int) {
	if m == nil {
		return
	}
	m.writes.Add(1)
	m.writeBytes.Add(uint64(n))
}

// RecordFlush counts one flush.
func (m *Metrics) RecordFlush() {
	if m == nil {
		return
	}
	m.flushes.Add(1)
}

// RecordError counts one failed request.
func (m *Metrics) RecordError() {
	if m == nil {
		return
	}
	m.errors.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Reads      uint64        `json:"reads"`
	Writes     uint64        `json:"writes"`
	Flushes    uint64        `json:"flushes"`
	ReadBytes  uint64        `json:"read_bytes"`
	WriteBytes uint64        `json:"write_bytes"`
	Errors     uint64        `json:"errors"`
	Uptime     time.Duration `json:"uptime"`
}

// Snapshot returns a consistent-enough copy of the counters. Individual
// counters are read atomically; the set as a whole is not a transaction.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Reads:      m.reads.Load(),
		Writes:     m.writes.Load(),
		Flushes:    m.flushes.Load(),
		ReadBytes:  m.readBytes.Load(),
		WriteBytes: m.writeBytes.Load(),
		Errors:     m.errors.Load(),
		Uptime:     time.Since(m.started),
	}
}
