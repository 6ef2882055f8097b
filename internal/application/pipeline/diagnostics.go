package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CallRecord is one remembered outgoing call.
type CallRecord struct {
	Path   string
	Method string
	At     time.Time
}

// Diagnostics keeps a bounded ring buffer of recent calls and warns
// when one path is hit suspiciously often within a short window — the
// usual signature of a render/fetch loop. It never blocks or rejects a
// call; it only observes.
type Diagnostics struct {
	logger    *zap.Logger
	clock     func() time.Time
	threshold int
	window    time.Duration

	mu      sync.Mutex
	records []CallRecord
	next    int
	filled  bool
}

const (
	diagnosticsRingSize = 50
	loopThreshold       = 10
	loopWindow          = 10 * time.Second
)

// NewDiagnostics creates a diagnostics buffer with the default ring
// size and loop-detection policy.
func NewDiagnostics(logger *zap.Logger, clock func() time.Time) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Diagnostics{
		logger:    logger,
		clock:     clock,
		threshold: loopThreshold,
		window:    loopWindow,
		records:   make([]CallRecord, diagnosticsRingSize),
	}
}

// Record remembers a call and emits a warning when the same path has
// been called more than the threshold within the window.
func (d *Diagnostics) Record(method, path string) {
	now := d.clock()

	d.mu.Lock()
	d.records[d.next] = CallRecord{Path: path, Method: method, At: now}
	d.next = (d.next + 1) % len(d.records)
	if d.next == 0 {
		d.filled = true
	}

	cutoff := now.Add(-d.window)
	hits := 0
	for _, r := range d.records {
		if r.Path == path && r.At.After(cutoff) {
			hits++
		}
	}
	d.mu.Unlock()

	if hits > d.threshold {
		d.logger.Warn("request loop suspected",
			zap.String("path", path),
			zap.Int("calls", hits),
			zap.Duration("window", d.window),
		)
	}
}

// Snapshot returns the remembered calls, oldest first.
func (d *Diagnostics) Snapshot() []CallRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []CallRecord
	if d.filled {
		out = append(out, d.records[d.next:]...)
	}
	out = append(out, d.records[:d.next]...)

	trimmed := out[:0]
	for _, r := range out {
		if !r.At.IsZero() {
			trimmed = append(trimmed, r)
		}
	}
	return trimmed
}
