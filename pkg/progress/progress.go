// Package progress converts cumulative byte counts into percentage events.
package progress

import (
	"io"
	"sync"
)

// Sink receives progress percentages in the range [0, 100].
type Sink interface {
	OnProgress(percent int)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(percent int)

// OnProgress calls f(percent).
func (f SinkFunc) OnProgress(percent int) { f(percent) }

// Discard is a Sink that ignores every event.
var Discard Sink = SinkFunc(func(int) {})

// Tracker accumulates byte deltas against a known total and reports
// floor(100*seen/total), clamped to [0, 100], to its sink after every delta.
//
// Tracker is safe for concurrent use; events are delivered in the order the
// deltas were accounted, so percentages never decrease for non-negative
// deltas.
type Tracker struct {
	mu    sync.Mutex
	total int64
	seen  int64
	last  int
	sink  Sink
}

// NewTracker returns a tracker for total bytes. Totals below 1 are raised
// to 1. A nil sink discards events.
func NewTracker(total int64, sink Sink) *Tracker {
	if total < 1 {
		total = 1
	}
	if sink == nil {
		sink = Discard
	}
	return &Tracker{total: total, sink: sink}
}

// Add accounts n more bytes and returns the percentage emitted.
func (t *Tracker) Add(n int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen += n
	pct := percent(t.seen, t.total)
	t.last = pct
	t.sink.OnProgress(pct)
	return pct
}

// Done reports 100 unless it was already reported. A zero-byte transfer
// never produces a delta, so callers mark completion explicitly.
func (t *Tracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == 100 {
		return
	}
	if t.seen < t.total {
		t.seen = t.total
	}
	t.last = 100
	t.sink.OnProgress(100)
}

// Percent returns the most recently emitted percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Seen returns the bytes accounted so far.
func (t *Tracker) Seen() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen
}

func percent(seen, total int64) int {
	if seen <= 0 {
		return 0
	}
	if seen >= total {
		return 100
	}
	return int(seen * 100 / total)
}

// Reader counts bytes read from R into a Tracker.
type Reader struct {
	r io.Reader
	t *Tracker
}

// NewReader wraps r so every read advances t.
func NewReader(r io.Reader, t *Tracker) *Reader {
	return &Reader{r: r, t: t}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.t.Add(int64(n))
	}
	return n, err
}

// Writer counts bytes written to W into a Tracker.
type Writer struct {
	w io.Writer
	t *Tracker
}

// NewWriter wraps w so every write advances t.
func NewWriter(w io.Writer, t *Tracker) *Writer {
	return &Writer{w: w, t: t}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.t.Add(int64(n))
	}
	return n, err
}
