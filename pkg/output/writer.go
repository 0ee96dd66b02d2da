package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer receives the records of one command. Implementations are safe for
// concurrent use; every record is one line.
type Writer interface {
	WriteEntry(ctx context.Context, entry *EntryRecord) error
	WriteStat(ctx context.Context, stat *StatRecord) error
	WriteTransfer(ctx context.Context, transfer *TransferRecord) error
	WriteSkip(ctx context.Context, skip *SkipRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteProgress(ctx context.Context, prog *ProgressRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	Close() error
}

// JSONLWriter wraps each record in a Record envelope tagged with the job
// ID and backend, and writes it as one JSON line.
type JSONLWriter struct {
	mu       sync.Mutex
	w        io.Writer
	jobID    string
	provider string
	closed   bool
}

// NewJSONLWriter writes to w. Close does not close w.
func NewJSONLWriter(w io.Writer, jobID, provider string) *JSONLWriter {
	return &JSONLWriter{w: w, jobID: jobID, provider: provider}
}

func (jw *JSONLWriter) WriteEntry(ctx context.Context, entry *EntryRecord) error {
	return jw.emit(ctx, TypeEntry, entry)
}

func (jw *JSONLWriter) WriteStat(ctx context.Context, stat *StatRecord) error {
	return jw.emit(ctx, TypeStat, stat)
}

func (jw *JSONLWriter) WriteTransfer(ctx context.Context, transfer *TransferRecord) error {
	return jw.emit(ctx, TypeTransfer, transfer)
}

func (jw *JSONLWriter) WriteSkip(ctx context.Context, skip *SkipRecord) error {
	return jw.emit(ctx, TypeSkip, skip)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.emit(ctx, TypeError, err)
}

func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.emit(ctx, TypeProgress, prog)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.emit(ctx, TypeSummary, sum)
}

// Close rejects later writes.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	jw.closed = true
	jw.mu.Unlock()
	return nil
}

func (jw *JSONLWriter) emit(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}
	line, err := json.Marshal(Record{
		Type:     recordType,
		TS:       time.Now().UTC(),
		JobID:    jw.jobID,
		Provider: jw.provider,
		Data:     payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	line = append(line, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return ErrWriterClosed
	}
	if err := writeAll(jw.w, line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll loops over short writes so a line is never truncated.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Nop discards every record.
type Nop struct{}

func (Nop) WriteEntry(context.Context, *EntryRecord) error       { return nil }
func (Nop) WriteStat(context.Context, *StatRecord) error         { return nil }
func (Nop) WriteTransfer(context.Context, *TransferRecord) error { return nil }
func (Nop) WriteSkip(context.Context, *SkipRecord) error         { return nil }
func (Nop) WriteError(context.Context, *ErrorRecord) error       { return nil }
func (Nop) WriteProgress(context.Context, *ProgressRecord) error { return nil }
func (Nop) WriteSummary(context.Context, *SummaryRecord) error   { return nil }
func (Nop) Close() error                                         { return nil }

var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = Nop{}
)
