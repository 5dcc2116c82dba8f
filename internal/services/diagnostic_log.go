package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// logTimestampLayout renders entry timestamps as UTC ISO-8601 with microseconds.
const logTimestampLayout = "2006-01-02T15:04:05.000000"

// ErrLogAlreadyFlushed is returned by a second Flush of the same DiagnosticLog.
var ErrLogAlreadyFlushed = errors.New("diagnostic log already flushed")

// LogEntry is one timestamped message of a DiagnosticLog.
type LogEntry struct {
	Timestamp time.Time
	Message   string
}

func (e LogEntry) String() string {
	return e.Timestamp.UTC().Format(logTimestampLayout) + " - " + e.Message
}

// DiagnosticLog is the append-only record of one pipeline invocation. It is
// created at the start of an invocation, passed to every stage, and written to
// durable storage exactly once. It must never outlive its invocation.
type DiagnosticLog struct {
	entries []LogEntry
	flushed bool
	clock   func() time.Time
	logger  *slog.Logger
}

// NewDiagnosticLog returns an empty log. Entries are mirrored to logger.
func NewDiagnosticLog(logger *slog.Logger, clock func() time.Time) *DiagnosticLog {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &DiagnosticLog{clock: clock, logger: logger}
}

// Record appends a formatted message.
func (l *DiagnosticLog) Record(format string, args ...any) {
	entry := LogEntry{Timestamp: l.clock().UTC(), Message: fmt.Sprintf(format, args...)}
	l.entries = append(l.entries, entry)
	l.logger.Info(entry.Message)
}

// Entries returns a copy of the recorded entries in chronological order.
func (l *DiagnosticLog) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *DiagnosticLog) String() string {
	lines := make([]string, len(l.entries))
	for i, e := range l.entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Flush writes the log to bucket/object. Only the first call writes.
func (l *DiagnosticLog) Flush(ctx context.Context, store ObjectStore, bucket, object string) error {
	if l.flushed {
		return ErrLogAlreadyFlushed
	}
	l.flushed = true

	if err := store.WriteIfAbsent(ctx, bucket, object, "text/plain; charset=utf-8", []byte(l.String())); err != nil {
		return fmt.Errorf("failed to flush diagnostic log: %w", err)
	}
	l.logger.Info("Diagnostic log written.", "logUri", gsURI(bucket, object))
	return nil
}

// LogObjectName derives the object name of an invocation's diagnostic log.
// The suffix keeps concurrent invocations started in the same second apart.
func LogObjectName(startedAt time.Time, suffix string) string {
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("logs/pipeline-log-%s-%s.txt", startedAt.UTC().Format("20060102-150405"), suffix)
}

func gsURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}
