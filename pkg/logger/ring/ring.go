package ring

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// DefaultCapacity is the number of lines a Ring keeps when created with a
// non-positive capacity.
const DefaultCapacity = 1000

// RingLogger implements LoggerInstance by rendering entries with
// charmbracelet/log (logfmt, no colours) into a bounded in-memory buffer.
// Once the buffer holds more than its capacity the oldest lines are dropped.
type RingLogger struct {
	mu       sync.Mutex
	lines    []string
	capacity int

	logger *log.Logger
}

// NewRingLogger creates a ring logger holding at most capacity lines.
func NewRingLogger(capacity int) *RingLogger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &RingLogger{
		lines:    make([]string, 0, capacity),
		capacity: capacity,
	}
	r.logger = log.NewWithOptions(r, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           log.DebugLevel,
		Formatter:       log.LogfmtFormatter,
	})
	return r
}

// Write appends every non-empty line of p. It never fails.
func (r *RingLogger) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimRight(line, "\r ")
		if line == "" {
			continue
		}
		r.lines = append(r.lines, line)
	}
	if over := len(r.lines) - r.capacity; over > 0 {
		kept := make([]string, r.capacity, r.capacity)
		copy(kept, r.lines[over:])
		r.lines = kept
	}
	return len(p), nil
}

// Lines returns up to the n most recent lines, oldest first.
// n <= 0 returns everything held.
func (r *RingLogger) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	if n > 0 && n < len(r.lines) {
		start = len(r.lines) - n
	}
	out := make([]string, len(r.lines)-start)
	copy(out, r.lines[start:])
	return out
}

// Len returns the number of lines held.
func (r *RingLogger) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Log writes a message at the default level.
func (r *RingLogger) Log(message string, keyvals ...any) {
	r.logger.Print(message, keyvals...)
}

// Info writes a message at INFO level.
func (r *RingLogger) Info(message string, keyvals ...any) {
	r.logger.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func (r *RingLogger) Warn(message string, keyvals ...any) {
	r.logger.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func (r *RingLogger) Error(message string, keyvals ...any) {
	r.logger.Error(message, keyvals...)
}

// Debug writes a message at DEBUG level.
func (r *RingLogger) Debug(message string, keyvals ...any) {
	r.logger.Debug(message, keyvals...)
}

// Fatal records the message at ERROR level. A history buffer never exits
// the process; the console backend does that.
func (r *RingLogger) Fatal(message string, keyvals ...any) {
	r.logger.Error(message, keyvals...)
}
