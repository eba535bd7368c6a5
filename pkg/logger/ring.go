package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Ring is a bounded, concurrency-safe buffer of formatted log lines.
// Consumers (status/log polling) read it without blocking the writer.
type Ring struct {
	mu    sync.Mutex
	lines []string
	max   int
	start int
	count int
}

// NewRing creates a ring that keeps the most recent max lines.
func NewRing(max int) *Ring {
	if max <= 0 {
		max = 1
	}
	return &Ring{
		lines: make([]string, max),
		max:   max,
	}
}

// Append adds a line, evicting the oldest when full.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < r.max {
		r.lines[(r.start+r.count)%r.max] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % r.max
}

// Lines returns the buffered lines in append order.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(r.start+i)%r.max])
	}
	return out
}

// Write implements io.Writer so the ring can back a zapcore sink.
// Each Write call may carry multiple newline-terminated entries.
func (r *Ring) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		r.Append(line)
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (r *Ring) Sync() error { return nil }

// NewRingCore builds a console-encoded zap core writing into the ring.
func NewRingCore(ring *Ring, level Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), ring, level)
}
