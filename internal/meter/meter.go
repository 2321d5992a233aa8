// Package meter tracks billable recording duration, separate from the
// lifetime of the underlying client connection.
package meter

import (
	"sync"
	"time"

	"github.com/kbukum/sttrelay/internal/logger"
)

type segment struct {
	start time.Time
	end   time.Time
	open  bool
}

// Meter accumulates billable milliseconds across pause/resume cycles for
// one session. Start/stop are idempotent no-ops when already in that state.
type Meter struct {
	mu sync.Mutex

	sessionStart time.Time
	segmentStart time.Time
	isRecording  bool
	totalMs      int64
	segments     []segment

	log *logger.Logger
	now func() time.Time
}

// New creates a Meter anchored to sessionStart, used as the legacy fallback
// for sessions that never call Start.
func New(log *logger.Logger) *Meter {
	return &Meter{
		sessionStart: time.Now(),
		log:          log.WithComponent("meter"),
		now:          time.Now,
	}
}

// Start begins a recording segment. Calling Start while already recording
// logs and is a no-op (idempotent).
func (m *Meter) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRecording {
		m.log.Debug("start_recording while already recording, ignoring")
		return
	}
	now := m.now()
	m.segmentStart = now
	m.isRecording = true
	m.segments = append(m.segments, segment{start: now, open: true})
}

// Stop closes the current recording segment. Calling Stop while not
// recording logs and is a no-op.
func (m *Meter) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRecording {
		m.log.Debug("stop_recording while not recording, ignoring")
		return
	}
	now := m.now()
	m.totalMs += now.Sub(m.segmentStart).Milliseconds()
	if n := len(m.segments); n > 0 {
		m.segments[n-1].end = now
		m.segments[n-1].open = false
	}
	m.isRecording = false
	m.segmentStart = time.Time{}
}

// IsRecording reports whether a recording segment is currently open.
func (m *Meter) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRecording
}

// HasStarted reports whether any recording segment has ever been opened.
func (m *Meter) HasStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.segments) > 0
}

// CurrentDurationMs returns the total billable duration so far. If no
// segment has ever been opened, it falls back to elapsed time since the
// session started, for compatibility with pre-metering clients.
func (m *Meter) CurrentDurationMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.segments) == 0 {
		return m.now().Sub(m.sessionStart).Milliseconds()
	}

	total := m.totalMs
	if m.isRecording {
		total += m.now().Sub(m.segmentStart).Milliseconds()
	}
	return total
}
