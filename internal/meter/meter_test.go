package meter

import (
	"testing"
	"time"

	"github.com/kbukum/sttrelay/internal/logger"
)

func newTestMeter() *Meter {
	return New(logger.NewDefault("test"))
}

func TestMeter_HasStartedFalseInitially(t *testing.T) {
	m := newTestMeter()
	if m.HasStarted() {
		t.Error("expected HasStarted to be false before any Start call")
	}
	if m.IsRecording() {
		t.Error("expected IsRecording to be false before any Start call")
	}
}

func TestMeter_StartMarksRecording(t *testing.T) {
	m := newTestMeter()
	m.Start()

	if !m.IsRecording() {
		t.Error("expected IsRecording true after Start")
	}
	if !m.HasStarted() {
		t.Error("expected HasStarted true after Start")
	}
}

func TestMeter_StartIsIdempotent(t *testing.T) {
	m := newTestMeter()
	m.Start()
	time.Sleep(5 * time.Millisecond)
	m.Start() // second call should be a no-op, not reset segmentStart

	if !m.IsRecording() {
		t.Error("expected still recording after duplicate Start")
	}
}

func TestMeter_StopIsNoOpWhenNotRecording(t *testing.T) {
	m := newTestMeter()
	m.Stop() // no Start yet

	if m.IsRecording() {
		t.Error("Stop without Start should not flip IsRecording true")
	}
}

func TestMeter_PauseResumeAccumulatesAcrossSegments(t *testing.T) {
	m := newTestMeter()

	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	first := m.CurrentDurationMs()

	time.Sleep(20 * time.Millisecond) // paused gap should not count

	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	second := m.CurrentDurationMs()

	if second <= first {
		t.Errorf("expected duration to grow across segments: first=%d second=%d", first, second)
	}
	if second >= first*4 {
		t.Errorf("paused gap appears to have been counted: first=%d second=%d", first, second)
	}
}

func TestMeter_CurrentDurationMsWhileRecordingIncludesOpenSegment(t *testing.T) {
	m := newTestMeter()
	m.Start()
	time.Sleep(10 * time.Millisecond)

	if d := m.CurrentDurationMs(); d <= 0 {
		t.Errorf("expected nonzero duration while recording, got %d", d)
	}
}

func TestMeter_CurrentDurationMsFallsBackToSessionElapsedBeforeFirstStart(t *testing.T) {
	m := newTestMeter()
	time.Sleep(5 * time.Millisecond)

	if d := m.CurrentDurationMs(); d <= 0 {
		t.Errorf("expected fallback elapsed-since-session-start duration, got %d", d)
	}
}
