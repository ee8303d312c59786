package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/petems/scope-tuner/internal/audio"
	"github.com/petems/scope-tuner/internal/config"
	"github.com/petems/scope-tuner/internal/scope"
	"github.com/rs/zerolog"
)

// Mock implementations for testing
type mockScope struct {
	mu        sync.Mutex
	running   bool
	frequency float64
	cycles    int
	startErr  error
	stopDelay time.Duration
	starts    int
	stops     int
}

func (m *mockScope) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	m.starts++
	return nil
}

func (m *mockScope) Stop() error {
	time.Sleep(m.stopDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.stops++
	return nil
}

func (m *mockScope) SetFrequency(hz float64) error {
	if !(hz > 0) {
		return scope.ErrInvalidConfig
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frequency = hz
	return nil
}

func (m *mockScope) SetCycles(n int) error {
	if n < 1 {
		return scope.ErrInvalidConfig
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = n
	return nil
}

func (m *mockScope) Frequency() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frequency
}

func (m *mockScope) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

func (m *mockScope) WindowLength() int {
	return scope.WindowLength(m.Frequency(), m.Cycles())
}

func (m *mockScope) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockScope) Frame() scope.Frame {
	return scope.Frame{}
}

type mockStatus struct {
	mu    sync.Mutex
	last  string
	err   error
	calls int
}

func (m *mockStatus) SetIdle()    { m.set("idle", nil) }
func (m *mockStatus) SetRunning() { m.set("running", nil) }
func (m *mockStatus) SetError(err error) {
	m.set("error", err)
}

func (m *mockStatus) set(s string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last, m.err = s, err
	m.calls++
}

func newTestApp(s *mockScope, status StatusUpdater) *App {
	return New(Config{
		Scope:         s,
		Config:        config.Default(),
		Logger:        zerolog.Nop(),
		StatusUpdater: status,
	})
}

func TestToggleStartsAndStops(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	status := &mockStatus{}
	app := newTestApp(s, status)

	// Initially not running
	if app.IsRunning() {
		t.Error("App should not be running initially")
	}

	if err := app.Toggle(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !app.IsRunning() {
		t.Error("App should be running after first toggle")
	}
	if status.last != "running" {
		t.Errorf("expected running status, got %s", status.last)
	}

	if err := app.Toggle(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.IsRunning() {
		t.Error("App should have stopped after second toggle")
	}
	if status.last != "idle" {
		t.Errorf("expected idle status, got %s", status.last)
	}
}

func TestStartFailureIsReported(t *testing.T) {
	startErr := fmt.Errorf("%w: no input devices", audio.ErrDeviceUnavailable)
	s := &mockScope{frequency: 440, cycles: 10, startErr: startErr}
	status := &mockStatus{}
	app := newTestApp(s, status)

	if err := app.Start(); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !errors.Is(app.LastError(), audio.ErrDeviceUnavailable) {
		t.Errorf("expected last error to be recorded, got %v", app.LastError())
	}
	if status.last != "error" || status.err == nil {
		t.Errorf("expected error status, got %s (%v)", status.last, status.err)
	}
	if app.IsRunning() {
		t.Error("App should not be running after a failed start")
	}
}

func TestSuccessfulStartClearsLastError(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	app := newTestApp(s, nil)

	app.OnEngineError(audio.ErrDeviceDisconnected)
	if !errors.Is(app.LastError(), audio.ErrDeviceDisconnected) {
		t.Fatalf("expected disconnect to be recorded, got %v", app.LastError())
	}

	if err := app.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.LastError() != nil {
		t.Errorf("expected last error cleared, got %v", app.LastError())
	}
}

func TestNudgeFrequencyClamps(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		delta float64
		want  float64
	}{
		{name: "up", start: 440, delta: 1, want: 441},
		{name: "down", start: 440, delta: -10, want: 430},
		{name: "floor", start: 3, delta: -10, want: MinFrequency},
		{name: "ceiling", start: 19995, delta: 10, want: MaxFrequency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockScope{frequency: tt.start, cycles: 10}
			app := newTestApp(s, nil)

			if err := app.NudgeFrequency(tt.delta); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Frequency() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, s.Frequency())
			}
		})
	}
}

func TestNudgeCyclesClamps(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 1}
	app := newTestApp(s, nil)

	if err := app.NudgeCycles(-1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Cycles() != MinCycles {
		t.Errorf("expected %d, got %d", MinCycles, s.Cycles())
	}

	s.cycles = 499
	if err := app.NudgeCycles(5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Cycles() != MaxCycles {
		t.Errorf("expected %d, got %d", MaxCycles, s.Cycles())
	}
}

func TestNudgeSemitones(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	app := newTestApp(s, nil)

	if err := app.NudgeSemitones(12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.Frequency()-880) > 1e-9 {
		t.Errorf("expected 880, got %v", s.Frequency())
	}
}

func TestSelectNote(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	app := newTestApp(s, nil)

	if err := app.SelectNote("E2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Frequency() != 82.41 {
		t.Errorf("expected 82.41, got %v", s.Frequency())
	}

	if err := app.SelectNote("H2"); err == nil {
		t.Error("expected unknown note to be rejected")
	}
	if s.Frequency() != 82.41 {
		t.Errorf("frequency changed after rejected note: %v", s.Frequency())
	}
}

func TestInvalidSettingReportsError(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	status := &mockStatus{}
	app := newTestApp(s, status)

	if err := app.SetCycles(0); !errors.Is(err, scope.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if status.last != "error" {
		t.Errorf("expected error status, got %s", status.last)
	}
	if s.Cycles() != 10 {
		t.Errorf("cycles changed: %d", s.Cycles())
	}
}

func TestSummary(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	app := newTestApp(s, nil)

	got := app.Summary()
	for _, want := range []string{"440.00 Hz", "A4", "10 cycles", "1002 samples"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in summary %q", want, got)
		}
	}
}

func TestOnEngineErrorUpdatesStatus(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	status := &mockStatus{}
	app := newTestApp(s, nil)
	app.SetStatusUpdater(status)

	app.OnEngineError(audio.ErrDeviceDisconnected)

	if status.last != "error" || !errors.Is(status.err, audio.ErrDeviceDisconnected) {
		t.Errorf("expected disconnect status, got %s (%v)", status.last, status.err)
	}
}

func TestShutdownStopsScope(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	app := newTestApp(s, nil)

	if err := app.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Running() || s.stops != 1 {
		t.Errorf("expected one stop, running=%v stops=%d", s.Running(), s.stops)
	}
}

func TestShutdownHonoursContext(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10, stopDelay: time.Second}
	app := newTestApp(s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := app.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNotesAreSelectable(t *testing.T) {
	s := &mockScope{frequency: 440, cycles: 10}
	app := newTestApp(s, nil)

	for _, tuning := range app.Notes() {
		for _, note := range tuning.Notes {
			if err := app.SelectNote(note); err != nil {
				t.Errorf("%s %s: %v", tuning.Name, note, err)
			}
		}
	}
}
