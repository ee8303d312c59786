package app

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/petems/scope-tuner/internal/config"
	"github.com/petems/scope-tuner/internal/scope"
	"github.com/rs/zerolog"
)

// Bounds applied by the nudge helpers.
const (
	MinFrequency = 1.0
	MaxFrequency = 20000.0
	MinCycles    = 1
	MaxCycles    = 500
)

const Instructions = `Set the frequency of the pitch you are tuning to and the number of cycles to show (ten is a good start).
Too few or too many cycles distort the display and cost more processing.
The display is sized to hold exactly that many cycles of the given frequency.
Incoming sound is drawn as a waveform so the individual cycles are visible.
The note is in tune when the cycles stop drifting across the screen.
Drifting right means the note is flat; drifting left means it is sharp.
A flat line usually means the microphone is disconnected or muted.`

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRunning()
	SetError(err error)
}

// Scope is the engine surface driven by the hosts.
type Scope interface {
	Start() error
	Stop() error
	SetFrequency(hz float64) error
	SetCycles(n int) error
	Frequency() float64
	Cycles() int
	WindowLength() int
	Running() bool
	Frame() scope.Frame
}

type Config struct {
	Scope         Scope
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	scope Scope
	cfg   *config.Config
	log   zerolog.Logger

	mu      sync.Mutex
	status  StatusUpdater
	lastErr error
}

func New(cfg Config) *App {
	return &App{
		scope:  cfg.Scope,
		cfg:    cfg.Config,
		log:    cfg.Logger,
		status: cfg.StatusUpdater,
	}
}

// SetStatusUpdater sets the status sink (for hosts created after the app)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startLocked()
}

func (a *App) startLocked() error {
	if err := a.scope.Start(); err != nil {
		a.failLocked(err, "Failed to start scope")
		return err
	}
	a.lastErr = nil
	if a.status != nil {
		a.status.SetRunning()
	}
	return nil
}

func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked()
}

func (a *App) stopLocked() error {
	if err := a.scope.Stop(); err != nil {
		a.failLocked(err, "Failed to stop scope")
		return err
	}
	if a.status != nil {
		a.status.SetIdle()
	}
	return nil
}

// Toggle starts a stopped scope and stops a running one
func (a *App) Toggle() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.scope.Running() {
		return a.stopLocked()
	}
	return a.startLocked()
}

func (a *App) SetFrequency(hz float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setFrequencyLocked(hz)
}

func (a *App) setFrequencyLocked(hz float64) error {
	if err := a.scope.SetFrequency(hz); err != nil {
		a.failLocked(err, "Failed to set frequency")
		return err
	}
	a.log.Info().Float64("frequency_hz", hz).Msg("Changed frequency")
	return nil
}

func (a *App) SetCycles(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setCyclesLocked(n)
}

func (a *App) setCyclesLocked(n int) error {
	if err := a.scope.SetCycles(n); err != nil {
		a.failLocked(err, "Failed to set cycles")
		return err
	}
	a.log.Info().Int("cycles", n).Msg("Changed cycles")
	return nil
}

// NudgeFrequency shifts the target by delta Hz, clamped to [MinFrequency, MaxFrequency]
func (a *App) NudgeFrequency(delta float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setFrequencyLocked(clampFrequency(a.scope.Frequency() + delta))
}

// NudgeSemitones transposes the target by whole semitones
func (a *App) NudgeSemitones(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setFrequencyLocked(clampFrequency(Transpose(a.scope.Frequency(), n)))
}

// NudgeCycles changes the visible cycle count, clamped to [MinCycles, MaxCycles]
func (a *App) NudgeCycles(delta int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.scope.Cycles() + delta
	if n < MinCycles {
		n = MinCycles
	}
	if n > MaxCycles {
		n = MaxCycles
	}
	return a.setCyclesLocked(n)
}

// SelectNote retargets the scope to a named note such as "E2"
func (a *App) SelectNote(name string) error {
	hz, err := NoteFrequency(name)
	if err != nil {
		return err
	}
	return a.SetFrequency(math.Round(hz*100) / 100)
}

// Notes returns the tuning presets offered by the hosts
func (a *App) Notes() []Tuning {
	return Tunings
}

// Summary describes the current settings in one line
func (a *App) Summary() string {
	hz := a.scope.Frequency()
	cycles := a.scope.Cycles()
	note, cents := NearestNote(hz)
	return fmt.Sprintf("%.2f Hz (%s %+.0f cents), %d cycles, %d samples",
		hz, note, cents, cycles, a.scope.WindowLength())
}

// OnEngineError receives failures from the sampling loop
func (a *App) OnEngineError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failLocked(err, "Scope stopped")
}

func (a *App) failLocked(err error, msg string) {
	a.lastErr = err
	a.log.Error().Err(err).Msg(msg)
	if a.status != nil {
		a.status.SetError(err)
	}
}

func (a *App) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *App) IsRunning() bool {
	return a.scope.Running()
}

func (a *App) Frame() scope.Frame {
	return a.scope.Frame()
}

// Shutdown stops the scope before the host releases the device. It gives up
// when ctx is done; the engine's own stop timeout still applies.
func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		done <- a.scope.Stop()
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Error().Err(err).Msg("Shutdown error")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clampFrequency(hz float64) float64 {
	return math.Min(MaxFrequency, math.Max(MinFrequency, hz))
}
