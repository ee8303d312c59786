// Package scope owns the capture device and the sampling loop that turns
// fixed-length sample windows into published waveform frames.
//
// One engine mutex guards the settings, every state transition and the loop
// handle. The loop body (read, draw, publish) runs without it. Settings are
// only mutated while no loop is alive, so a running loop always reads a window
// sized for the same settings its horizontal scale was computed from; changing
// either requires restarting the loop.
package scope

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/scope-tuner/internal/audio"
	"github.com/petems/scope-tuner/internal/config"
	"github.com/petems/scope-tuner/internal/render"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidConfig is returned for a non-positive frequency or cycle count,
	// or settings whose window exceeds MaxWindow.
	ErrInvalidConfig = errors.New("invalid scope config")
	// ErrShutdownTimeout is returned when the sampling loop did not exit in time.
	ErrShutdownTimeout = errors.New("sampling loop did not stop in time")
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MaxWindow is the longest sample window the engine accepts.
const MaxWindow = audio.SampleRate * config.MaxWindowSeconds

func windowSamples(frequencyHz float64, cycles int) float64 {
	return math.Round(audio.SampleRate / frequencyHz * float64(cycles))
}

// WindowLength is the number of samples that holds cycles periods of
// frequencyHz at the capture sample rate, clamped to [1, MaxWindow].
func WindowLength(frequencyHz float64, cycles int) int {
	n := windowSamples(frequencyHz, cycles)
	switch {
	case !(n >= 1):
		return 1
	case n > MaxWindow:
		return MaxWindow
	}
	return int(n)
}

func validate(frequencyHz float64, cycles int) error {
	if err := validateFrequency(frequencyHz); err != nil {
		return err
	}
	if err := validateCycles(cycles); err != nil {
		return err
	}
	if n := windowSamples(frequencyHz, cycles); n > MaxWindow {
		return fmt.Errorf("%w: %d cycles of %v Hz need %.0f samples, limit is %d",
			ErrInvalidConfig, cycles, frequencyHz, n, MaxWindow)
	}
	return nil
}

func validateFrequency(frequencyHz float64) error {
	if !(frequencyHz > 0) || math.IsInf(frequencyHz, 0) {
		return fmt.Errorf("%w: frequency must be positive, got %v", ErrInvalidConfig, frequencyHz)
	}
	return nil
}

func validateCycles(cycles int) error {
	if cycles < 1 {
		return fmt.Errorf("%w: cycles must be at least 1, got %d", ErrInvalidConfig, cycles)
	}
	return nil
}

type Config struct {
	Source      audio.Source
	Width       int
	Height      int
	FrequencyHz float64
	Cycles      int
	StopTimeout time.Duration // 0 waits forever
	Logger      zerolog.Logger
	OnError     func(error) // Optional - called from the loop goroutine
}

// Frame is an immutable published raster and the settings it was drawn with.
type Frame struct {
	Image       *image.RGBA
	FrequencyHz float64
	Cycles      int
	Window      int
	Seq         uint64 // 0 until the first window is drawn
}

type Engine struct {
	src         audio.Source
	width       int
	height      int
	stopTimeout time.Duration
	log         zerolog.Logger
	onError     func(error)

	mu        sync.Mutex
	frequency float64
	cycles    int
	window    int
	loop      *loop

	state atomic.Int32
	frame atomic.Pointer[Frame]
	seq   atomic.Uint64
	live  atomic.Int32
}

func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, errors.New("scope: nil audio source")
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("%w: canvas must be at least 1x1, got %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	if err := validate(cfg.FrequencyHz, cfg.Cycles); err != nil {
		return nil, err
	}

	e := &Engine{
		src:         cfg.Source,
		width:       cfg.Width,
		height:      cfg.Height,
		stopTimeout: cfg.StopTimeout,
		log:         cfg.Logger,
		onError:     cfg.OnError,
		frequency:   cfg.FrequencyHz,
		cycles:      cfg.Cycles,
		window:      WindowLength(cfg.FrequencyHz, cfg.Cycles),
	}
	e.frame.Store(&Frame{
		Image:       render.NewCanvas(cfg.Width, cfg.Height),
		FrequencyHz: e.frequency,
		Cycles:      e.cycles,
		Window:      e.window,
	})
	return e, nil
}

// Start spawns the sampling loop. The device is opened and its stream started
// before Start returns; failures leave the engine Stopped. Calling Start on a
// running engine does nothing.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked()
}

func (e *Engine) startLocked() error {
	e.reapLocked()
	if e.loop != nil {
		if e.State() == Stopping {
			return fmt.Errorf("%w: previous loop is still reading", ErrShutdownTimeout)
		}
		return nil
	}

	e.state.Store(int32(Starting))
	if err := e.src.Open(); err != nil {
		e.state.Store(int32(Stopped))
		return err
	}
	if err := e.src.StartStream(); err != nil {
		e.state.Store(int32(Stopped))
		return err
	}

	l := newLoop(e.frequency, e.cycles, render.NewTrace(e.width, e.height, e.window))
	e.loop = l
	e.live.Add(1)
	go e.run(l)

	e.log.Info().
		Float64("frequency_hz", l.frequency).
		Int("cycles", l.cycles).
		Int("window", l.trace.Window()).
		Msg("Scope started")
	return nil
}

// Stop blocks until the sampling loop has exited and the device stream is
// stopped and flushed. The loop finishes its in-flight read first, so the wait
// is bounded by one WindowDuration on a healthy device. With a StopTimeout set
// a stalled device yields ErrShutdownTimeout instead of hanging; the engine
// stays Stopping until the loop finally exits.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	e.reapLocked()
	l := e.loop
	if l == nil {
		return nil
	}

	e.state.Store(int32(Stopping))
	l.requestStop()
	if err := e.wait(l); err != nil {
		e.log.Error().Err(err).Msg("Scope stop timed out")
		return err
	}

	e.loop = nil
	e.state.Store(int32(Stopped))
	e.log.Info().Msg("Scope stopped")
	return nil
}

func (e *Engine) wait(l *loop) error {
	if e.stopTimeout <= 0 {
		<-l.done
		return nil
	}

	timer := time.NewTimer(e.stopTimeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: waited %s for a %d sample read", ErrShutdownTimeout, e.stopTimeout, l.trace.Window())
	}
}

// reapLocked forgets a loop that has already exited on its own.
func (e *Engine) reapLocked() {
	if e.loop != nil && e.loop.exited() {
		e.loop = nil
		e.state.Store(int32(Stopped))
	}
}

// SetFrequency validates hz and applies it. A running engine is stopped
// (blocking as Stop does), reconfigured and restarted.
func (e *Engine) SetFrequency(hz float64) error {
	if err := validateFrequency(hz); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconfigureLocked(hz, e.cycles)
}

// SetCycles is SetFrequency for the number of visible cycles.
func (e *Engine) SetCycles(n int) error {
	if err := validateCycles(n); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconfigureLocked(e.frequency, n)
}

func (e *Engine) reconfigureLocked(hz float64, cycles int) error {
	// The window limit depends on both settings.
	if err := validate(hz, cycles); err != nil {
		return err
	}

	e.reapLocked()
	wasRunning := e.loop != nil
	if wasRunning {
		if err := e.stopLocked(); err != nil {
			return err
		}
	}

	e.frequency = hz
	e.cycles = cycles
	e.window = WindowLength(hz, cycles)
	e.log.Debug().
		Float64("frequency_hz", hz).
		Int("cycles", cycles).
		Int("window", e.window).
		Msg("Scope reconfigured")

	if wasRunning {
		return e.startLocked()
	}
	return nil
}

func (e *Engine) Frequency() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frequency
}

func (e *Engine) Cycles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycles
}

func (e *Engine) WindowLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

// WindowDuration is the capture time of one window, the worst-case stop latency.
func (e *Engine) WindowDuration() time.Duration {
	return time.Duration(float64(e.WindowLength()) / audio.SampleRate * float64(time.Second))
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) Running() bool {
	s := e.State()
	return s == Starting || s == Running
}

// Frame returns the latest published frame without blocking.
func (e *Engine) Frame() Frame {
	return *e.frame.Load()
}

func (e *Engine) Size() (width, height int) {
	return e.width, e.height
}

func (e *Engine) run(l *loop) {
	err := e.sample(l)
	if err != nil {
		e.state.CompareAndSwap(int32(Running), int32(Stopping))
		e.state.CompareAndSwap(int32(Starting), int32(Stopping))
	}

	if serr := e.src.StopStream(); serr != nil {
		e.log.Warn().Err(serr).Msg("Failed to stop capture stream")
	}
	e.src.Flush()
	e.live.Add(-1)
	close(l.done)

	e.mu.Lock()
	if e.loop == l {
		e.loop = nil
		e.state.Store(int32(Stopped))
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Error().Err(err).Msg("Sampling loop failed")
		if e.onError != nil {
			e.onError(err)
		}
	}
}

func (e *Engine) sample(l *loop) error {
	buf := make([]int8, l.trace.Window())
	back := render.NewCanvas(e.width, e.height)

	e.state.CompareAndSwap(int32(Starting), int32(Running))
	for !l.stopRequested() {
		if err := e.src.ReadExact(buf); err != nil {
			return err
		}
		l.trace.Draw(back, buf)
		e.publish(l, back)
	}
	return nil
}

func (e *Engine) publish(l *loop, back *image.RGBA) {
	img := image.NewRGBA(back.Rect)
	copy(img.Pix, back.Pix)
	e.frame.Store(&Frame{
		Image:       img,
		FrequencyHz: l.frequency,
		Cycles:      l.cycles,
		Window:      l.trace.Window(),
		Seq:         e.seq.Add(1),
	})
}

// loop is one sampling-loop instance. Its settings and trace never change.
type loop struct {
	frequency float64
	cycles    int
	trace     *render.Trace

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newLoop(frequency float64, cycles int, trace *render.Trace) *loop {
	return &loop{
		frequency: frequency,
		cycles:    cycles,
		trace:     trace,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (l *loop) requestStop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *loop) stopRequested() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *loop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
