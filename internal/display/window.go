// Package display is the ebiten host window: it blits the latest scope frame,
// shows the current settings and maps keys onto the app controls.
package display

import (
	"fmt"
	"image/color"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/petems/scope-tuner/internal/app"
	"github.com/petems/scope-tuner/internal/scope"
	"github.com/rs/zerolog"
	"golang.org/x/image/font/basicfont"
)

const (
	statusRefresh = 200 * time.Millisecond

	barHeight  = 20
	glyphWidth = 7
	lineHeight = 15
)

// Controller is the subset of app.App the window drives.
type Controller interface {
	Start() error
	Toggle() error
	NudgeFrequency(delta float64) error
	NudgeSemitones(n int) error
	NudgeCycles(delta int) error
	Summary() string
	LastError() error
	IsRunning() bool
	Frame() scope.Frame
}

type Window struct {
	ctrl   Controller
	log    zerolog.Logger
	width  int
	height int

	canvas   *ebiten.Image
	lastSeq  uint64
	drawn    bool
	started  bool
	showHelp bool

	// Reconfiguration blocks until the old sampling loop exits, so controls
	// and settings reads run on their own goroutine instead of the ebiten loop.
	actions chan control
	status  atomic.Pointer[snapshot]
}

type snapshot struct {
	summary string
	err     error
}

// New creates a window for a width x height scope canvas.
func New(ctrl Controller, width, height int, log zerolog.Logger) *Window {
	return &Window{
		ctrl:    ctrl,
		log:     log,
		width:   width,
		height:  height,
		actions: make(chan control, 16),
	}
}

// Run opens the window and blocks until it is closed. The scope is started
// when the window first updates and left for the caller to stop.
func (w *Window) Run() error {
	ebiten.SetWindowSize(w.width, w.height+barHeight)
	ebiten.SetWindowTitle("Scope Tuner")
	ebiten.SetWindowClosingHandled(true)
	ebiten.SetRunnableOnUnfocused(true)

	go w.dispatch()
	defer close(w.actions)

	if err := ebiten.RunGame(w); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	return nil
}

func (w *Window) dispatch() {
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	w.refreshStatus()
	for {
		select {
		case c, ok := <-w.actions:
			if !ok {
				return
			}
			if err := apply(w.ctrl, c); err != nil {
				w.log.Warn().Err(err).Str("control", c.String()).Msg("Control failed")
			}
		case <-ticker.C:
		}
		w.refreshStatus()
	}
}

func (w *Window) refreshStatus() {
	w.status.Store(&snapshot{summary: w.ctrl.Summary(), err: w.ctrl.LastError()})
}

func (w *Window) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}

	// Window is visible
	if !w.started {
		w.started = true
		w.actions <- control{kind: controlStart}
	}

	shift := ebiten.IsKeyPressed(ebiten.KeyShift)
	for _, k := range inpututil.AppendJustPressedKeys(nil) {
		c, ok := keyControl(k, shift)
		if !ok {
			continue
		}
		if c.kind == controlHelp {
			w.showHelp = !w.showHelp
			continue
		}
		select {
		case w.actions <- c:
		default:
			w.log.Debug().Str("control", c.String()).Msg("Dropped control, busy reconfiguring")
		}
	}
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	if w.canvas == nil {
		w.canvas = ebiten.NewImage(w.width, w.height)
	}

	f := w.ctrl.Frame()
	if f.Image != nil && (!w.drawn || f.Seq != w.lastSeq) {
		w.canvas.WritePixels(f.Image.Pix)
		w.lastSeq = f.Seq
		w.drawn = true
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(0, barHeight)
	screen.DrawImage(w.canvas, op)

	if st := w.status.Load(); st != nil {
		line := statusLine(st.summary, w.ctrl.IsRunning(), st.err)
		text.Draw(screen, line, basicfont.Face7x13, 6, 14, color.RGBA{190, 190, 190, 255})
	}

	if w.showHelp {
		w.drawHelp(screen)
	}
}

func (w *Window) drawHelp(screen *ebiten.Image) {
	ebitenutil.DrawRect(screen, 0, barHeight, float64(w.width), float64(w.height), color.RGBA{0, 0, 0, 210})

	lines := wrap(app.Instructions+"\n\n"+keyHelp, (w.width-12)/glyphWidth)
	for i, l := range lines {
		y := barHeight + lineHeight*(i+1)
		if y > barHeight+w.height {
			break
		}
		text.Draw(screen, l, basicfont.Face7x13, 6, y, color.RGBA{0, 220, 90, 255})
	}
}

func (w *Window) Layout(_, _ int) (int, int) {
	return w.width, w.height + barHeight
}

func statusLine(summary string, running bool, err error) string {
	state := "STOPPED"
	if running {
		state = "RUNNING"
	}
	line := fmt.Sprintf("%s  [%s]  F1 help", summary, state)
	if err != nil {
		line = fmt.Sprintf("%s  [%s]  %v", summary, state, err)
	}
	return line
}

// wrap breaks s into lines of at most cols characters on word boundaries.
func wrap(s string, cols int) []string {
	if cols < 1 {
		cols = 1
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		cur := words[0]
		for _, word := range words[1:] {
			if len(cur)+1+len(word) > cols {
				out = append(out, cur)
				cur = word
				continue
			}
			cur += " " + word
		}
		out = append(out, cur)
	}
	return out
}
