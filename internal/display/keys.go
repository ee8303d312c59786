package display

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
)

type controlKind int

const (
	controlStart controlKind = iota
	controlToggle
	controlFrequency
	controlSemitones
	controlCycles
	controlHelp
)

// control is one user request translated from a key press.
type control struct {
	kind  controlKind
	hz    float64
	steps int
}

func (c control) String() string {
	switch c.kind {
	case controlStart:
		return "start"
	case controlToggle:
		return "toggle"
	case controlFrequency:
		return fmt.Sprintf("frequency %+g Hz", c.hz)
	case controlSemitones:
		return fmt.Sprintf("semitones %+d", c.steps)
	case controlCycles:
		return fmt.Sprintf("cycles %+d", c.steps)
	case controlHelp:
		return "help"
	default:
		return "unknown"
	}
}

const keyHelp = `Keys: Up/Down change the frequency by 1 Hz (10 Hz with Shift). PageUp/PageDown move a semitone. Right/Left add or remove a cycle (10 with Shift). Space starts and stops. F1 or H toggles this help.`

// keyControl maps a key press to a control.
func keyControl(k ebiten.Key, shift bool) (control, bool) {
	hz, steps := 1.0, 1
	if shift {
		hz, steps = 10, 10
	}

	switch k {
	case ebiten.KeyArrowUp:
		return control{kind: controlFrequency, hz: hz}, true
	case ebiten.KeyArrowDown:
		return control{kind: controlFrequency, hz: -hz}, true
	case ebiten.KeyPageUp:
		return control{kind: controlSemitones, steps: 1}, true
	case ebiten.KeyPageDown:
		return control{kind: controlSemitones, steps: -1}, true
	case ebiten.KeyArrowRight:
		return control{kind: controlCycles, steps: steps}, true
	case ebiten.KeyArrowLeft:
		return control{kind: controlCycles, steps: -steps}, true
	case ebiten.KeySpace:
		return control{kind: controlToggle}, true
	case ebiten.KeyF1, ebiten.KeyH:
		return control{kind: controlHelp}, true
	}
	return control{}, false
}

func apply(ctrl Controller, c control) error {
	switch c.kind {
	case controlStart:
		return ctrl.Start()
	case controlToggle:
		return ctrl.Toggle()
	case controlFrequency:
		return ctrl.NudgeFrequency(c.hz)
	case controlSemitones:
		return ctrl.NudgeSemitones(c.steps)
	case controlCycles:
		return ctrl.NudgeCycles(c.steps)
	}
	return nil
}
