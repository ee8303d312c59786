package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/scope-tuner/internal/app"
	"github.com/rs/zerolog"
)

const iconRefresh = 250 * time.Millisecond

// cyclePresets are the cycle counts offered in the menu.
var cyclePresets = []int{1, 5, 10, 20, 50, 100}

type UI struct {
	app *app.App
	log zerolog.Logger

	quit     chan struct{}
	quitOnce sync.Once

	// Menu items
	mStartStop *systray.MenuItem
	mSummary   *systray.MenuItem
	mFrequency *systray.MenuItem
	mCycles    *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetRunning() {
	u.updateStatus("running")
}

func (u *UI) SetError(err error) {
	u.log.Debug().Err(err).Msg("Showing error status")
	u.updateStatus("error")
}

func New(application *app.App, log zerolog.Logger) *UI {
	return &UI{
		app:  application,
		log:  log,
		quit: make(chan struct{}),
	}
}

// Run blocks on the tray event loop until Quit is chosen.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			systray.Quit()
		case <-u.quit:
		}
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Instrument tuner oscilloscope")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Scope", "Start or stop sampling")
	u.mSummary = systray.AddMenuItem(u.app.Summary(), "Current settings")
	u.mSummary.Disable()
	systray.AddSeparator()

	u.mFrequency = systray.AddMenuItem("Frequency", "Choose the target pitch")
	mUp := u.mFrequency.AddSubMenuItem("+1 Hz", "Raise the target by 1 Hz")
	mDown := u.mFrequency.AddSubMenuItem("-1 Hz", "Lower the target by 1 Hz")
	mSemiUp := u.mFrequency.AddSubMenuItem("+1 semitone", "Raise the target by a semitone")
	mSemiDown := u.mFrequency.AddSubMenuItem("-1 semitone", "Lower the target by a semitone")
	u.buildTuningMenu()

	u.mCycles = systray.AddMenuItem("Cycles", "Number of cycles on screen")
	u.buildCyclesMenu()

	systray.AddSeparator()
	mCopy := systray.AddMenuItem("Copy Settings", "Copy the current settings to the clipboard")
	mHelp := systray.AddMenuItem("Instructions", "How to read the display")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Menu is up, start sampling
	if err := u.app.Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to start scope from tray")
	}
	u.refreshMenu()

	go u.handleEvents(mUp, mDown, mSemiUp, mSemiDown, mCopy, mHelp, mQuit)
	go u.refreshIcon()
}

func (u *UI) handleEvents(mUp, mDown, mSemiUp, mSemiDown, mCopy, mHelp, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.run("toggle", u.app.Toggle)
		case <-mUp.ClickedCh:
			u.run("frequency +1 Hz", func() error { return u.app.NudgeFrequency(1) })
		case <-mDown.ClickedCh:
			u.run("frequency -1 Hz", func() error { return u.app.NudgeFrequency(-1) })
		case <-mSemiUp.ClickedCh:
			u.run("semitone up", func() error { return u.app.NudgeSemitones(1) })
		case <-mSemiDown.ClickedCh:
			u.run("semitone down", func() error { return u.app.NudgeSemitones(-1) })
		case <-mCopy.ClickedCh:
			u.copySettings()
		case <-mHelp.ClickedCh:
			u.showInstructions()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		case <-u.quit:
			return
		}
	}
}

func (u *UI) run(name string, fn func() error) {
	if err := fn(); err != nil {
		u.log.Warn().Err(err).Str("control", name).Msg("Tray control failed")
	}
	u.refreshMenu()
}

func (u *UI) buildTuningMenu() {
	for _, tuning := range u.app.Notes() {
		group := u.mFrequency.AddSubMenuItem(tuning.Name, tuning.Name+" open strings")
		for _, note := range tuning.Notes {
			item := group.AddSubMenuItem(note, "")

			go func(n string, menuItem *systray.MenuItem) {
				for {
					select {
					case <-menuItem.ClickedCh:
						u.run("note "+n, func() error { return u.app.SelectNote(n) })
					case <-u.quit:
						return
					}
				}
			}(note, item)
		}
	}
}

func (u *UI) buildCyclesMenu() {
	cycleItems := make(map[int]*systray.MenuItem)

	for _, n := range cyclePresets {
		item := u.mCycles.AddSubMenuItem(fmt.Sprintf("%d cycles", n), "")
		cycleItems[n] = item

		go func(c int, menuItem *systray.MenuItem) {
			for {
				select {
				case <-menuItem.ClickedCh:
				case <-u.quit:
					return
				}
				// Uncheck all other items
				for k, itm := range cycleItems {
					if k != c {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.run(fmt.Sprintf("cycles %d", c), func() error { return u.app.SetCycles(c) })
			}
		}(n, item)
	}
}

func (u *UI) refreshMenu() {
	if u.mStartStop == nil {
		return
	}
	if u.app.IsRunning() {
		u.mStartStop.SetTitle("Stop Scope")
	} else {
		u.mStartStop.SetTitle("Start Scope")
	}
	summary := u.app.Summary()
	u.mSummary.SetTitle(summary)
	systray.SetTooltip(summary)
}

// refreshIcon mirrors the newest frame into the tray icon.
func (u *UI) refreshIcon() {
	ticker := time.NewTicker(iconRefresh)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ticker.C:
		case <-u.quit:
			return
		}

		f := u.app.Frame()
		if f.Image == nil || f.Seq == last {
			continue
		}
		last = f.Seq

		icon, err := encodeIcon(f.Image, iconSize)
		if err != nil {
			u.log.Debug().Err(err).Msg("Failed to encode tray icon")
			continue
		}
		systray.SetIcon(icon)
	}
}

func (u *UI) copySettings() {
	summary := u.app.Summary()
	if err := clipboard.WriteAll(summary); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy settings")
		return
	}
	u.log.Info().Str("settings", summary).Msg("Copied settings to clipboard")
}

func (u *UI) showInstructions() {
	// TODO: Show instructions in a native dialog
	fmt.Println(app.Instructions)
}

func (u *UI) onExit() {
	u.quitOnce.Do(func() { close(u.quit) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.app.Shutdown(ctx); err != nil {
		u.log.Error().Err(err).Msg("Scope did not stop cleanly")
	}
}

// updateStatus sets the tray title with a waveform glyph and status indicator
func (u *UI) updateStatus(status string) {
	systray.SetTitle(titleForStatus(status))
	u.refreshMenu()
}

func titleForStatus(status string) string {
	return fmt.Sprintf("〰 %s", emojiForStatus(status))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "running":
		return "🟢" // Green - sampling
	case "idle":
		return "⚫️" // Black - stopped
	case "error":
		return "🔴" // Red - device or settings error
	default:
		return "⚫️"
	}
}
