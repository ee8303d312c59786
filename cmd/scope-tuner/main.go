package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/petems/scope-tuner/internal/app"
	"github.com/petems/scope-tuner/internal/audio"
	"github.com/petems/scope-tuner/internal/config"
	"github.com/petems/scope-tuner/internal/display"
	"github.com/petems/scope-tuner/internal/logging"
	"github.com/petems/scope-tuner/internal/permissions"
	"github.com/petems/scope-tuner/internal/scope"
	"github.com/petems/scope-tuner/internal/tray"
	"github.com/rs/zerolog"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", config.Path(), "path to the JSON config file")
	ui := flag.String("ui", "", "host to run: window or tray")
	freq := flag.Float64("freq", 0, "target frequency in Hz")
	cycles := flag.Int("cycles", 0, "number of cycles to show")
	device := flag.String("device", "", "input device name")
	listDevices := flag.Bool("list-devices", false, "print input devices and exit")
	flag.Parse()

	// Load config from XDG/Library/AppData
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	applyFlags(cfg, *ui, *freq, *cycles, *device)

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// macOS requires explicit microphone approval before capture returns anything but silence
	if err := permissions.EnsurePermissions(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	source, err := audio.New(cfg.Audio, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}

	if *listDevices {
		printDevices(source)
		if err := source.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close audio")
		}
		return
	}

	// application is set before any host can start the engine
	var application *app.App
	engine, err := scope.New(scope.Config{
		Source:      source,
		Width:       cfg.Scope.Width,
		Height:      cfg.Scope.Height,
		FrequencyHz: cfg.Scope.FrequencyHz,
		Cycles:      cfg.Scope.Cycles,
		StopTimeout: cfg.Scope.StopTimeout(),
		Logger:      log,
		OnError: func(err error) {
			application.OnEngineError(err)
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scope")
	}

	application = app.New(app.Config{
		Scope:  engine,
		Config: cfg,
		Logger: log,
	})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("ui", cfg.UI).
		Str("settings", application.Summary()).
		Msg("Scope tuner starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Signal and host exit may race; the device is released once
	var once sync.Once
	var shutdownErr error
	stop := func() error {
		once.Do(func() { shutdownErr = shutdown(application, source, log) })
		return shutdownErr
	}

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := stop(); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}()

	// Hosts MUST run on main thread
	switch cfg.UI {
	case config.UITray:
		trayUI := tray.New(application, log)
		application.SetStatusUpdater(trayUI)
		if err := trayUI.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Tray error")
		}
	default:
		window := display.New(application, cfg.Scope.Width, cfg.Scope.Height, log)
		if err := window.Run(); err != nil {
			log.Error().Err(err).Msg("Window error")
		}
	}

	if err := stop(); err != nil {
		os.Exit(1)
	}
}

type stopper interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops sampling and only then releases the device. If the stop does
// not complete a loop may still be inside a device read, so the device is left
// open for process exit to reclaim.
func shutdown(s stopper, source io.Closer, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Scope did not stop, leaving audio device open")
		return err
	}
	if err := source.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audio")
		return err
	}
	return nil
}

func applyFlags(cfg *config.Config, ui string, freq float64, cycles int, device string) {
	if ui != "" {
		cfg.UI = ui
	}
	if freq != 0 {
		cfg.Scope.FrequencyHz = freq
	}
	if cycles != 0 {
		cfg.Scope.Cycles = cycles
	}
	if device != "" {
		cfg.Audio.DeviceID = device
	}
}

func printDevices(source audio.Source) {
	devices, err := source.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list devices: %v\n", err)
		os.Exit(1)
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %s (%.0f Hz)\n", marker, d.Name, d.SampleRate)
	}
}
