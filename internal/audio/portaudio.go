package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/scope-tuner/internal/config"
	"github.com/rs/zerolog"
)

const (
	minNativeFrames = 256
	maxNativeFrames = 8192
)

type portAudioSource struct {
	cfg config.AudioConfig
	log zerolog.Logger

	mu        sync.Mutex
	stream    *portaudio.Stream
	device    *portaudio.DeviceInfo
	streaming bool

	// Only touched by the reading goroutine.
	chunks chunker
}

// New creates a new PortAudio-based capture source. The device is not opened
// until Open is called.
func New(cfg config.AudioConfig, log zerolog.Logger) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioSource{cfg: cfg, log: log}, nil
}

func (p *portAudioSource) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return nil
	}

	device, err := p.findDevice()
	if err != nil {
		return err
	}

	frames := p.cfg.FramesPerBuffer
	if frames <= 0 {
		frames = nativeFrames(device.DefaultHighInputLatency)
	}

	// Open stream: mono, 44.1kHz, signed 8-bit
	block := make([]int8, frames)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: Channels,
			Latency:  device.DefaultHighInputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: len(block),
	}

	if err := portaudio.IsFormatSupported(params, block); err != nil {
		return classifyOpenError(err)
	}

	stream, err := portaudio.OpenStream(params, block)
	if err != nil {
		return classifyOpenError(err)
	}

	p.stream = stream
	p.device = device
	p.chunks = chunker{block: block}

	p.log.Info().
		Str("device", device.Name).
		Int("frames_per_buffer", frames).
		Msg("Opened capture device")

	return nil
}

func (p *portAudioSource) findDevice() (*portaudio.DeviceInfo, error) {
	if p.cfg.DeviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %v", ErrDeviceUnavailable, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate devices: %v", ErrDeviceUnavailable, err)
	}
	return pickDevice(devices, p.cfg.DeviceID)
}

func (p *portAudioSource) StartStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return fmt.Errorf("%w: device not open", ErrDeviceUnavailable)
	}
	if p.streaming {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("%w: failed to start stream: %v", ErrDeviceUnavailable, err)
	}
	p.streaming = true
	return nil
}

func (p *portAudioSource) StopStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || !p.streaming {
		return nil
	}
	p.streaming = false
	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return nil
}

// Flush drops the unread remainder of the last device block.
func (p *portAudioSource) Flush() {
	p.chunks.reset()
}

func (p *portAudioSource) ReadExact(buf []int8) error {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("%w: device not open", ErrDeviceDisconnected)
	}

	return p.chunks.fill(buf, func() error {
		return classifyReadError(stream.Read())
	})
}

func (p *portAudioSource) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streaming
}

func (p *portAudioSource) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:         d.Name,
				Name:       d.Name,
				SampleRate: d.DefaultSampleRate,
				Default:    d == defaultDevice,
			})
		}
	}

	return result, nil
}

// Close releases the stream and PortAudio. Callers must have stopped every
// reader first.
func (p *portAudioSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stream streamCloser
	if p.stream != nil {
		stream = p.stream
	}
	err := release(stream, p.streaming, portaudio.Terminate)
	p.stream = nil
	p.streaming = false
	return err
}

type streamCloser interface {
	Stop() error
	Close() error
}

// release stops and closes stream, then terminates, reporting every failure.
func release(stream streamCloser, streaming bool, terminate func() error) error {
	var errs []error
	if stream != nil {
		if streaming {
			if err := stream.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop stream: %w", err))
			}
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stream: %w", err))
		}
	}
	if err := terminate(); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate PortAudio: %w", err))
	}
	return errors.Join(errs...)
}

// pickDevice finds an input-capable device by name.
func pickDevice(devices []*portaudio.DeviceInfo, name string) (*portaudio.DeviceInfo, error) {
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, name)
}

// nativeFrames sizes a device block from its default input latency.
func nativeFrames(latency time.Duration) int {
	frames := int(math.Round(latency.Seconds() * SampleRate))
	switch {
	case frames < minNativeFrames:
		return minNativeFrames
	case frames > maxNativeFrames:
		return maxNativeFrames
	}
	return frames
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, portaudio.InvalidSampleRate),
		errors.Is(err, portaudio.SampleFormatNotSupported),
		errors.Is(err, portaudio.InvalidChannelCount):
		return fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

// classifyReadError treats input overflow as a short gap rather than a failure.
func classifyReadError(err error) error {
	if err == nil || errors.Is(err, portaudio.InputOverflowed) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
}

// chunker assembles exact-length reads out of fixed-size device blocks.
type chunker struct {
	block   []int8
	pending []int8
}

func (c *chunker) fill(dst []int8, read func() error) error {
	n := 0
	for n < len(dst) {
		if len(c.pending) == 0 {
			if err := read(); err != nil {
				return err
			}
			c.pending = c.block
		}
		k := copy(dst[n:], c.pending)
		c.pending = c.pending[k:]
		n += k
	}
	return nil
}

func (c *chunker) reset() {
	c.pending = nil
}
