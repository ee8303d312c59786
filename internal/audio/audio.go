package audio

import "errors"

// Fixed capture format. A sample is one signed byte.
const (
	SampleRate = 44100
	Channels   = 1
)

var (
	// ErrDeviceUnavailable is returned when no matching capture device exists.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrFormatUnsupported is returned when the device rejects 44.1kHz 8-bit mono.
	ErrFormatUnsupported = errors.New("capture format unsupported")
	// ErrDeviceDisconnected is returned when the device goes away mid-read.
	ErrDeviceDisconnected = errors.New("capture device disconnected")
)

// Source defines the interface for the capture device
type Source interface {
	Open() error
	StartStream() error
	StopStream() error
	Flush()
	ReadExact(buf []int8) error
	Streaming() bool
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID         string
	Name       string
	SampleRate float64
	Default    bool
}
