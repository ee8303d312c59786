package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func TestChunkerSpansBlocks(t *testing.T) {
	c := chunker{block: make([]int8, 4)}
	next := int8(0)
	reads := 0
	read := func() error {
		reads++
		for i := range c.block {
			c.block[i] = next
			next++
		}
		return nil
	}

	first := make([]int8, 6)
	if err := c.fill(first, read); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := make([]int8, 3)
	if err := c.fill(second, read); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int8{0, 1, 2, 3, 4, 5, 6, 7, 8}
	got := append(first, second...)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d mismatch: expected %d, got %d", i, want[i], got[i])
		}
	}
	if reads != 3 {
		t.Fatalf("expected 3 device reads, got %d", reads)
	}
}

func TestChunkerResetDropsRemainder(t *testing.T) {
	c := chunker{block: make([]int8, 4)}
	fillWith := int8(1)
	read := func() error {
		for i := range c.block {
			c.block[i] = fillWith
		}
		fillWith++
		return nil
	}

	buf := make([]int8, 1)
	if err := c.fill(buf, read); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.reset()

	if err := c.fill(buf, read); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf[0] != 2 {
		t.Fatalf("expected fresh block after reset, got sample %d", buf[0])
	}
}

func TestChunkerPropagatesReadError(t *testing.T) {
	c := chunker{block: make([]int8, 4)}
	boom := errors.New("boom")

	err := c.fill(make([]int8, 2), func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestClassifyReadError(t *testing.T) {
	if err := classifyReadError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := classifyReadError(portaudio.InputOverflowed); err != nil {
		t.Fatalf("expected overflow to be ignored, got %v", err)
	}
	if err := classifyReadError(portaudio.DeviceUnavailable); !errors.Is(err, ErrDeviceDisconnected) {
		t.Fatalf("expected ErrDeviceDisconnected, got %v", err)
	}
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "sample rate", err: portaudio.InvalidSampleRate, want: ErrFormatUnsupported},
		{name: "sample format", err: portaudio.SampleFormatNotSupported, want: ErrFormatUnsupported},
		{name: "channels", err: portaudio.InvalidChannelCount, want: ErrFormatUnsupported},
		{name: "busy", err: portaudio.DeviceUnavailable, want: ErrDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyOpenError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPickDevice(t *testing.T) {
	devices := []*portaudio.DeviceInfo{
		{Name: "Speakers", MaxOutputChannels: 2},
		{Name: "USB Mic", MaxInputChannels: 1},
	}

	d, err := pickDevice(devices, "USB Mic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name != "USB Mic" {
		t.Fatalf("expected USB Mic, got %s", d.Name)
	}

	if _, err := pickDevice(devices, "Speakers"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected output-only device to be rejected, got %v", err)
	}
	if _, err := pickDevice(nil, "USB Mic"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable with no devices, got %v", err)
	}
}

func TestNativeFrames(t *testing.T) {
	if got := nativeFrames(0); got != minNativeFrames {
		t.Errorf("expected %d, got %d", minNativeFrames, got)
	}
	if got := nativeFrames(time.Second); got != maxNativeFrames {
		t.Errorf("expected %d, got %d", maxNativeFrames, got)
	}
	if got := nativeFrames(20 * time.Millisecond); got != 882 {
		t.Errorf("expected 882, got %d", got)
	}
}

type fakeStream struct {
	calls    []string
	stopErr  error
	closeErr error
}

func (f *fakeStream) Stop() error {
	f.calls = append(f.calls, "stop")
	return f.stopErr
}

func (f *fakeStream) Close() error {
	f.calls = append(f.calls, "close")
	return f.closeErr
}

func TestReleaseReportsEveryFailure(t *testing.T) {
	stopErr := errors.New("stop failed")
	closeErr := errors.New("close failed")
	termErr := errors.New("terminate failed")
	s := &fakeStream{stopErr: stopErr, closeErr: closeErr}

	terminated := false
	err := release(s, true, func() error {
		terminated = true
		return termErr
	})

	for _, want := range []error{stopErr, closeErr, termErr} {
		if !errors.Is(err, want) {
			t.Errorf("expected %v in %v", want, err)
		}
	}
	if !terminated {
		t.Error("expected terminate after a failed close")
	}
	if len(s.calls) != 2 || s.calls[0] != "stop" || s.calls[1] != "close" {
		t.Errorf("expected stop then close, got %v", s.calls)
	}
}

func TestReleaseSkipsStopWhenIdle(t *testing.T) {
	s := &fakeStream{}
	if err := release(s, false, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.calls) != 1 || s.calls[0] != "close" {
		t.Errorf("expected only close, got %v", s.calls)
	}

	if err := release(nil, false, func() error { return nil }); err != nil {
		t.Errorf("unexpected error without a stream: %v", err)
	}
}
