package tray

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/petems/scope-tuner/internal/render"
)

func TestEmojiForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{status: "running", want: "🟢"},
		{status: "idle", want: "⚫️"},
		{status: "error", want: "🔴"},
		{status: "unknown", want: "⚫️"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := emojiForStatus(tt.status); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTitleForStatus(t *testing.T) {
	if got := titleForStatus("running"); got != "〰 🟢" {
		t.Errorf("unexpected title %q", got)
	}
}

func TestEncodeIcon(t *testing.T) {
	samples := make([]int8, 1002)
	for i := range samples {
		samples[i] = int8((i % 100) - 50)
	}
	frame := render.Render(samples, 700, 256)

	data, err := encodeIcon(frame, iconSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("icon is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != iconSize || b.Dy() != iconSize {
		t.Errorf("expected %dx%d icon, got %dx%d", iconSize, iconSize, b.Dx(), b.Dy())
	}
}

func TestEncodeIconRejectsEmptyFrame(t *testing.T) {
	if _, err := encodeIcon(nil, iconSize); err == nil {
		t.Error("expected error for nil frame")
	}
	if _, err := encodeIcon(image.NewRGBA(image.Rect(0, 0, 0, 0)), iconSize); err == nil {
		t.Error("expected error for empty frame")
	}
}
