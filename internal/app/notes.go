package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A4 is the reference pitch for equal temperament.
const A4 = 440.0

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Tuning is a named set of open-string notes.
type Tuning struct {
	Name  string
	Notes []string
}

// Tunings lists the string presets offered by the hosts.
var Tunings = []Tuning{
	{Name: "Guitar", Notes: []string{"E2", "A2", "D3", "G3", "B3", "E4"}},
	{Name: "Bass", Notes: []string{"E1", "A1", "D2", "G2"}},
	{Name: "Violin", Notes: []string{"G3", "D4", "A4", "E5"}},
	{Name: "Ukulele", Notes: []string{"G4", "C4", "E4", "A4"}},
}

// NoteFrequency parses a note such as "A4", "C#3" or "Bb2" into Hz.
func NoteFrequency(name string) (float64, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid note %q", name)
	}

	idx := strings.Index("C D EF G A B", strings.ToUpper(s[:1]))
	if idx < 0 || s[0] == ' ' {
		return 0, fmt.Errorf("invalid note %q", name)
	}
	rest := s[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		idx++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		idx--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in note %q", name)
	}

	midi := (octave+1)*12 + idx
	return A4 * math.Pow(2, float64(midi-69)/12), nil
}

// NearestNote names the equal-tempered note closest to hz and the offset in cents.
func NearestNote(hz float64) (string, float64) {
	if !(hz > 0) {
		return "", 0
	}
	semis := math.Round(12 * math.Log2(hz/A4))
	ref := A4 * math.Pow(2, semis/12)
	cents := 1200 * math.Log2(hz/ref)

	midi := 69 + int(semis)
	octave := floorDiv(midi, 12) - 1
	return noteNames[midi-floorDiv(midi, 12)*12] + strconv.Itoa(octave), cents
}

// Transpose moves hz by the given number of equal-tempered semitones.
func Transpose(hz float64, semitones int) float64 {
	return hz * math.Pow(2, float64(semitones)/12)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
