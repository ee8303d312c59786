//go:build !darwin

package permissions

import "errors"

// ErrMicrophoneDenied is never returned off macOS; device access is left to the OS.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// EnsurePermissions is a no-op on non-macOS platforms.
func EnsurePermissions() error {
	return nil
}
