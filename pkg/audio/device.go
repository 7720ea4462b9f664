// Package audio provides microphone capture and playback device backends
// for the interview engine.
package audio

import (
	"context"
	"strings"

	"github.com/hireloop/interview-go/pkg/core"
)

// Config specifies PCM audio format parameters.
type Config struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultConfig returns the standard capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c Config) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// CaptureDevice produces raw audio from a microphone-like source.
//
// Open acquires the device; implementations return *core.Error values with
// type permission_denied or device_unavailable so the session can classify
// the failure. Read blocks until data is available or the device is closed.
type CaptureDevice interface {
	Open(ctx context.Context) error
	Read(p []byte) (int, error)
	Close() error
}

// classifyCaptureError maps a device acquisition or read failure onto the
// error taxonomy: a declined microphone (OS permission prompt, pulse/ALSA
// access control) is permission_denied, everything else device_unavailable.
// detail carries backend diagnostics such as child-process stderr.
func classifyCaptureError(op, detail string, err error) *core.Error {
	text := strings.ToLower(detail)
	if err != nil {
		text += " " + strings.ToLower(err.Error())
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		op = op + ": " + detail
	}
	for _, marker := range []string{
		"permission denied",
		"access denied",
		"operation not permitted",
		"not authorized",
	} {
		if strings.Contains(text, marker) {
			if err != nil {
				op = op + ": " + err.Error()
			}
			return core.NewPermissionDeniedError(op)
		}
	}
	return core.NewDeviceUnavailableError(op, err)
}

// PlaybackDevice consumes raw audio for playback.
//
// Drain blocks until everything written so far has finished playing; Close
// aborts playback immediately. Both may be called at most once per Open.
type PlaybackDevice interface {
	Open() error
	Write(p []byte) error
	Drain() error
	Close() error
}
