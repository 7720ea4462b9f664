package audio

import (
	"errors"
	"strings"
	"testing"

	"github.com/hireloop/interview-go/pkg/core"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.BitsPerSample != 16 {
		t.Fatalf("DefaultConfig()=%+v", cfg)
	}
}

func TestConfigByteMath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if got := cfg.BytesPerSecond(); got != 32000 {
		t.Fatalf("BytesPerSecond()=%d", got)
	}

	// One second of 16kHz mono s16le audio.
	if got := cfg.DurationMs(32000); got != 1000 {
		t.Fatalf("DurationMs(32000)=%d", got)
	}
	if got := cfg.BytesForDurationMs(250); got != 8000 {
		t.Fatalf("BytesForDurationMs(250)=%d", got)
	}

	stereo := Config{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
	if got := stereo.BytesPerSecond(); got != 192000 {
		t.Fatalf("stereo BytesPerSecond()=%d", got)
	}
}

func TestClassifyCaptureError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		detail   string
		err      error
		wantType core.ErrorType
	}{
		{
			name:     "pulse access denied stderr",
			detail:   "default: Access denied\npulse: unable to open audio device",
			wantType: core.ErrPermissionDenied,
		},
		{
			name:     "avfoundation not permitted stderr",
			detail:   "[avfoundation] operation not permitted",
			wantType: core.ErrPermissionDenied,
		},
		{
			name:     "permission denied error value",
			err:      errors.New("open /dev/snd: permission denied"),
			wantType: core.ErrPermissionDenied,
		},
		{
			name:     "missing device",
			detail:   "default: No such device",
			wantType: core.ErrDeviceUnavailable,
		},
		{
			name:     "bare stream error",
			err:      errors.New("input overflowed"),
			wantType: core.ErrDeviceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyCaptureError("mic capture failed", tt.detail, tt.err)
			if got.Type != tt.wantType {
				t.Fatalf("type=%s, want %s (message: %s)", got.Type, tt.wantType, got.Message)
			}
			if !got.Recoverable() {
				t.Fatalf("capture errors must stay recoverable, got %v", got)
			}
			if !strings.HasPrefix(got.Message, "mic capture failed") {
				t.Fatalf("message=%q, want the operation prefix", got.Message)
			}
		})
	}
}
