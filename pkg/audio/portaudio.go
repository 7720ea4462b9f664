//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/hireloop/interview-go/pkg/core"
)

const portaudioFramesPerBuffer = 1024

// PortAudioCapture reads mono PCM from the default input device through
// portaudio. Build with -tags portaudio; requires cgo and the portaudio C
// library.
type PortAudioCapture struct {
	config Config

	mu       sync.Mutex
	stream   *portaudio.Stream
	frames   []int16
	leftover []byte
}

// NewPortAudioCapture creates a portaudio-backed capture device.
func NewPortAudioCapture(config Config) *PortAudioCapture {
	if config.SampleRate == 0 {
		config = DefaultConfig()
	}
	return &PortAudioCapture{
		config: config,
		frames: make([]int16, portaudioFramesPerBuffer),
	}
}

// Open acquires the default input device and starts the stream.
func (m *PortAudioCapture) Open(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return core.NewDeviceUnavailableError("initializing portaudio", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stream, err := portaudio.OpenDefaultStream(
		m.config.Channels,
		0,
		float64(m.config.SampleRate),
		portaudioFramesPerBuffer,
		m.frames,
	)
	if err != nil {
		portaudio.Terminate()
		return classifyCaptureError("opening input stream", "", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return classifyCaptureError("starting input stream", "", err)
	}
	m.stream = stream
	return nil
}

// Read reads captured PCM bytes as 16-bit little-endian samples. Only one
// goroutine may call Read at a time.
func (m *PortAudioCapture) Read(p []byte) (int, error) {
	m.mu.Lock()
	if len(m.leftover) == 0 {
		stream := m.stream
		if stream == nil {
			m.mu.Unlock()
			return 0, io.EOF
		}
		// The stream read blocks until a buffer fills; release the lock so
		// Close can stop the stream and unblock it.
		m.mu.Unlock()
		if err := stream.Read(); err != nil {
			return 0, err
		}
		m.mu.Lock()
		buf := m.leftover[:0]
		for _, sample := range m.frames {
			buf = append(buf, byte(sample), byte(sample>>8))
		}
		m.leftover = buf
	}

	n := copy(p, m.leftover)
	m.leftover = m.leftover[n:]
	m.mu.Unlock()
	return n, nil
}

// Close stops the stream and releases the device.
func (m *PortAudioCapture) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		_ = m.stream.Stop()
		_ = m.stream.Close()
		m.stream = nil
	}
	portaudio.Terminate()
	return nil
}
