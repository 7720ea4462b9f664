package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/hireloop/interview-go/pkg/core"
)

// stderrTail keeps the last chunk of a child process's stderr so failures
// can be classified after the fact.
type stderrTail struct {
	mu  sync.Mutex
	buf []byte
}

const stderrTailLimit = 2048

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailLimit {
		t.buf = t.buf[len(t.buf)-stderrTailLimit:]
	}
	return len(p), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// FFmpegCapture reads mono PCM from the default system microphone via an
// ffmpeg child process.
type FFmpegCapture struct {
	config Config

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *stderrTail
}

// NewFFmpegCapture creates an ffmpeg-backed capture device.
func NewFFmpegCapture(config Config) *FFmpegCapture {
	if config.SampleRate == 0 {
		config = DefaultConfig()
	}
	return &FFmpegCapture{config: config}
}

// Open starts the ffmpeg capture process.
func (m *FFmpegCapture) Open(ctx context.Context) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return core.NewDeviceUnavailableError("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)", err)
	}
	args, err := micFFmpegArgs(runtime.GOOS, m.config.SampleRate)
	if err != nil {
		return core.NewDeviceUnavailableError("mic capture not supported", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return core.NewDeviceUnavailableError("open ffmpeg stdout", err)
	}
	stderr := &stderrTail{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return classifyCaptureError("start ffmpeg mic capture", "", err)
	}
	m.cmd = cmd
	m.stdout = stdout
	m.stderr = stderr
	return nil
}

func micFFmpegArgs(goos string, sampleRate int) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// Read reads captured PCM bytes. When ffmpeg dies mid-capture the stream
// ends; whatever it wrote to stderr decides whether the failure counts as a
// declined microphone or an unavailable device.
func (m *FFmpegCapture) Read(p []byte) (int, error) {
	m.mu.Lock()
	stdout := m.stdout
	stderr := m.stderr
	m.mu.Unlock()
	if stdout == nil {
		return 0, io.EOF
	}
	n, err := stdout.Read(p)
	if err != nil && stderr != nil {
		if detail := stderr.String(); detail != "" {
			return n, classifyCaptureError("ffmpeg mic capture failed", detail, err)
		}
	}
	return n, err
}

// Close stops the capture process and releases the device.
func (m *FFmpegCapture) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	m.cmd = nil
	m.stdout = nil
	m.stderr = nil
	return nil
}

// FFplayPlayer plays raw PCM through an ffplay child process.
type FFplayPlayer struct {
	config Config

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplayPlayer creates an ffplay-backed playback device.
func NewFFplayPlayer(config Config) *FFplayPlayer {
	if config.SampleRate == 0 {
		config = Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
	}
	return &FFplayPlayer{config: config}
}

// Open starts the ffplay process.
func (p *FFplayPlayer) Open() error {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return core.NewDeviceUnavailableError("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", p.config.SampleRate),
		"-ac", fmt.Sprintf("%d", p.config.Channels),
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return core.NewDeviceUnavailableError("open ffplay stdin", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return core.NewDeviceUnavailableError("start ffplay", err)
	}
	p.cmd = cmd
	p.stdin = stdin
	return nil
}

// Write queues PCM bytes for playback.
func (p *FFplayPlayer) Write(data []byte) error {
	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return core.NewDeviceUnavailableError("ffplay stdin is not initialized", nil)
	}
	_, err := stdin.Write(data)
	return err
}

// Drain closes the input stream and waits for playback to finish.
func (p *FFplayPlayer) Drain() error {
	p.mu.Lock()
	stdin := p.stdin
	cmd := p.cmd
	p.stdin = nil
	p.mu.Unlock()
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil {
		return cmd.Wait()
	}
	return nil
}

// Close aborts playback immediately.
func (p *FFplayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
	return nil
}
