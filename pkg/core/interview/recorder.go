package interview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hireloop/interview-go/pkg/audio"
	"github.com/hireloop/interview-go/pkg/core"
)

// RecorderCallbacks receive capture progress. OnChunk fires roughly once per
// chunk interval while recording and once more for the final partial chunk;
// OnEnded fires exactly once per recording; OnError fires if the device
// fails mid-capture.
type RecorderCallbacks struct {
	OnChunk func(chunk []byte)
	OnEnded func(clip []byte)
	OnError func(err error)
}

// Recorder owns the microphone for the session. It produces an incremental
// chunk sequence while recording and the fully assembled clip on End. End is
// idempotent: the one-shot latch re-arms only when the next recording
// begins.
type Recorder struct {
	device   audio.CaptureDevice
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	active    bool
	ended     bool
	pending   []byte
	clip      []byte
	stop      chan struct{}
	wg        *sync.WaitGroup
	callbacks RecorderCallbacks
}

// NewRecorder creates a recorder over the given capture device.
func NewRecorder(device audio.CaptureDevice, interval time.Duration, logger *slog.Logger) *Recorder {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{device: device, interval: interval, logger: logger}
}

// SetCallbacks installs the capture callbacks. Must be called before Begin.
func (r *Recorder) SetCallbacks(callbacks RecorderCallbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = callbacks
}

// Begin acquires the device and starts producing chunks. It arms the end
// latch; the error is a permission_denied or device_unavailable *core.Error
// when acquisition fails.
func (r *Recorder) Begin(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return core.NewInvalidRequestError("recording already in progress")
	}
	r.mu.Unlock()

	if err := r.device.Open(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = true
	r.ended = false
	r.pending = nil
	r.clip = nil
	stop := make(chan struct{})
	r.stop = stop
	wg := &sync.WaitGroup{}
	r.wg = wg
	r.mu.Unlock()

	wg.Add(2)
	go r.readLoop(stop, wg)
	go r.tickLoop(stop, wg)
	return nil
}

func (r *Recorder) readLoop(stop chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := r.device.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.pending = append(r.pending, buf[:n]...)
			r.clip = append(r.clip, buf[:n]...)
			r.mu.Unlock()
		}
		if err != nil {
			select {
			case <-stop:
				// Device released by End; not an error.
			default:
				r.logger.Warn("capture device read failed", "error", err)
				r.mu.Lock()
				onError := r.callbacks.OnError
				r.mu.Unlock()
				if onError != nil {
					wrapped := err
					var coreErr *core.Error
					if !errors.As(err, &coreErr) {
						wrapped = core.NewDeviceUnavailableError("capture read failed", err)
					}
					// End joins this goroutine, so the callback gets its own:
					// it must be able to call End without deadlocking.
					go onError(wrapped)
				}
			}
			return
		}
	}
}

func (r *Recorder) tickLoop(stop chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.flushChunk()
		}
	}
}

func (r *Recorder) flushChunk() {
	r.mu.Lock()
	chunk := r.pending
	r.pending = nil
	onChunk := r.callbacks.OnChunk
	r.mu.Unlock()
	if len(chunk) > 0 && onChunk != nil {
		onChunk(chunk)
	}
}

// End stops capture, flushes the final partial chunk, releases the device
// and fires OnEnded. It returns true exactly once per recording; any further
// call (or a call with no active recording) is a no-op returning false so
// state transitions are never double-applied.
func (r *Recorder) End() bool {
	r.mu.Lock()
	if !r.active || r.ended {
		r.mu.Unlock()
		return false
	}
	r.ended = true
	r.active = false
	stop := r.stop
	wg := r.wg
	r.mu.Unlock()

	close(stop)
	_ = r.device.Close()
	wg.Wait()

	r.mu.Lock()
	chunk := r.pending
	r.pending = nil
	clip := r.clip
	callbacks := r.callbacks
	r.mu.Unlock()

	if len(chunk) > 0 && callbacks.OnChunk != nil {
		callbacks.OnChunk(chunk)
	}
	if callbacks.OnEnded != nil {
		callbacks.OnEnded(clip)
	}
	return true
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Clip returns the assembled recording so far.
func (r *Recorder) Clip() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.clip...)
}
