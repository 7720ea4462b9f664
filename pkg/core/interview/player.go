package interview

import (
	"log/slog"
	"sync"

	"github.com/hireloop/interview-go/pkg/audio"
)

// PlayerCallbacks receive playback lifecycle notifications. OnEnd fires
// exactly once per playback, whether it ran to completion or was stopped,
// and is the sole trigger that clears the session's speaking flag.
type PlayerCallbacks struct {
	OnStart func()
	OnEnd   func()
}

// Player buffers a received question clip and plays it through the playback
// device as soon as it is attached.
type Player struct {
	device audio.PlaybackDevice
	logger *slog.Logger

	mu        sync.Mutex
	playing   bool
	callbacks PlayerCallbacks
}

// NewPlayer creates a player over the given playback device.
func NewPlayer(device audio.PlaybackDevice, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{device: device, logger: logger}
}

// SetCallbacks installs the playback callbacks. Must be called before Play.
func (p *Player) SetCallbacks(callbacks PlayerCallbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = callbacks
}

// Play begins playback of the clip immediately. OnStart and OnEnd fire from
// a separate goroutine; OnEnd fires exactly once.
func (p *Player) Play(clip []byte) error {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		p.logger.Warn("playback already in progress, dropping clip", "bytes", len(clip))
		return nil
	}
	p.playing = true
	callbacks := p.callbacks
	p.mu.Unlock()

	if err := p.device.Open(); err != nil {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		return err
	}

	once := &sync.Once{}
	go func() {
		if callbacks.OnStart != nil {
			callbacks.OnStart()
		}
		if err := p.device.Write(clip); err != nil {
			p.logger.Warn("playback write failed", "error", err)
		}
		_ = p.device.Drain()
		p.fireEnd(once, callbacks)
	}()
	return nil
}

// Stop aborts playback. The pending OnEnd still fires exactly once.
func (p *Player) Stop() {
	p.mu.Lock()
	playing := p.playing
	p.mu.Unlock()
	if !playing {
		return
	}
	_ = p.device.Close()
}

// Playing reports whether a clip is currently being played.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) fireEnd(once *sync.Once, callbacks PlayerCallbacks) {
	once.Do(func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		if callbacks.OnEnd != nil {
			callbacks.OnEnd()
		}
	})
}
