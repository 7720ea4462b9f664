package interview

import (
	"log/slog"
	"time"

	"github.com/hireloop/interview-go/pkg/audio"
)

// Modality is how a session conducts its Q&A: typed text or spoken audio.
// It is resolved once from the ticket and never renegotiated.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
)

// State represents the current session state.
type State int

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateConnecting is while the duplex connection is being established.
	StateConnecting
	// StateAwaitingFirstQuestion is after the start frame, before the first
	// question acknowledges the session.
	StateAwaitingFirstQuestion
	// StateWaitingForAI is while a server response is outstanding.
	StateWaitingForAI
	// StateQuestionDelivered is the instant a question turn is created.
	StateQuestionDelivered
	// StateAudioPlaying is while question audio is being played (voice).
	StateAudioPlaying
	// StateRecordingEnabled is when the candidate may start recording (voice).
	StateRecordingEnabled
	// StateRecording is while the microphone is capturing (voice).
	StateRecording
	// StateTranscribing is after audio_end, awaiting the transcription (voice).
	StateTranscribing
	// StateAwaitingInput is when the candidate may type an answer (text).
	StateAwaitingInput
	// StateFinalMessageRequested is when a closing message is invited.
	StateFinalMessageRequested
	// StateError is a recoverable error state; the user may reconnect.
	StateError
	// StateComplete is the terminal completed state.
	StateComplete
	// StateClosed is after teardown.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingFirstQuestion:
		return "AWAITING_FIRST_QUESTION"
	case StateWaitingForAI:
		return "WAITING_FOR_AI"
	case StateQuestionDelivered:
		return "QUESTION_DELIVERED"
	case StateAudioPlaying:
		return "AUDIO_PLAYING"
	case StateRecordingEnabled:
		return "RECORDING_ENABLED"
	case StateRecording:
		return "RECORDING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateAwaitingInput:
		return "AWAITING_INPUT"
	case StateFinalMessageRequested:
		return "FINAL_MESSAGE_REQUESTED"
	case StateError:
		return "ERROR"
	case StateComplete:
		return "COMPLETE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionConfig holds all configuration for one interview session.
type SessionConfig struct {
	// Ticket is the opaque credential for one authorized interview attempt.
	Ticket string

	// Modality is fixed for the lifetime of the session.
	Modality Modality

	// Display metadata, fetched once at session start and immutable after.
	Candidate string
	JobTitle  string
	Company   string

	// ChunkInterval is how often recorded audio chunks are emitted.
	// Default: 1s.
	ChunkInterval time.Duration

	// Audio is the capture format. Defaults to audio.DefaultConfig.
	Audio audio.Config

	// Logger receives engine diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults for
// the given ticket.
func DefaultSessionConfig(ticket string) SessionConfig {
	return SessionConfig{
		Ticket:        ticket,
		Modality:      ModalityText,
		ChunkInterval: time.Second,
		Audio:         audio.DefaultConfig(),
	}
}

func (c *SessionConfig) applyDefaults() {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = time.Second
	}
	if c.Audio.SampleRate == 0 {
		c.Audio = audio.DefaultConfig()
	}
	if c.Modality == "" {
		c.Modality = ModalityText
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
