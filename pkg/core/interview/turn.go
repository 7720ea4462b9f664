package interview

import (
	"log/slog"
)

// Turn is one question/answer exchange within a session.
type Turn struct {
	// QuestionID is the opaque server-assigned identifier.
	QuestionID string

	// Question is the delivered question text. For the final-message turn it
	// holds the server's invitation text.
	Question string

	// Clip is the synthesized question audio (voice modality only). It may
	// attach before, during, or after the turn is created.
	Clip []byte

	// Answer is the candidate's submitted answer text.
	Answer string

	// Transcription is the server transcription of the recorded answer
	// (voice modality only); it may differ from the literal answer text.
	Transcription string

	// Delivered is true once the question has been read or heard.
	Delivered bool

	// Answered is true once the candidate's response has been sent.
	Answered bool

	// Final marks the closing-message turn.
	Final bool
}

// open reports whether the turn still awaits a candidate response.
func (t *Turn) open() bool {
	return !t.Answered
}

// pendingAudioBuffer is a single-slot store reconciling out-of-order
// audio/question arrival. The protocol sends question audio as untagged
// binary frames and assumes at most one unmatched clip in flight; a fresh
// clip therefore overwrites any stale, unconsumed one.
type pendingAudioBuffer struct {
	clip []byte
	set  bool
}

func (b *pendingAudioBuffer) put(clip []byte, logger *slog.Logger) {
	if b.set && logger != nil {
		logger.Warn("overwriting unconsumed pending audio clip",
			"stale_bytes", len(b.clip), "new_bytes", len(clip))
	}
	b.clip = clip
	b.set = true
}

func (b *pendingAudioBuffer) take() ([]byte, bool) {
	if !b.set {
		return nil, false
	}
	clip := b.clip
	b.clip = nil
	b.set = false
	return clip, true
}
