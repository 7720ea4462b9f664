package interview

// Event is the interface for all session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// ConnectedEvent is emitted when the duplex connection is established.
type ConnectedEvent struct{}

func (e *ConnectedEvent) EventType() string { return "session.connected" }

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// QuestionDeliveredEvent is emitted when a question turn is created.
// In voice modality delivery completes only once the paired clip has
// finished playing (or no clip exists).
type QuestionDeliveredEvent struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	HasClip    bool   `json:"has_clip,omitempty"`
}

func (e *QuestionDeliveredEvent) EventType() string { return "question.delivered" }

// ClipAttachedEvent is emitted when a binary clip is matched to its turn.
type ClipAttachedEvent struct {
	QuestionID string `json:"question_id"`
	Bytes      int    `json:"bytes"`
}

func (e *ClipAttachedEvent) EventType() string { return "clip.attached" }

// PlaybackStartedEvent is emitted when question audio starts playing.
type PlaybackStartedEvent struct {
	QuestionID string `json:"question_id"`
}

func (e *PlaybackStartedEvent) EventType() string { return "playback.started" }

// PlaybackEndedEvent is emitted when question audio finishes; it is the sole
// trigger that re-enables the recording control.
type PlaybackEndedEvent struct {
	QuestionID string `json:"question_id"`
}

func (e *PlaybackEndedEvent) EventType() string { return "playback.ended" }

// RecordingStartedEvent is emitted when microphone capture begins.
type RecordingStartedEvent struct{}

func (e *RecordingStartedEvent) EventType() string { return "recording.started" }

// RecordingEndedEvent is emitted exactly once per recording.
type RecordingEndedEvent struct {
	Bytes int `json:"bytes"`
}

func (e *RecordingEndedEvent) EventType() string { return "recording.ended" }

// AnswerSentEvent is emitted after an answer or final message goes out.
type AnswerSentEvent struct {
	QuestionID string `json:"question_id,omitempty"`
	Text       string `json:"text"`
	Final      bool   `json:"final,omitempty"`
}

func (e *AnswerSentEvent) EventType() string { return "answer.sent" }

// TranscriptionEvent carries the server transcription of a recorded answer.
type TranscriptionEvent struct {
	QuestionID string `json:"question_id,omitempty"`
	Text       string `json:"text"`
}

func (e *TranscriptionEvent) EventType() string { return "transcription" }

// InfoEvent surfaces an informational server message.
type InfoEvent struct {
	Text string `json:"text"`
}

func (e *InfoEvent) EventType() string { return "info" }

// FinalMessageRequestedEvent is emitted when the server invites a closing
// message from the candidate.
type FinalMessageRequestedEvent struct {
	Text string `json:"text"`
}

func (e *FinalMessageRequestedEvent) EventType() string { return "final_message.requested" }

// CompletedEvent is emitted when the interview finishes.
type CompletedEvent struct {
	Text string `json:"text,omitempty"`
}

func (e *CompletedEvent) EventType() string { return "session.completed" }

// ErrorEvent is emitted when an error reaches the session.
type ErrorEvent struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SessionClosedEvent is emitted when the session ends.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }
