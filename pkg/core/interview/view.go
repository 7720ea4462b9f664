package interview

import (
	"github.com/hireloop/interview-go/pkg/core"
)

// Snapshot is one consistent read of session state, taken under the session
// lock. It is the only input a presentation layer needs.
type Snapshot struct {
	State    State
	Modality Modality

	Candidate string
	JobTitle  string
	Company   string

	Turns            []Turn
	AwaitingResponse bool
	Speaking         bool
	Recording        bool
	InputEnabled     bool
	CompletionText   string
	Err              *core.Error
}

// MessageRole identifies who a transcript message belongs to.
type MessageRole string

const (
	RoleInterviewer MessageRole = "interviewer"
	RoleCandidate   MessageRole = "candidate"
)

// Message is one transcript entry.
type Message struct {
	Role MessageRole
	Text string
	// Pending marks the typing-style indicator shown while a server
	// response is outstanding.
	Pending bool
}

// ComposerMode selects which input control the candidate sees.
type ComposerMode int

const (
	// ComposerHidden shows no input control.
	ComposerHidden ComposerMode = iota
	// ComposerText shows a text input for typed answers.
	ComposerText
	// ComposerRecord shows the start-recording control.
	ComposerRecord
	// ComposerStop shows the stop-recording control.
	ComposerStop
)

// Composer describes the input control area.
type Composer struct {
	Mode        ComposerMode
	Enabled     bool
	Placeholder string
}

// BannerKind classifies the status banner.
type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerInfo
	BannerError
)

// Banner is a transient status strip above the transcript.
type Banner struct {
	Kind BannerKind
	Text string
}

// View is a render-ready projection of a session snapshot. It contains no
// behavior; a UI can draw it without consulting the session again.
type View struct {
	Title    string
	Subtitle string
	Messages []Message
	Composer Composer
	Badge    string
	Banner   Banner
	Done     bool
}

// Project derives the candidate-facing view from a snapshot. It is a pure
// function: same snapshot, same view.
func Project(snap Snapshot) View {
	v := View{
		Title:    projectTitle(snap),
		Subtitle: snap.Candidate,
		Messages: projectMessages(snap),
		Composer: projectComposer(snap),
		Badge:    projectBadge(snap),
		Banner:   projectBanner(snap),
		Done:     snap.State == StateComplete || snap.State == StateClosed,
	}
	return v
}

func projectTitle(snap Snapshot) string {
	switch {
	case snap.JobTitle != "" && snap.Company != "":
		return snap.JobTitle + " - " + snap.Company
	case snap.JobTitle != "":
		return snap.JobTitle
	case snap.Company != "":
		return snap.Company
	default:
		return "Interview"
	}
}

func projectMessages(snap Snapshot) []Message {
	msgs := make([]Message, 0, len(snap.Turns)*2+1)
	for _, turn := range snap.Turns {
		if turn.Question != "" {
			msgs = append(msgs, Message{Role: RoleInterviewer, Text: turn.Question})
		}
		switch {
		case turn.Transcription != "":
			// The server transcription is authoritative for voice answers.
			msgs = append(msgs, Message{Role: RoleCandidate, Text: turn.Transcription})
		case turn.Answer != "":
			msgs = append(msgs, Message{Role: RoleCandidate, Text: turn.Answer})
		}
	}
	if snap.AwaitingResponse && snap.State != StateComplete {
		msgs = append(msgs, Message{Role: RoleInterviewer, Pending: true})
	}
	if snap.CompletionText != "" {
		msgs = append(msgs, Message{Role: RoleInterviewer, Text: snap.CompletionText})
	}
	return msgs
}

func projectComposer(snap Snapshot) Composer {
	switch snap.State {
	case StateComplete, StateClosed, StateError:
		return Composer{Mode: ComposerHidden}
	}

	// The stop control must stay reachable while recording even though
	// general input is gated off.
	if snap.Recording {
		return Composer{Mode: ComposerStop, Enabled: true}
	}

	if snap.State == StateFinalMessageRequested {
		return Composer{
			Mode:        ComposerText,
			Enabled:     snap.InputEnabled,
			Placeholder: "Leave a closing message (optional)",
		}
	}

	if snap.Modality == ModalityVoice {
		return Composer{Mode: ComposerRecord, Enabled: snap.InputEnabled}
	}
	return Composer{
		Mode:        ComposerText,
		Enabled:     snap.InputEnabled,
		Placeholder: "Type your answer",
	}
}

func projectBadge(snap Snapshot) string {
	switch snap.State {
	case StateIdle:
		return "Ready"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingFirstQuestion, StateWaitingForAI:
		return "Waiting for interviewer"
	case StateQuestionDelivered, StateAwaitingInput, StateRecordingEnabled:
		return "Your turn"
	case StateAudioPlaying:
		return "Interviewer speaking"
	case StateRecording:
		return "Recording"
	case StateTranscribing:
		return "Processing your answer"
	case StateFinalMessageRequested:
		return "Closing message"
	case StateError:
		return "Error"
	case StateComplete:
		return "Complete"
	case StateClosed:
		return "Disconnected"
	default:
		return ""
	}
}

func projectBanner(snap Snapshot) Banner {
	if snap.Err != nil {
		text := snap.Err.Message
		if snap.Err.Recoverable() {
			text += " - you can reconnect and continue"
		}
		return Banner{Kind: BannerError, Text: text}
	}
	if snap.State == StateComplete {
		text := snap.CompletionText
		if text == "" {
			text = "The interview is complete. Thank you."
		}
		return Banner{Kind: BannerInfo, Text: text}
	}
	return Banner{Kind: BannerNone}
}
