package interview

import (
	"encoding/json"
	"strings"

	"github.com/hireloop/interview-go/pkg/core"
)

// Frame type discriminators on the interview websocket. Binary websocket
// messages carry raw encoded audio with no discriminator and no embedded
// question identifier; correlating them with their question is the session's
// responsibility.
const (
	FrameStart               = "start"
	FrameQuestion            = "question"
	FrameAudioMarkerStart    = "audio_marker_start"
	FrameAudioMarkerEnd      = "audio_marker_end"
	FrameTranscription       = "transcription"
	FrameInfo                = "info"
	FrameFinalMessageRequest = "final_message_request"
	FrameComplete            = "interview_complete"
	FrameError               = "error"
	FrameAnswer              = "answer"
	FrameFinalMessage        = "final_message"
	FrameAudioStart          = "audio_start"
	FrameAudioEnd            = "audio_end"
)

// Frame is one structured text message on the interview connection.
type Frame interface {
	FrameType() string
}

// StartFrame asks the server to begin the interview.
type StartFrame struct {
	Type string `json:"type"`
}

func (StartFrame) FrameType() string { return FrameStart }

// QuestionFrame delivers one interview question.
type QuestionFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (QuestionFrame) FrameType() string { return FrameQuestion }

// AudioMarkerStartFrame opens a question-audio transfer window; binary
// frames that follow belong to one clip until the end marker.
type AudioMarkerStartFrame struct {
	Type string `json:"type"`
}

func (AudioMarkerStartFrame) FrameType() string { return FrameAudioMarkerStart }

// AudioMarkerEndFrame closes a question-audio transfer window.
type AudioMarkerEndFrame struct {
	Type string `json:"type"`
}

func (AudioMarkerEndFrame) FrameType() string { return FrameAudioMarkerEnd }

// TranscriptionFrame carries the server-side transcription of the
// candidate's recorded answer (voice modality only).
type TranscriptionFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TranscriptionFrame) FrameType() string { return FrameTranscription }

// InfoFrame carries an informational message for display.
type InfoFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (InfoFrame) FrameType() string { return FrameInfo }

// FinalMessageRequestFrame invites the candidate to leave a closing message.
type FinalMessageRequestFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (FinalMessageRequestFrame) FrameType() string { return FrameFinalMessageRequest }

// CompleteFrame marks the interview as finished.
type CompleteFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (CompleteFrame) FrameType() string { return FrameComplete }

// ErrorFrame carries a server-reported error.
type ErrorFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (ErrorFrame) FrameType() string { return FrameError }

// AnswerFrame submits the candidate's typed answer for one question.
type AnswerFrame struct {
	Type       string `json:"type"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

func (AnswerFrame) FrameType() string { return FrameAnswer }

// FinalMessageFrame submits the candidate's closing message.
type FinalMessageFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (FinalMessageFrame) FrameType() string { return FrameFinalMessage }

// AudioStartFrame announces that candidate audio chunks will follow.
type AudioStartFrame struct {
	Type string `json:"type"`
}

func (AudioStartFrame) FrameType() string { return FrameAudioStart }

// AudioEndFrame closes the candidate's audio chunk sequence. Exactly one is
// sent per recording.
type AudioEndFrame struct {
	Type string `json:"type"`
}

func (AudioEndFrame) FrameType() string { return FrameAudioEnd }

// UnknownFrame preserves frames with an unrecognized type discriminator.
type UnknownFrame struct {
	Type string
	Raw  json.RawMessage
}

func (f UnknownFrame) FrameType() string { return f.Type }

// DecodeFrame decodes one inbound text frame. Malformed payloads return a
// protocol_decode_error; callers log and drop them rather than failing the
// session.
func DecodeFrame(data []byte) (Frame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, core.NewProtocolDecodeError("decode frame envelope", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, core.NewProtocolDecodeError("frame missing type", nil)
	}

	switch typ {
	case FrameQuestion:
		var f QuestionFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, core.NewProtocolDecodeError("decode question", err)
		}
		if strings.TrimSpace(f.ID) == "" {
			return nil, core.NewProtocolDecodeError("question frame missing id", nil)
		}
		return f, nil
	case FrameAudioMarkerStart:
		return AudioMarkerStartFrame{Type: typ}, nil
	case FrameAudioMarkerEnd:
		return AudioMarkerEndFrame{Type: typ}, nil
	case FrameTranscription:
		var f TranscriptionFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, core.NewProtocolDecodeError("decode transcription", err)
		}
		return f, nil
	case FrameInfo:
		var f InfoFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, core.NewProtocolDecodeError("decode info", err)
		}
		return f, nil
	case FrameFinalMessageRequest:
		var f FinalMessageRequestFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, core.NewProtocolDecodeError("decode final_message_request", err)
		}
		return f, nil
	case FrameComplete:
		var f CompleteFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, core.NewProtocolDecodeError("decode interview_complete", err)
		}
		return f, nil
	case FrameError:
		var f ErrorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, core.NewProtocolDecodeError("decode error", err)
		}
		return f, nil
	default:
		return UnknownFrame{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// EncodeFrame serializes one outbound frame, stamping the type discriminator.
func EncodeFrame(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case StartFrame:
		v.Type = FrameStart
		return json.Marshal(v)
	case AnswerFrame:
		v.Type = FrameAnswer
		return json.Marshal(v)
	case FinalMessageFrame:
		v.Type = FrameFinalMessage
		return json.Marshal(v)
	case AudioStartFrame:
		v.Type = FrameAudioStart
		return json.Marshal(v)
	case AudioEndFrame:
		v.Type = FrameAudioEnd
		return json.Marshal(v)
	default:
		return nil, core.NewInvalidRequestError("frame type " + f.FrameType() + " is not an outbound frame")
	}
}
