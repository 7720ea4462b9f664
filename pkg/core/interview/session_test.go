package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hireloop/interview-go/pkg/audio"
	"github.com/hireloop/interview-go/pkg/core"
)

// fakeTransport is an in-memory Transport: tests feed inbound frames through
// serve* helpers and inspect everything the session sent.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	text       [][]byte
	binary     [][]byte
	closed     bool
	closeCode  int

	messages chan TransportMessage
	done     chan CloseInfo
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan TransportMessage, 64),
		done:     make(chan CloseInfo, 1),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeTransport) SendText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.NewConnectionLostError("transport is closed", nil)
	}
	f.text = append(f.text, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) SendBinary(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.NewConnectionLostError("transport is closed", nil)
	}
	f.binary = append(f.binary, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Messages() <-chan TransportMessage { return f.messages }
func (f *fakeTransport) Done() <-chan CloseInfo            { return f.done }

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.closeCode = code
	select {
	case f.done <- CloseInfo{Code: code, Reason: reason}:
	default:
	}
	return nil
}

func (f *fakeTransport) serveText(t *testing.T, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.messages <- TransportMessage{Kind: TextMessage, Data: data}
}

func (f *fakeTransport) serveBinary(data []byte) {
	f.messages <- TransportMessage{Kind: BinaryMessage, Data: append([]byte(nil), data...)}
}

func (f *fakeTransport) dropConnection(err error) {
	f.done <- CloseInfo{Code: websocket.CloseAbnormalClosure, Err: err}
}

func (f *fakeTransport) sentFrameTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.text))
	for _, data := range f.text {
		var envelope struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &envelope)
		types = append(types, envelope.Type)
	}
	return types
}

func (f *fakeTransport) countSentType(frameType string) int {
	count := 0
	for _, t := range f.sentFrameTypes() {
		if t == frameType {
			count++
		}
	}
	return count
}

func (f *fakeTransport) binaryBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []byte
	for _, chunk := range f.binary {
		all = append(all, chunk...)
	}
	return all
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentCloseCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func startTextSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	config := DefaultSessionConfig("tkt_test")
	config.Logger = testLogger()
	session := NewSession(config, transport, nil, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session, transport
}

func startVoiceSession(t *testing.T, capture audio.CaptureDevice, playback *fakePlayback) (*Session, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	config := DefaultSessionConfig("tkt_test")
	config.Modality = ModalityVoice
	config.ChunkInterval = 10 * time.Millisecond
	config.Logger = testLogger()
	recorder := NewRecorder(capture, config.ChunkInterval, config.Logger)
	player := NewPlayer(playback, config.Logger)
	session := NewSession(config, transport, recorder, player)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session, transport
}

func TestSessionTextInterviewFlow(t *testing.T) {
	t.Parallel()

	session, transport := startTextSession(t)

	if got := transport.sentFrameTypes(); len(got) != 1 || got[0] != FrameStart {
		t.Fatalf("frames after Start=%v, want [start]", got)
	}
	if session.State() != StateAwaitingFirstQuestion {
		t.Fatalf("state=%v", session.State())
	}
	if session.InputEnabled() {
		t.Fatalf("input must be gated before the first question")
	}

	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Why this role?"})
	waitFor(t, func() bool { return session.State() == StateAwaitingInput }, "question delivery")
	if !session.InputEnabled() {
		t.Fatalf("input should be enabled once the question is delivered")
	}

	if err := session.SendAnswer("Because I like the problem space."); err != nil {
		t.Fatalf("SendAnswer error: %v", err)
	}
	if session.State() != StateWaitingForAI {
		t.Fatalf("state after answer=%v", session.State())
	}
	if err := session.SendAnswer("double submit"); err == nil {
		t.Fatalf("answering while a response is outstanding must fail")
	}
	if transport.countSentType(FrameAnswer) != 1 {
		t.Fatalf("answer frames=%d, want 1", transport.countSentType(FrameAnswer))
	}

	transport.serveText(t, map[string]any{"type": "final_message_request", "text": "Anything to add?"})
	waitFor(t, func() bool { return session.State() == StateFinalMessageRequested }, "final message request")

	if err := session.SendAnswer("Thanks for having me."); err != nil {
		t.Fatalf("final message error: %v", err)
	}
	if transport.countSentType(FrameFinalMessage) != 1 {
		t.Fatalf("final_message frames=%d, want 1", transport.countSentType(FrameFinalMessage))
	}

	transport.serveText(t, map[string]any{"type": "interview_complete", "text": "Goodbye!"})
	waitFor(t, func() bool { return session.State() == StateComplete }, "completion")
	waitFor(t, transport.isClosed, "transport teardown")

	turns := session.Turns()
	if len(turns) != 2 || !turns[0].Answered || !turns[1].Final {
		t.Fatalf("turns=%+v", turns)
	}
}

func TestSessionClipBeforeQuestion(t *testing.T) {
	t.Parallel()

	playback := newFakePlayback(false)
	session, transport := startVoiceSession(t, newScriptedCapture(), playback)

	clip := []byte("synthesized question audio")
	transport.serveBinary(clip)
	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Walk me through your resume."})

	waitFor(t, func() bool { return bytes.Equal(playback.writtenBytes(), clip) }, "clip playback")
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "playback to finish")

	turns := session.Turns()
	if len(turns) != 1 || !bytes.Equal(turns[0].Clip, clip) {
		t.Fatalf("turn clip not attached: %+v", turns)
	}
}

func TestSessionQuestionBeforeClip(t *testing.T) {
	t.Parallel()

	playback := newFakePlayback(false)
	session, transport := startVoiceSession(t, newScriptedCapture(), playback)

	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Walk me through your resume."})
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "degraded text delivery")

	clip := []byte("late question audio")
	transport.serveBinary(clip)

	waitFor(t, func() bool { return bytes.Equal(playback.writtenBytes(), clip) }, "late clip playback")
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "playback to finish")

	turns := session.Turns()
	if len(turns) != 1 || !bytes.Equal(turns[0].Clip, clip) {
		t.Fatalf("turn clip not attached: %+v", turns)
	}
}

func TestSessionAssemblesMarkerDelimitedClip(t *testing.T) {
	t.Parallel()

	playback := newFakePlayback(false)
	session, transport := startVoiceSession(t, newScriptedCapture(), playback)

	transport.serveText(t, map[string]any{"type": "audio_marker_start"})
	transport.serveBinary([]byte("part-one|"))
	transport.serveBinary([]byte("part-two"))
	transport.serveText(t, map[string]any{"type": "audio_marker_end"})
	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "First question."})

	want := []byte("part-one|part-two")
	waitFor(t, func() bool { return bytes.Equal(playback.writtenBytes(), want) }, "assembled clip playback")

	turns := session.Turns()
	if len(turns) != 1 || !bytes.Equal(turns[0].Clip, want) {
		t.Fatalf("turn clip=%q, want %q", turns[0].Clip, want)
	}
}

func TestSessionRecordingSendsExactlyOneAudioEnd(t *testing.T) {
	t.Parallel()

	capture := newScriptedCapture([]byte("chunk-a"), []byte("chunk-b"))
	session, transport := startVoiceSession(t, capture, newFakePlayback(false))

	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Speak up."})
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "question delivery")

	if err := session.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording error: %v", err)
	}
	if session.State() != StateRecording {
		t.Fatalf("state=%v", session.State())
	}
	if transport.countSentType(FrameAudioStart) != 1 {
		t.Fatalf("audio_start frames=%d, want 1", transport.countSentType(FrameAudioStart))
	}

	waitFor(t, func() bool { return len(transport.binaryBytes()) > 0 }, "chunks to stream")

	// Stop button, hotkey and a teardown path all racing.
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.EndRecording()
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return session.State() == StateTranscribing }, "audio_end transition")
	if got := transport.countSentType(FrameAudioEnd); got != 1 {
		t.Fatalf("audio_end frames=%d, want exactly 1", got)
	}
	if got := transport.binaryBytes(); !bytes.Equal(got, []byte("chunk-achunk-b")) {
		t.Fatalf("streamed audio=%q", got)
	}

	transport.serveText(t, map[string]any{"type": "transcription", "text": "my recorded answer"})
	waitFor(t, func() bool { return session.State() == StateWaitingForAI }, "transcription handling")

	turns := session.Turns()
	if len(turns) != 1 || turns[0].Transcription != "my recorded answer" {
		t.Fatalf("turns=%+v", turns)
	}
}

func TestSessionCaptureFailureIsRecoverableAndRetryable(t *testing.T) {
	t.Parallel()

	capture := newFlakyCapture([][]byte{[]byte("garbled")}, [][]byte{[]byte("take-two")})
	session, transport := startVoiceSession(t, capture, newFakePlayback(false))

	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Speak up."})
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "question delivery")

	if err := session.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording error: %v", err)
	}
	waitFor(t, func() bool { return len(transport.binaryBytes()) > 0 }, "chunks to stream")

	// The device dies mid-take: the session must surface a recoverable error
	// and hand the turn back instead of wedging in the recording state.
	capture.failNow()
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "recovery from capture failure")

	if got := transport.countSentType(FrameAudioEnd); got != 0 {
		t.Fatalf("audio_end frames=%d, a failed take must not be submitted", got)
	}
	lastErr := session.LastError()
	if lastErr == nil || lastErr.Type != core.ErrDeviceUnavailable || !lastErr.Recoverable() {
		t.Fatalf("lastErr=%v, want recoverable device_unavailable", lastErr)
	}
	if !session.InputEnabled() {
		t.Fatalf("the candidate must be able to retry after a capture failure")
	}
	if turns := session.Turns(); len(turns) != 1 || turns[0].Answered {
		t.Fatalf("turns=%+v, the failed take must leave the turn open", turns)
	}

	// Retry with the device healthy again.
	if err := session.BeginRecording(context.Background()); err != nil {
		t.Fatalf("retry BeginRecording error: %v", err)
	}
	waitFor(t, func() bool { return bytes.Contains(transport.binaryBytes(), []byte("take-two")) }, "retry chunks")
	session.EndRecording()
	waitFor(t, func() bool { return session.State() == StateTranscribing }, "retry finalization")

	if got := transport.countSentType(FrameAudioStart); got != 2 {
		t.Fatalf("audio_start frames=%d, want 2", got)
	}
	if got := transport.countSentType(FrameAudioEnd); got != 1 {
		t.Fatalf("audio_end frames=%d, want exactly 1", got)
	}
}

func TestSessionTicketRejectionIsTerminal(t *testing.T) {
	t.Parallel()

	session, transport := startTextSession(t)

	transport.serveText(t, map[string]any{"type": "error", "text": "This interview link has expired."})
	waitFor(t, func() bool { return session.State() == StateComplete }, "terminal classification")
	waitFor(t, transport.isClosed, "transport teardown")

	framesBefore := len(transport.sentFrameTypes())
	if err := session.SendAnswer("too late"); err == nil {
		t.Fatalf("outbound frames after a terminal error must be rejected")
	}
	if got := len(transport.sentFrameTypes()); got != framesBefore {
		t.Fatalf("frames grew from %d to %d after terminal error", framesBefore, got)
	}

	lastErr := session.LastError()
	if lastErr == nil || lastErr.Type != core.ErrConnectionRejected || lastErr.Recoverable() {
		t.Fatalf("lastErr=%v, want terminal connection_rejected", lastErr)
	}
}

func TestSessionRecoverableServerError(t *testing.T) {
	t.Parallel()

	session, transport := startTextSession(t)

	transport.serveText(t, map[string]any{"type": "error", "text": "the question generator timed out"})
	waitFor(t, func() bool { return session.State() == StateError }, "error state")

	if transport.isClosed() {
		t.Fatalf("recoverable errors must not tear the connection down")
	}
	lastErr := session.LastError()
	if lastErr == nil || lastErr.Type != core.ErrServer || !lastErr.Recoverable() {
		t.Fatalf("lastErr=%v, want recoverable server_error", lastErr)
	}
}

func TestSessionCloseDuringRecordingSuppressesAudioEnd(t *testing.T) {
	t.Parallel()

	capture := newScriptedCapture([]byte("partial"))
	session, transport := startVoiceSession(t, capture, newFakePlayback(false))

	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Speak up."})
	waitFor(t, func() bool { return session.State() == StateRecordingEnabled }, "question delivery")
	if err := session.BeginRecording(context.Background()); err != nil {
		t.Fatalf("BeginRecording error: %v", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	waitFor(t, func() bool { return session.State() == StateClosed }, "teardown")
	if got := transport.countSentType(FrameAudioEnd); got != 0 {
		t.Fatalf("audio_end frames=%d, teardown must not finalize the answer", got)
	}
	if transport.sentCloseCode() != websocket.CloseNormalClosure {
		t.Fatalf("close code=%d, want normal closure", transport.closeCode)
	}
}

func TestSessionConnectionLossIsRecoverable(t *testing.T) {
	t.Parallel()

	session, transport := startTextSession(t)

	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "Why here?"})
	waitFor(t, func() bool { return session.State() == StateAwaitingInput }, "question delivery")

	transport.dropConnection(errors.New("connection reset by peer"))
	waitFor(t, func() bool { return session.State() == StateError }, "connection loss")

	lastErr := session.LastError()
	if lastErr == nil || lastErr.Type != core.ErrConnectionLost || !lastErr.Recoverable() {
		t.Fatalf("lastErr=%v, want recoverable connection_lost", lastErr)
	}
	if session.InputEnabled() {
		t.Fatalf("input must be gated while disconnected")
	}
}

func TestSessionDropsMalformedFrames(t *testing.T) {
	t.Parallel()

	session, transport := startTextSession(t)

	transport.messages <- TransportMessage{Kind: TextMessage, Data: []byte("not json")}
	transport.serveText(t, map[string]any{"type": "question", "text": "missing id"})
	transport.serveText(t, map[string]any{"type": "question", "id": "q_1", "text": "A valid question."})

	waitFor(t, func() bool { return session.State() == StateAwaitingInput }, "valid question after garbage")
	if got := len(session.Turns()); got != 1 {
		t.Fatalf("turns=%d, want 1", got)
	}
}
