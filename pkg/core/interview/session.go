package interview

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/hireloop/interview-go/pkg/core"
)

// Session drives one interview attempt over a duplex connection. It owns the
// turn history, reconciles out-of-order question audio, gates candidate
// input, and serializes all protocol frames. All exported methods are safe
// for concurrent use.
type Session struct {
	config    SessionConfig
	transport Transport
	recorder  *Recorder
	player    *Player
	logger    *slog.Logger

	mu               sync.Mutex
	state            State
	turns            []*Turn
	pending          pendingAudioBuffer
	awaitingResponse bool
	speaking         bool
	connLost         bool
	terminal         bool
	captureFailed    bool
	assembling       bool
	assembly         []byte
	completionText   string
	lastError        *core.Error

	events     chan Event
	closed     atomic.Bool
	closeOnce  sync.Once
	closedOnce sync.Once
}

// NewSession creates a session over the given transport. The recorder and
// player may be nil for text modality.
func NewSession(config SessionConfig, transport Transport, recorder *Recorder, player *Player) *Session {
	config.applyDefaults()
	s := &Session{
		config:    config,
		transport: transport,
		recorder:  recorder,
		player:    player,
		logger:    config.Logger,
		state:     StateIdle,
		events:    make(chan Event, 128),
	}
	if recorder != nil {
		recorder.SetCallbacks(RecorderCallbacks{
			OnChunk: s.onCaptureChunk,
			OnEnded: s.onCaptureEnded,
			OnError: s.onCaptureError,
		})
	}
	if player != nil {
		player.SetCallbacks(PlayerCallbacks{
			OnStart: s.onPlaybackStart,
			OnEnd:   s.onPlaybackEnd,
		})
	}
	return s
}

// Events yields session events. The channel is buffered; events are dropped
// (with a warning) rather than blocking the engine when the consumer lags.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start connects the transport, sends the start frame and begins processing
// inbound frames. It returns once the connection is established.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return core.NewInvalidRequestError("session already started")
	}
	s.setState(StateConnecting)
	s.mu.Unlock()

	if err := s.transport.Connect(ctx); err != nil {
		s.mu.Lock()
		s.recordError(err)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.emit(&ConnectedEvent{})
	if err := s.send(StartFrame{}); err != nil {
		s.recordError(err)
		s.mu.Unlock()
		return err
	}
	s.awaitingResponse = true
	s.setState(StateAwaitingFirstQuestion)
	s.mu.Unlock()

	go s.run()
	return nil
}

func (s *Session) run() {
	msgs := s.transport.Messages()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			s.handleMessage(msg)
		case info := <-s.transport.Done():
			s.handleClose(info)
			return
		}
	}
}

func (s *Session) handleMessage(msg TransportMessage) {
	switch msg.Kind {
	case BinaryMessage:
		s.handleBinary(msg.Data)
	case TextMessage:
		frame, err := DecodeFrame(msg.Data)
		if err != nil {
			// Malformed frames are dropped; the session keeps running.
			s.logger.Warn("dropping undecodable frame", "error", err)
			return
		}
		s.handleFrame(frame)
	}
}

// handleBinary routes one inbound binary payload. Inside an open marker
// window the payload extends the clip under assembly; outside one it is a
// complete clip on its own.
func (s *Session) handleBinary(data []byte) {
	s.mu.Lock()
	if s.assembling {
		s.assembly = append(s.assembly, data...)
		s.mu.Unlock()
		return
	}
	playClip := s.attachClip(data)
	s.mu.Unlock()
	s.maybePlay(playClip)
}

func (s *Session) handleFrame(frame Frame) {
	switch f := frame.(type) {
	case QuestionFrame:
		s.handleQuestion(f)
	case AudioMarkerStartFrame:
		s.mu.Lock()
		if s.assembling {
			s.logger.Warn("audio marker reopened with clip under assembly",
				"discarded_bytes", len(s.assembly))
		}
		s.assembling = true
		s.assembly = nil
		s.mu.Unlock()
	case AudioMarkerEndFrame:
		s.mu.Lock()
		if !s.assembling {
			s.mu.Unlock()
			s.logger.Warn("audio end marker without start marker")
			return
		}
		clip := s.assembly
		s.assembling = false
		s.assembly = nil
		var playClip []byte
		if len(clip) > 0 {
			playClip = s.attachClip(clip)
		}
		s.mu.Unlock()
		s.maybePlay(playClip)
	case TranscriptionFrame:
		s.handleTranscription(f)
	case InfoFrame:
		s.mu.Lock()
		s.emit(&InfoEvent{Text: f.Text})
		s.mu.Unlock()
	case FinalMessageRequestFrame:
		s.handleFinalMessageRequest(f)
	case CompleteFrame:
		s.handleComplete(f)
	case ErrorFrame:
		s.handleServerError(f)
	case UnknownFrame:
		s.logger.Debug("ignoring unknown frame", "type", f.Type)
	}
}

func (s *Session) handleQuestion(f QuestionFrame) {
	s.mu.Lock()
	turn := &Turn{QuestionID: f.ID, Question: f.Text}
	s.turns = append(s.turns, turn)
	s.awaitingResponse = false
	s.setState(StateQuestionDelivered)

	var playClip []byte
	switch s.config.Modality {
	case ModalityVoice:
		if clip, ok := s.pending.take(); ok {
			turn.Clip = clip
			turn.Delivered = true
			s.emit(&QuestionDeliveredEvent{QuestionID: f.ID, Text: f.Text, HasClip: true})
			s.emit(&ClipAttachedEvent{QuestionID: f.ID, Bytes: len(clip)})
			playClip = clip
		} else {
			// No clip yet. Deliver as text and enable recording; a late clip
			// still plays if it lands before the candidate starts answering.
			turn.Delivered = true
			s.emit(&QuestionDeliveredEvent{QuestionID: f.ID, Text: f.Text})
			s.setState(StateRecordingEnabled)
		}
	default:
		turn.Delivered = true
		s.emit(&QuestionDeliveredEvent{QuestionID: f.ID, Text: f.Text})
		s.setState(StateAwaitingInput)
	}
	s.mu.Unlock()
	s.maybePlay(playClip)
}

// attachClip matches a complete clip to the current open voice turn, or
// parks it in the single-slot pending buffer when the question has not
// arrived yet. It returns the clip when playback should start now. Caller
// holds s.mu.
func (s *Session) attachClip(clip []byte) []byte {
	if s.config.Modality != ModalityVoice {
		s.logger.Warn("ignoring binary frame in text modality", "bytes", len(clip))
		return nil
	}

	turn := s.currentTurn()
	if turn == nil || !turn.open() || turn.Clip != nil || turn.Final {
		s.pending.put(clip, s.logger)
		return nil
	}

	turn.Clip = clip
	s.emit(&ClipAttachedEvent{QuestionID: turn.QuestionID, Bytes: len(clip)})

	// Play only while the candidate has not begun answering.
	if s.state == StateQuestionDelivered || s.state == StateRecordingEnabled {
		return clip
	}
	return nil
}

func (s *Session) maybePlay(clip []byte) {
	if clip == nil || s.player == nil {
		return
	}
	if err := s.player.Play(clip); err != nil {
		s.logger.Warn("question playback failed", "error", err)
		s.mu.Lock()
		s.emit(&ErrorEvent{Code: string(core.ErrDeviceUnavailable), Message: err.Error(), Recoverable: true})
		// Degrade to text delivery so the interview is not stuck.
		if s.state == StateQuestionDelivered || s.state == StateAudioPlaying {
			s.setState(StateRecordingEnabled)
		}
		s.mu.Unlock()
	}
}

func (s *Session) handleTranscription(f TranscriptionFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var questionID string
	if turn := s.currentTurn(); turn != nil {
		turn.Transcription = f.Text
		questionID = turn.QuestionID
	}
	s.emit(&TranscriptionEvent{QuestionID: questionID, Text: f.Text})
	if s.state == StateTranscribing {
		s.setState(StateWaitingForAI)
	}
}

func (s *Session) handleFinalMessageRequest(f FinalMessageRequestFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, &Turn{Question: f.Text, Delivered: true, Final: true})
	s.awaitingResponse = false
	s.emit(&FinalMessageRequestedEvent{Text: f.Text})
	s.setState(StateFinalMessageRequested)
}

func (s *Session) handleComplete(f CompleteFrame) {
	s.mu.Lock()
	s.terminal = true
	s.awaitingResponse = false
	s.completionText = f.Text
	s.emit(&CompletedEvent{Text: f.Text})
	s.setState(StateComplete)
	s.mu.Unlock()

	s.stopDevices()
	_ = s.transport.Close(websocket.CloseNormalClosure, "interview complete")
}

// handleServerError classifies a server error frame. Ticket rejections are
// terminal: the attempt is spent and no further outbound frame may be sent.
// Everything else is surfaced and the session stays usable.
func (s *Session) handleServerError(f ErrorFrame) {
	if isTicketRejection(f.Text) {
		s.mu.Lock()
		s.terminal = true
		s.awaitingResponse = false
		s.lastError = core.NewConnectionRejectedError(f.Text)
		s.emit(&ErrorEvent{Code: string(core.ErrConnectionRejected), Message: f.Text, Recoverable: false})
		s.setState(StateComplete)
		s.mu.Unlock()

		s.stopDevices()
		_ = s.transport.Close(websocket.CloseNormalClosure, "ticket rejected")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = core.NewServerError(f.Text)
	s.awaitingResponse = false
	s.emit(&ErrorEvent{Code: string(core.ErrServer), Message: f.Text, Recoverable: true})
	s.setState(StateError)
}

func isTicketRejection(message string) bool {
	m := strings.ToLower(message)
	for _, marker := range []string{"invalid", "expired", "already been used"} {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

func (s *Session) handleClose(info CloseInfo) {
	s.mu.Lock()
	s.connLost = true
	s.mu.Unlock()

	s.stopDevices()

	s.mu.Lock()
	reason := info.Reason
	switch {
	case s.closed.Load():
		if reason == "" {
			reason = "client closed"
		}
		if s.state != StateComplete {
			s.setState(StateClosed)
		}
	case s.terminal || s.state == StateComplete:
		if reason == "" {
			reason = "interview complete"
		}
	case info.Err != nil:
		s.recordError(core.NewConnectionLostError("connection lost", info.Err))
		if reason == "" {
			reason = "connection lost"
		}
	default:
		if reason == "" {
			reason = "connection closed"
		}
		s.setState(StateClosed)
	}
	s.closedOnce.Do(func() {
		s.emit(&SessionClosedEvent{Reason: reason})
	})
	s.mu.Unlock()
}

// SendAnswer submits a typed response for the current turn: the answer in
// text modality, or the closing message when one has been requested.
func (s *Session) SendAnswer(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestError("answer is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inputEnabledLocked() {
		return core.NewInvalidRequestError("input is not enabled in state " + s.state.String())
	}
	turn := s.currentTurn()
	if turn == nil {
		return core.NewInvalidRequestError("no question to answer")
	}

	var frame Frame
	if turn.Final {
		frame = FinalMessageFrame{Text: text}
	} else {
		if s.config.Modality == ModalityVoice {
			return core.NewInvalidRequestError("voice answers are recorded, not typed")
		}
		frame = AnswerFrame{QuestionID: turn.QuestionID, Text: text}
	}
	if err := s.send(frame); err != nil {
		s.recordError(err)
		return err
	}

	turn.Answer = text
	turn.Answered = true
	s.awaitingResponse = true
	s.emit(&AnswerSentEvent{QuestionID: turn.QuestionID, Text: text, Final: turn.Final})
	s.setState(StateWaitingForAI)
	return nil
}

// BeginRecording acquires the microphone and starts streaming answer audio.
// Voice modality only; input must be enabled.
func (s *Session) BeginRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.config.Modality != ModalityVoice || s.recorder == nil {
		s.mu.Unlock()
		return core.NewInvalidRequestError("recording requires voice modality")
	}
	if !s.inputEnabledLocked() {
		state := s.state
		s.mu.Unlock()
		return core.NewInvalidRequestError("input is not enabled in state " + state.String())
	}
	s.mu.Unlock()

	// Device acquisition can block on OS permission prompts; keep the
	// session unlocked while it runs.
	if err := s.recorder.Begin(ctx); err != nil {
		s.mu.Lock()
		s.emitError(err)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.closed.Load() || s.terminal {
		s.mu.Unlock()
		s.recorder.End()
		return core.NewInvalidRequestError("session is closed")
	}
	defer s.mu.Unlock()
	s.captureFailed = false
	if err := s.send(AudioStartFrame{}); err != nil {
		s.recordError(err)
		return err
	}
	s.emit(&RecordingStartedEvent{})
	s.setState(StateRecording)
	return nil
}

// EndRecording stops capture and finalizes the answer. The recording end is
// latched: regardless of how many stop triggers fire, exactly one audio_end
// frame is sent per recording.
func (s *Session) EndRecording() {
	if s.recorder != nil {
		s.recorder.End()
	}
}

func (s *Session) onCaptureChunk(chunk []byte) {
	s.mu.Lock()
	suppress := s.connLost || s.terminal || s.closed.Load()
	s.mu.Unlock()
	if suppress {
		return
	}
	if err := s.transport.SendBinary(chunk); err != nil {
		s.logger.Warn("audio chunk send failed", "bytes", len(chunk), "error", err)
	}
}

func (s *Session) onCaptureEnded(clip []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := s.captureFailed
	s.captureFailed = false

	s.emit(&RecordingEndedEvent{Bytes: len(clip)})
	if s.connLost || s.terminal || s.closed.Load() {
		return
	}
	if s.state != StateRecording {
		return
	}
	if failed {
		// The take is broken; do not submit it. Recording re-enables so the
		// candidate can retry.
		s.setState(StateRecordingEnabled)
		return
	}
	if err := s.send(AudioEndFrame{}); err != nil {
		s.recordError(err)
		return
	}
	s.awaitingResponse = true
	if turn := s.currentTurn(); turn != nil {
		turn.Answered = true
	}
	s.setState(StateTranscribing)
}

// onCaptureError handles a device failure mid-recording. The recording is
// finalized (the latch keeps this from racing an explicit stop) but the
// broken take is not submitted; the session surfaces a recoverable error and
// returns to recording-enabled so the candidate can retry.
func (s *Session) onCaptureError(err error) {
	s.mu.Lock()
	s.emitError(err)
	s.captureFailed = true
	s.mu.Unlock()
	if s.recorder != nil {
		s.recorder.End()
	}
}

func (s *Session) onPlaybackStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = true
	var questionID string
	if turn := s.currentTurn(); turn != nil {
		questionID = turn.QuestionID
	}
	s.setState(StateAudioPlaying)
	s.emit(&PlaybackStartedEvent{QuestionID: questionID})
}

func (s *Session) onPlaybackEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	var questionID string
	if turn := s.currentTurn(); turn != nil {
		questionID = turn.QuestionID
	}
	s.emit(&PlaybackEndedEvent{QuestionID: questionID})
	if s.state == StateAudioPlaying {
		s.setState(StateRecordingEnabled)
	}
}

// InputEnabled reports whether the candidate may act right now: the
// connection is live, no server response is outstanding, nothing is being
// spoken, and the interview is not over.
func (s *Session) InputEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputEnabledLocked()
}

func (s *Session) inputEnabledLocked() bool {
	if s.closed.Load() || s.connLost || s.terminal {
		return false
	}
	if s.awaitingResponse || s.speaking {
		return false
	}
	switch s.state {
	case StateAwaitingInput, StateRecordingEnabled, StateFinalMessageRequested:
		return true
	default:
		return false
	}
}

// Close tears the session down: recording is finalized, playback stops and
// the connection closes with a normal closure. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.stopDevices()
		_ = s.transport.Close(websocket.CloseNormalClosure, "client closed")

		s.mu.Lock()
		if s.state != StateComplete {
			s.setState(StateClosed)
		}
		s.closedOnce.Do(func() {
			s.emit(&SessionClosedEvent{Reason: "client closed"})
		})
		s.mu.Unlock()
	})
	return nil
}

func (s *Session) stopDevices() {
	if s.recorder != nil {
		s.recorder.End()
	}
	if s.player != nil {
		s.player.Stop()
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent session error, if any.
func (s *Session) LastError() *core.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Turns returns a copy of the turn history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		turns[i] = *t
	}
	return turns
}

// Snapshot captures everything a presentation layer needs in one
// consistent read.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:            s.state,
		Modality:         s.config.Modality,
		Candidate:        s.config.Candidate,
		JobTitle:         s.config.JobTitle,
		Company:          s.config.Company,
		AwaitingResponse: s.awaitingResponse,
		Speaking:         s.speaking,
		Recording:        s.state == StateRecording,
		InputEnabled:     s.inputEnabledLocked(),
		CompletionText:   s.completionText,
		Err:              s.lastError,
	}
	snap.Turns = make([]Turn, len(s.turns))
	for i, t := range s.turns {
		snap.Turns[i] = *t
	}
	return snap
}

// currentTurn returns the most recent turn. Caller holds s.mu.
func (s *Session) currentTurn() *Turn {
	if len(s.turns) == 0 {
		return nil
	}
	return s.turns[len(s.turns)-1]
}

// send encodes and writes one outbound frame. The terminal latch wins over
// everything: once the interview is complete or the ticket was rejected, no
// frame leaves the client. Caller holds s.mu.
func (s *Session) send(frame Frame) error {
	if s.terminal {
		return core.NewInvalidRequestError("session is complete")
	}
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	return s.transport.SendText(data)
}

// recordError stores the error and moves to the matching state. Caller
// holds s.mu.
func (s *Session) recordError(err error) {
	s.emitError(err)
	if coreErr, ok := err.(*core.Error); ok && !coreErr.Recoverable() {
		s.terminal = true
		s.setState(StateComplete)
		return
	}
	s.setState(StateError)
}

// emitError surfaces an error as an event without a state change. Caller
// holds s.mu.
func (s *Session) emitError(err error) {
	coreErr, ok := err.(*core.Error)
	if !ok {
		coreErr = core.NewServerError(err.Error())
	}
	s.lastError = coreErr
	s.emit(&ErrorEvent{
		Code:        string(coreErr.Type),
		Message:     coreErr.Message,
		Recoverable: coreErr.Recoverable(),
	})
}

// setState transitions the session state and emits the change. Caller
// holds s.mu.
func (s *Session) setState(to State) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to
	s.logger.Debug("session state changed", "from", from.String(), "to", to.String())
	s.emit(&StateChangedEvent{From: from, To: to})
}

// emit delivers an event without blocking. Caller holds s.mu.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event channel full, dropping event", "type", event.EventType())
	}
}
