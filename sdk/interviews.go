package hireloop

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hireloop/interview-go/pkg/audio"
	"github.com/hireloop/interview-go/pkg/core"
	"github.com/hireloop/interview-go/pkg/core/interview"
)

// InterviewsService opens live interview sessions.
type InterviewsService struct {
	client *Client
}

// ConnectOptions customizes a live session. All fields are optional: the
// modality comes from the resolved ticket and voice sessions fall back to
// the ffmpeg-based devices.
type ConnectOptions struct {
	// Capture overrides the microphone device (voice modality).
	Capture audio.CaptureDevice

	// Playback overrides the speaker device (voice modality).
	Playback audio.PlaybackDevice

	// ChunkInterval is how often recorded audio chunks are streamed.
	ChunkInterval time.Duration

	// Audio overrides the capture format.
	Audio audio.Config

	// Modality forces a modality instead of the ticket's.
	Modality interview.Modality
}

// Connect resolves the ticket, dials the interview websocket and starts the
// session. The returned session is already running; consume its Events
// channel and close it when done.
//
// A ticket rejection during resolution fails fast. Any other resolution
// failure only costs display metadata: the session still connects and the
// server remains the authority on whether the ticket is usable.
func (s *InterviewsService) Connect(ctx context.Context, token string, opts ConnectOptions) (*interview.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, core.NewInvalidRequestError("ticket token is empty")
	}

	ctx, span := s.client.tracer.Start(ctx, "interviews.connect",
		trace.WithAttributes(attribute.String("hireloop.base_url", s.client.baseURL)))
	defer span.End()

	config := interview.DefaultSessionConfig(token)
	config.Logger = s.client.logger
	if opts.ChunkInterval > 0 {
		config.ChunkInterval = opts.ChunkInterval
	}
	if opts.Audio.SampleRate > 0 {
		config.Audio = opts.Audio
	}

	ticket, err := s.client.Tickets.Resolve(ctx, token)
	switch {
	case err == nil:
		config.Candidate = ticket.Candidate
		config.JobTitle = ticket.JobTitle
		config.Company = ticket.Company
		if ticket.Modality != "" {
			config.Modality = interview.Modality(ticket.Modality)
		}
	default:
		if coreErr, ok := err.(*core.Error); ok && !coreErr.Recoverable() {
			span.RecordError(err)
			return nil, err
		}
		s.client.logger.Warn("ticket resolution failed, continuing without metadata", "error", err)
	}
	if opts.Modality != "" {
		config.Modality = opts.Modality
	}

	wsURL, err := s.client.websocketEndpoint("/v1/interviews/ws", token)
	if err != nil {
		return nil, err
	}

	transport := interview.NewWebsocketTransport(wsURL, s.client.logger)

	var recorder *interview.Recorder
	var player *interview.Player
	if config.Modality == interview.ModalityVoice {
		capture := opts.Capture
		if capture == nil {
			capture = audio.NewFFmpegCapture(config.Audio)
		}
		playback := opts.Playback
		if playback == nil {
			playback = audio.NewFFplayPlayer(config.Audio)
		}
		recorder = interview.NewRecorder(capture, config.ChunkInterval, s.client.logger)
		player = interview.NewPlayer(playback, s.client.logger)
	}

	session := interview.NewSession(config, transport, recorder, player)
	if err := session.Start(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return session, nil
}

// websocketEndpoint derives the ws(s) URL for the given path from the API
// base URL, carrying the ticket as a query parameter.
func (c *Client) websocketEndpoint(path, ticket string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + path)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme.
	default:
		return "", core.NewInvalidRequestError("unsupported base URL scheme: " + u.Scheme)
	}
	q := u.Query()
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
