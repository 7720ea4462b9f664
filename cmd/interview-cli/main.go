// interview-cli conducts a live interview from the terminal: it resolves the
// ticket, connects the session and renders questions, transcriptions and
// status as they arrive. In voice mode the Enter key toggles recording.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hireloop/interview-go/internal/dotenv"
	"github.com/hireloop/interview-go/pkg/core/interview"
	hireloop "github.com/hireloop/interview-go/sdk"
)

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func runInterview(ctx context.Context, cfg cliConfig, in io.Reader, out, errOut io.Writer) error {
	logger := newLogger(cfg.LogLevel, errOut)
	client := hireloop.NewClient(
		hireloop.WithBaseURL(cfg.BaseURL),
		hireloop.WithLogger(logger),
	)

	opts := hireloop.ConnectOptions{ChunkInterval: cfg.ChunkInterval}
	if cfg.Modality != "" {
		opts.Modality = interview.Modality(cfg.Modality)
	}

	session, err := client.Interviews.Connect(ctx, cfg.Ticket, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	snap := session.Snapshot()
	view := interview.Project(snap)
	fmt.Fprintf(out, "%s\n", view.Title)
	if view.Subtitle != "" {
		fmt.Fprintf(out, "Candidate: %s\n", view.Subtitle)
	}
	fmt.Fprintln(out, "Connected. Waiting for the first question...")

	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nleaving interview")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleInput(session, line, out, errOut)
		case event, ok := <-session.Events():
			if !ok {
				return nil
			}
			if done := renderEvent(session, event, out, errOut); done {
				return nil
			}
		}
	}
}

// readLines forwards stdin lines. The reader goroutine leaks on purpose when
// the context ends: stdin reads are not interruptible and the process is
// about to exit anyway.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func handleInput(session *interview.Session, line string, out, errOut io.Writer) {
	snap := session.Snapshot()

	// Enter while recording always stops, even though input is gated.
	if snap.Recording {
		session.EndRecording()
		return
	}
	if !snap.InputEnabled {
		fmt.Fprintln(out, "(please wait...)")
		return
	}

	switch {
	case snap.State == interview.StateFinalMessageRequested, snap.Modality == interview.ModalityText:
		text := strings.TrimSpace(line)
		if text == "" {
			return
		}
		if err := session.SendAnswer(text); err != nil {
			fmt.Fprintf(errOut, "send answer: %v\n", err)
		}
	default:
		if err := session.BeginRecording(context.Background()); err != nil {
			fmt.Fprintf(errOut, "start recording: %v\n", err)
		}
	}
}

func renderEvent(session *interview.Session, event interview.Event, out, errOut io.Writer) (done bool) {
	switch e := event.(type) {
	case *interview.QuestionDeliveredEvent:
		fmt.Fprintf(out, "\nInterviewer: %s\n", e.Text)
		promptForTurn(session, out)
	case *interview.PlaybackStartedEvent:
		fmt.Fprintln(out, "(playing question audio...)")
	case *interview.PlaybackEndedEvent:
		promptForTurn(session, out)
	case *interview.RecordingStartedEvent:
		fmt.Fprintln(out, "(recording - press Enter to stop)")
	case *interview.RecordingEndedEvent:
		fmt.Fprintln(out, "(recording sent, transcribing...)")
	case *interview.TranscriptionEvent:
		fmt.Fprintf(out, "You said: %s\n", e.Text)
	case *interview.InfoEvent:
		fmt.Fprintf(out, "[info] %s\n", e.Text)
	case *interview.FinalMessageRequestedEvent:
		fmt.Fprintf(out, "\nInterviewer: %s\n", e.Text)
		fmt.Fprintln(out, "(type a closing message and press Enter)")
	case *interview.CompletedEvent:
		if e.Text != "" {
			fmt.Fprintf(out, "\n%s\n", e.Text)
		}
		fmt.Fprintln(out, "Interview complete. Goodbye.")
		return true
	case *interview.ErrorEvent:
		if e.Recoverable {
			fmt.Fprintf(errOut, "[error] %s (you can keep going or reconnect)\n", e.Message)
		} else {
			fmt.Fprintf(errOut, "[error] %s\n", e.Message)
			return true
		}
	case *interview.SessionClosedEvent:
		fmt.Fprintf(out, "Session closed: %s\n", e.Reason)
		return true
	}
	return false
}

func promptForTurn(session *interview.Session, out io.Writer) {
	snap := session.Snapshot()
	if !snap.InputEnabled {
		return
	}
	if snap.Modality == interview.ModalityVoice && snap.State != interview.StateFinalMessageRequested {
		fmt.Fprintln(out, "(press Enter to start recording your answer)")
		return
	}
	fmt.Fprintln(out, "(type your answer and press Enter)")
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "interview-cli: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseCLIConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interview-cli: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runInterview(ctx, cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "interview-cli: %v\n", err)
		os.Exit(1)
	}
}
