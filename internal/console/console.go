// Package console runs a practice session interactively: it records each
// word from a microphone, shows the clips produced, and asks the speaker
// to confirm what they said.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maauso/palabra/internal/audio"
	"github.com/maauso/palabra/internal/practice"
)

// Recorder captures one fixed-length recording.
type Recorder interface {
	Record(ctx context.Context) (audio.Buffer, error)
}

// Runner drives one session over a line-oriented terminal.
type Runner struct {
	service  *practice.Service
	recorder Recorder
	in       *bufio.Scanner
	out      io.Writer
	logger   *slog.Logger
}

// NewRunner creates a Runner reading answers from in and writing prompts
// to out.
func NewRunner(service *practice.Service, recorder Recorder, in io.Reader, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		service:  service,
		recorder: recorder,
		in:       bufio.NewScanner(in),
		out:      out,
		logger:   logger,
	}
}

// Run practises every word of a new session and prints the summary. When
// the input ends before the last word the session is abandoned.
func (r *Runner) Run(ctx context.Context) (*practice.Summary, error) {
	session, err := r.service.Create(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for {
		word, ok := session.CurrentWord()
		if !ok {
			break
		}

		finished, err := r.practise(ctx, session.ID, word)
		if errors.Is(err, io.EOF) {
			if _, err := r.service.Abandon(ctx, session.ID); err != nil {
				r.logger.Warn("failed to abandon session", slog.String("error", err.Error()))
			}
			r.printf("\nInput closed, session abandoned.\n")
			break
		}
		if err != nil {
			return nil, err
		}
		if finished {
			break
		}

		if session, err = r.service.Get(ctx, session.ID); err != nil {
			return nil, err
		}
	}

	summary, err := r.service.Summarize(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	r.printSummary(summary)
	return summary, nil
}

// practise records attempts at word until one is confirmed.
func (r *Runner) practise(ctx context.Context, sessionID, word string) (bool, error) {
	for {
		r.printf("\nSay the word: %s\n", word)
		buf, err := r.recorder.Record(ctx)
		if err != nil {
			return false, fmt.Errorf("record: %w", err)
		}

		attempt, err := r.service.SubmitAttempt(ctx, sessionID, buf)
		if err != nil {
			return false, fmt.Errorf("submit attempt: %w", err)
		}
		r.printAttempt(attempt)

		r.printf("What did you say? (confirm %q", word)
		if attempt.Heard != "" {
			r.printf(", Enter accepts %q", attempt.Heard)
		}
		r.printf("): ")

		if !r.in.Scan() {
			if err := r.in.Err(); err != nil {
				return false, err
			}
			return false, io.EOF
		}

		conf, err := r.service.Confirm(ctx, sessionID, strings.TrimSpace(r.in.Text()))
		switch {
		case errors.Is(err, practice.ErrNothingToConfirm):
			r.printf("Nothing to compare, try again.\n")
			continue
		case err != nil:
			return false, fmt.Errorf("confirm: %w", err)
		}

		if conf.Match.Exact {
			r.printf("Confirmed %s after %d attempt(s).\n", word, conf.Result.Attempts)
			return conf.Finished, nil
		}
		if conf.Match.Near() {
			r.printf("Close, but %q is not %q. Try again.\n", conf.Match.Got, conf.Match.Expected)
		} else {
			r.printf("No match. Try again.\n")
		}
	}
}

func (r *Runner) printAttempt(a *practice.Attempt) {
	if len(a.Letters) == 0 {
		r.printf("No letters detected.\n")
	} else {
		r.printf("Recorded %d letter clip(s)", len(a.Letters))
		if a.Discarded > 0 {
			r.printf(", %d too short", a.Discarded)
		}
		r.printf(".\n")
	}
	if a.Whole.Location != "" {
		r.printf("Saved %s\n", a.Whole.Location)
	}
}

func (r *Runner) printSummary(s *practice.Summary) {
	r.printf("\nSession %s: %s\n", s.SessionID, strings.ToLower(string(s.Status)))
	for _, res := range s.Results {
		r.printf("  %s recorded in %d attempt(s)\n", res.Word, res.Attempts)
	}
	for _, w := range s.Remaining {
		r.printf("  %s not practised\n", w)
	}
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}
