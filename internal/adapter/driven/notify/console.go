package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// ConsoleSink writes notifications to the terminal, colored by outcome.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a console sink writing to out, or stdout when nil.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{out: out}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send prints the title on one line and the indented body beneath it.
func (s *ConsoleSink) Send(_ context.Context, n model.Notification) error {
	var title string
	switch n.Conclusion {
	case model.RunConclusionFailure, model.RunConclusionTimedOut, model.RunConclusionActionRequired:
		title = color.RedString(n.Title)
	case model.RunConclusionSuccess:
		title = color.GreenString(n.Title)
	case model.RunConclusionNone:
		title = color.CyanString(n.Title)
	default:
		title = color.YellowString(n.Title)
	}

	body := "  " + strings.ReplaceAll(n.Body, "\n", "\n  ")
	if _, err := fmt.Fprintf(s.out, "%s\n%s\n", title, body); err != nil {
		return fmt.Errorf("write console notification: %w", err)
	}
	return nil
}
