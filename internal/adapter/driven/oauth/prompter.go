package oauth

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"
	"github.com/cli/browser"
	"github.com/fatih/color"

	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// ConsolePrompter shows the device code on a terminal, copies it to the
// clipboard and opens the verification page.
type ConsolePrompter struct {
	Out         io.Writer
	CopyCode    bool
	OpenBrowser bool

	copy func(string) error
	open func(string) error
}

// NewConsolePrompter returns a prompter writing to stderr with clipboard copy
// and browser launch enabled.
func NewConsolePrompter() *ConsolePrompter {
	return &ConsolePrompter{
		Out:         os.Stderr,
		CopyCode:    true,
		OpenBrowser: true,
		copy:        clipboard.WriteAll,
		open:        browser.OpenURL,
	}
}

// Prompt satisfies the prompt callback of driven.Authorizer.
func (p *ConsolePrompter) Prompt(dp driven.DevicePrompt) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(out, "%s First copy your one-time code: %s\n", yellow("!"), bold(dp.UserCode))

	if p.CopyCode && p.copy != nil {
		if err := p.copy(dp.UserCode); err != nil {
			slog.Debug("copy device code to clipboard failed", "error", err)
		} else {
			fmt.Fprintf(out, "%s Code copied to clipboard\n", color.GreenString("✓"))
		}
	}

	target := dp.VerificationURI
	if dp.VerificationURIComplete != "" {
		target = dp.VerificationURIComplete
	}
	fmt.Fprintf(out, "Open %s in your browser to authorize actionwatch", color.CyanString(target))
	if !dp.ExpiresAt.IsZero() {
		fmt.Fprintf(out, " (code expires %s)", dp.ExpiresAt.Local().Format("15:04:05"))
	}
	fmt.Fprintln(out)

	if p.OpenBrowser && p.open != nil {
		if err := p.open(target); err != nil {
			slog.Debug("open browser failed", "url", target, "error", err)
		}
	}
}
