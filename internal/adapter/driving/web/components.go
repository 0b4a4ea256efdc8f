package web

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/actionwatch/internal/adapter/driving/web/viewmodel"
)

// html collects the first write error so components read as straight-line markup.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

// text writes s HTML-escaped.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// printf escapes every string argument before formatting.
func (h *html) printf(format string, args ...any) {
	for i, a := range args {
		if s, ok := a.(string); ok {
			args[i] = templ.EscapeString(s)
		}
	}
	if h.err == nil {
		_, h.err = fmt.Fprintf(h.w, format, args...)
	}
}

// href writes a sanitized, escaped URL.
func (h *html) href(u string) {
	h.text(string(templ.URL(u)))
}

func (h *html) csrf(token string) {
	h.printf(`<input type="hidden" name="%s" value="%s">`, csrfFormField, token)
}

func (h *html) targetFields(t vm.TargetViewModel) {
	h.printf(`<input type="hidden" name="owner" value="%s"><input type="hidden" name="repo" value="%s"><input type="hidden" name="branch" value="%s">`,
		t.Owner, t.Repo, t.Branch)
}

// Layout wraps body in the page chrome.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title><link rel="stylesheet" href="/static/style.css"></head><body>`, title)
		if h.err != nil {
			return h.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		h.raw(`</body></html>`)
		return h.err
	})
}

// Dashboard renders the watch list, the last cycle, the notification feed and
// the authentication panel.
func Dashboard(page vm.DashboardViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}

		h.raw(`<header><h1>actionwatch</h1>`)
		h.raw(`<form class="inline" method="post" action="/check">`)
		h.csrf(page.CSRFToken)
		h.raw(`<button type="submit">Check now</button></form></header>`)

		if page.Flash != "" {
			h.printf(`<p class="flash" role="status">%s</p>`, page.Flash)
		}

		authPanel(h, page.Auth, page.CSRFToken)
		cyclePanel(h, page.LastCycle)
		targetTable(h, page.Targets, page.CSRFToken)
		feedList(h, page.Notifications)

		return h.err
	})
}

func authPanel(h *html, a vm.AuthViewModel, token string) {
	h.raw(`<section id="auth"><h2>GitHub access</h2>`)
	switch {
	case a.UserCode != "":
		h.printf(`<p>Enter <span class="code">%s</span> at `, a.UserCode)
		h.raw(`<a href="`)
		h.href(a.VerificationURI)
		h.raw(`" target="_blank" rel="noopener">`)
		h.text(a.VerificationURI)
		h.raw(`</a> to authorize actionwatch.</p>`)
	case a.InProgress:
		h.raw(`<p class="muted">Requesting a device code from GitHub…</p>`)
	case a.Authenticated:
		h.printf(`<p>Authenticated <span class="muted">(via %s)</span></p>`, a.Source)
	default:
		h.raw(`<p>Not authenticated. Workflow runs cannot be fetched until a token is available.</p>`)
	}
	if a.CanAuthenticate {
		h.raw(`<form method="post" action="/auth">`)
		h.csrf(token)
		if a.Authenticated {
			h.raw(`<button type="submit">Re-authenticate</button></form>`)
		} else {
			h.raw(`<button type="submit">Sign in with GitHub</button></form>`)
		}
	}
	h.raw(`</section>`)
}

func cyclePanel(h *html, c *vm.CycleViewModel) {
	h.raw(`<section id="cycle"><h2>Last check</h2>`)
	if c == nil {
		h.raw(`<p class="muted">No check has completed yet.</p></section>`)
		return
	}
	h.printf(`<p>#%d (%s) %s, took %s: %d notified, %d unchanged, %d failed.</p>`,
		c.Seq, c.Trigger, c.StartedAgo, c.Duration, c.Notified, c.Unchanged, c.Failed)
	if len(c.FailedLines) > 0 {
		h.raw(`<ul class="muted">`)
		for _, line := range c.FailedLines {
			h.printf(`<li>%s</li>`, line)
		}
		h.raw(`</ul>`)
	}
	h.raw(`</section>`)
}

func targetTable(h *html, targets []vm.TargetViewModel, token string) {
	h.raw(`<section id="targets"><h2>Watch list</h2>`)
	if len(targets) == 0 {
		h.raw(`<p class="muted">No targets yet. Add a repository and branch below.</p>`)
	} else {
		h.raw(`<table><thead><tr><th>Target</th><th>Last run</th><th>Updated</th><th></th></tr></thead><tbody>`)
		for _, t := range targets {
			h.printf(`<tr><td>%s</td><td>`, t.Label)
			if t.Observed {
				state := t.Status
				if t.Conclusion != "" {
					state = t.Conclusion
				}
				h.printf(`<span class="badge %s">%s</span> #%d`, t.BadgeClass, state, t.RunID)
			} else {
				h.printf(`<span class="badge %s">pending</span>`, t.BadgeClass)
			}
			h.printf(`</td><td class="muted">%s</td><td>`, t.UpdatedAgo)

			h.raw(`<form class="inline" method="post" action="/targets/check">`)
			h.csrf(token)
			h.targetFields(t)
			h.raw(`<button type="submit">Check</button></form> `)

			h.raw(`<form class="inline" method="post" action="/targets/remove">`)
			h.csrf(token)
			h.targetFields(t)
			h.raw(`<button type="submit">Remove</button></form></td></tr>`)
		}
		h.raw(`</tbody></table>`)
	}

	h.raw(`<form method="post" action="/targets"><h3>Add target</h3>`)
	h.csrf(token)
	h.raw(`<input name="repository" placeholder="owner/repo" required> `)
	h.raw(`<input name="branch" placeholder="branch" value="main" required> `)
	h.raw(`<button type="submit">Add</button></form></section>`)
}

func feedList(h *html, items []vm.NotificationViewModel) {
	h.raw(`<section id="notifications"><h2>Notifications</h2>`)
	if len(items) == 0 {
		h.raw(`<p class="muted">Nothing yet.</p></section>`)
		return
	}
	h.raw(`<ul class="feed">`)
	for _, n := range items {
		h.printf(`<li id="n-%s"><span class="badge %s">%s</span> <strong>%s</strong> <span class="muted">%s</span>`,
			n.ID, n.BadgeClass, n.Target, n.Title, n.CreatedAgo)
		h.raw(n.BodyHTML) // Sanitized by RenderMarkdown.
		h.raw(`</li>`)
	}
	h.raw(`</ul></section>`)
}
