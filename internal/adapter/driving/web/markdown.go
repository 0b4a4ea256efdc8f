package web

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
	htmlSanitizer.RequireNoFollowOnLinks(true)
	htmlSanitizer.AddTargetBlankToFullyQualifiedLinks(true)
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// NotificationMarkdown renders a notification body as a markdown list.
// "Key: value" lines get a bold key and the run URL becomes a link.
// Repository, branch and run names come from GitHub and may contain markup;
// RenderMarkdown sanitizes the result.
func NotificationMarkdown(n model.Notification) string {
	var b strings.Builder
	for _, line := range strings.Split(n.Body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (n.URL != "" && line == n.URL) {
			continue
		}
		if k, v, ok := strings.Cut(line, ": "); ok {
			fmt.Fprintf(&b, "- **%s:** `%s`\n", k, strings.ReplaceAll(v, "`", "'"))
			continue
		}
		fmt.Fprintf(&b, "- %s\n", line)
	}
	if n.URL != "" {
		fmt.Fprintf(&b, "\n[View run #%d](%s)\n", n.RunID, n.URL)
	}
	return b.String()
}
