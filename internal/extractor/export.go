package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const imagePlaceholder = "<!-- image -->"

// exporter renders a Document into each OutputFormat.
type exporter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newExporter() *exporter {
	return &exporter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (e *exporter) export(doc *Document, format OutputFormat) (string, error) {
	switch format {
	case FormatMarkdown:
		return toMarkdown(doc), nil
	case FormatJSON:
		return toJSON(doc)
	case FormatText:
		return toText(toMarkdown(doc)), nil
	case FormatHTML:
		return e.toHTML(doc)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func toMarkdown(doc *Document) string {
	var parts []string
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			if s := blockMarkdown(b); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func blockMarkdown(b Block) string {
	switch b.Kind {
	case BlockHeading:
		level := b.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " " + oneLine(b.Text)
	case BlockParagraph:
		return strings.TrimSpace(b.Text)
	case BlockTable:
		return tableMarkdown(b.Rows)
	case BlockImage:
		return imagePlaceholder
	}
	return ""
}

// tableMarkdown renders rows as a GFM pipe table; the first row is the header.
func tableMarkdown(rows [][]string) string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	if width == 0 {
		return ""
	}

	var sb strings.Builder
	writeRow := func(r []string) {
		sb.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(r) {
				cell = strings.ReplaceAll(oneLine(r[i]), "|", `\|`)
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}

	writeRow(rows[0])
	sb.WriteString("|")
	for i := 0; i < width; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func toJSON(doc *Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

var (
	markdownSyntaxRe = regexp.MustCompile("[#*`_\\[\\]()]")
	newlineRunRe     = regexp.MustCompile(`\n+`)
)

// toText is a lossy plain-text rendering: markdown punctuation is removed
// character by character and blank lines are collapsed.
func toText(markdown string) string {
	text := markdownSyntaxRe.ReplaceAllString(markdown, "")
	text = newlineRunRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func (e *exporter) toHTML(doc *Document) (string, error) {
	var body bytes.Buffer
	if err := e.md.Convert([]byte(toMarkdown(doc)), &body); err != nil {
		return "", err
	}
	title := doc.Title
	if title == "" {
		title = doc.Name
	}
	return fmt.Sprintf("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\"/>\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>",
		html.EscapeString(title), e.policy.SanitizeBytes(body.Bytes())), nil
}
