// Package renderer formats snapshots and update reports as markdown, and
// markdown for the terminal or the browser.
package renderer

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.md
var embedded embed.FS

var templates = must(fs.Sub(embedded, "templates"))

func must(f fs.FS, err error) fs.FS {
	if err != nil {
		panic(err)
	}
	return f
}

// RenderSnapshot renders a snapshot view to markdown.
func RenderSnapshot(s *Snapshot) string {
	partials := map[string]string{
		"snapshot_title":   "snapshot_title.md",
		"snapshot_account": "snapshot_account.md",
		"snapshot_cash":    "snapshot_cash.md",
	}
	return renderTemplate("snapshot", "snapshot.md", partials, s)
}

// ReportRenderOptions holds configuration for rendering an update report.
type ReportRenderOptions struct {
	SkipTransactions bool // Do not render the transactions section.
	SkipPrices       bool // Do not render the price refresh section.
}

// RenderReport renders an update report view to markdown.
func RenderReport(r *Report, opts ReportRenderOptions) string {
	partials := map[string]string{
		"report_title":        "report_title.md",
		"report_summary":      "report_summary.md",
		"report_transactions": "report_transactions.md",
		"report_prices":       "report_prices.md",
	}
	// An empty file name results in an empty template.
	if opts.SkipTransactions {
		partials["report_transactions"] = ""
	}
	if opts.SkipPrices {
		partials["report_prices"] = ""
	}
	return renderTemplate("report", "report.md", partials, r)
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		if file != "" {
			content, err = fs.ReadFile(templates, file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}

// Terminal renders markdown for a terminal of the given width. The raw
// markdown is returned if rendering fails.
func Terminal(md string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

var html = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts markdown to an HTML fragment.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := html.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("cannot convert markdown: %w", err)
	}
	return buf.String(), nil
}
