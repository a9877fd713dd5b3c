package web

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/core"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}
table{border-collapse:collapse;margin-bottom:1.5rem}th,td{border:1px solid #d1d5db;padding:.3rem .6rem;text-align:left}
th{background:#f3f4f6}.status{font-weight:600}.alert{border:1px solid #fca5a5;background:#fef2f2;padding:1rem}`

// runPage renders the report of a run: status, the three annotation
// tables, recoverable issues and dropped columns.
func runPage(run core.Run) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.open("Run " + run.Dataset.Name)

		p.printf("<h1>%s</h1>", esc(run.Dataset.Name))
		if run.Dataset.Description != "" {
			p.printf("<p>%s</p>", esc(run.Dataset.Description))
		}
		p.printf(`<p class="status">%s</p>`, esc(string(run.Status)))
		p.printf("<p>Source: %s &middot; Started %s", esc(run.Source), esc(run.StartedAt.Format(time.RFC3339)))
		if run.FinishedAt != nil {
			p.printf(" &middot; Took %s", esc(run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()))
		}
		p.printf("</p>")

		if run.Error != "" {
			writeAlert(p, core.UserMessage{Message: run.Error, Action: run.Action, Code: run.Code})
		}

		if !run.Done() {
			p.printf("<p>Annotated %d of %d columns (step: %s)</p>", run.Annotated, run.Columns, esc(string(run.Step)))
		}

		if run.Report != nil {
			writeSchema(p, run.Report.Schema)
			writeIssues(p, run.Report.Issues)
			if len(run.Report.Dropped) > 0 {
				p.printf("<h2>Dropped</h2><p>%s</p>", esc(strings.Join(run.Report.Dropped, ", ")))
			}
		}

		p.close()
		return p.err
	})
}

// errorPage renders a user message as a standalone page.
func errorPage(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.open("Error " + msg.Code)
		writeAlert(p, msg)
		p.close()
		return p.err
	})
}

func writeAlert(p *htmlWriter, msg core.UserMessage) {
	p.printf(`<div class="alert" role="alert"><strong>%s</strong>`, esc(msg.Message))
	if msg.Action != "" {
		p.printf("<p>%s</p>", esc(msg.Action))
	}
	p.printf("<small>%s</small></div>", esc(msg.Code))
}

func writeSchema(p *htmlWriter, r annotation.Result) {
	if len(r.Geo) > 0 {
		p.printf("<h2>Geo</h2>")
		p.header("Column", "Type", "Primary", "Pair", "Coordinates")
		for _, g := range r.Geo {
			p.row(g.Name, string(g.GeoType), flag(g.PrimaryGeo), deref(g.IsGeoPair), coordFormat(g.CoordFormat))
		}
		p.printf("</table>")
	}
	if len(r.Date) > 0 {
		p.printf("<h2>Date</h2>")
		p.header("Column", "Type", "Primary", "Format", "Associated")
		for _, d := range r.Date {
			p.row(d.Name, string(d.DateType), flag(d.PrimaryDate), d.TimeFormat, associated(d.AssociatedColumns))
		}
		p.printf("</table>")
	}
	if len(r.Feature) > 0 {
		p.printf("<h2>Feature</h2>")
		p.header("Column", "Type", "Description")
		for _, f := range r.Feature {
			p.row(f.Name, string(f.FeatureType), f.Description)
		}
		p.printf("</table>")
	}
}

func writeIssues(p *htmlWriter, issues []core.Issue) {
	if len(issues) == 0 {
		return
	}
	p.printf("<h2>Issues</h2>")
	p.header("Code", "Step", "Column", "Message")
	for _, iss := range issues {
		p.row(iss.Code, string(iss.Step), iss.Column, iss.Message)
	}
	p.printf("</table>")
}

// htmlWriter keeps the first write error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *htmlWriter) open(title string) {
	p.printf("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
		esc(title), pageStyle)
}

func (p *htmlWriter) close() {
	p.printf("</body></html>")
}

func (p *htmlWriter) header(cells ...string) {
	p.printf("<table><tr>")
	for _, c := range cells {
		p.printf("<th>%s</th>", esc(c))
	}
	p.printf("</tr>")
}

func (p *htmlWriter) row(cells ...string) {
	p.printf("<tr>")
	for _, c := range cells {
		p.printf("<td>%s</td>", esc(c))
	}
	p.printf("</tr>")
}

func esc(s string) string { return templ.EscapeString(s) }

func flag(b *bool) string {
	switch {
	case b == nil:
		return ""
	case *b:
		return "yes"
	}
	return "no"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func coordFormat(c *annotation.CoordFormat) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

func associated(m map[annotation.TimeField]string) string {
	parts := make([]string, 0, len(m))
	for field, col := range m {
		parts = append(parts, string(field)+"="+col)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
