package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TextSummarySink writes the plain-text run summary to summary.log.
type TextSummarySink struct {
	dir string
}

// NewTextSummarySink creates a text sink writing into dir.
func NewTextSummarySink(dir string) *TextSummarySink {
	return &TextSummarySink{dir: dir}
}

func (s *TextSummarySink) Generate(data *ReportData) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline run %s\n", data.RunID)
	fmt.Fprintf(&b, "Started:  %s\n", data.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(data.Duration))
	fmt.Fprintf(&b, "Status:   %s\n\n", data.Status)

	for _, stage := range data.Stages {
		fmt.Fprintf(&b, "%-22s %-6s %8s", stage.Name, stage.Status, formatDuration(stage.Duration))
		if stage.Error != nil {
			fmt.Fprintf(&b, "  %s", stage.Error)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nArtifacts:\n")
	for _, a := range data.Artifacts {
		fmt.Fprintf(&b, "  %-34s %s\n", a.Spec.Path, a.StateText())
	}

	return writeFile(filepath.Join(s.dir, "summary.log"), []byte(b.String()))
}

// MarkdownSink writes the run summary as summary.md, formatted for CI job
// summaries.
type MarkdownSink struct {
	dir string
}

// NewMarkdownSink creates a markdown sink writing into dir.
func NewMarkdownSink(dir string) *MarkdownSink {
	return &MarkdownSink{dir: dir}
}

func (s *MarkdownSink) Generate(data *ReportData) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Test Pipeline Summary\n\n")
	fmt.Fprintf(&b, "**Run** `%s` — **%s** in %s (%d passed, %d failed, %d skipped)\n\n",
		data.RunID, strings.ToUpper(string(data.Status)), formatDuration(data.Duration),
		data.Stats.Passed, data.Stats.Failed, data.Stats.Skipped)

	b.WriteString("| Layer | Stage | Status | Duration |\n")
	b.WriteString("|---:|---|---|---:|\n")
	for _, stage := range data.Stages {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n",
			int(stage.ID), stage.Name, mdStatus(string(stage.Status)), formatDuration(stage.Duration))
	}

	b.WriteString("\n## Artifacts\n\n")
	b.WriteString("| Artifact | Status | Size |\n")
	b.WriteString("|---|---|---:|\n")
	for _, a := range data.Artifacts {
		size := "-"
		if a.Present {
			size = fmt.Sprintf("%d B", a.Size)
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", a.Spec.Path, a.StateText(), size)
	}

	return writeFile(filepath.Join(s.dir, "summary.md"), []byte(b.String()))
}

func mdStatus(status string) string {
	switch status {
	case "pass":
		return "✅ pass"
	case "fail":
		return "❌ fail"
	case "skip":
		return "⏭️ skip"
	}
	return status
}

var htmlSummaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Test Pipeline Summary — {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-bottom: 2rem; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
.pass { color: #1a7f37; } .fail { color: #cf222e; } .skip { color: #9a6700; }
</style>
</head>
<body>
<h1>Test Pipeline Summary</h1>
<p>Run <code>{{.RunID}}</code> — <strong class="{{.Status}}">{{.Status}}</strong>
({{.Stats.Passed}} passed, {{.Stats.Failed}} failed, {{.Stats.Skipped}} skipped)</p>
<table>
<tr><th>Layer</th><th>Stage</th><th>Status</th><th>Duration</th><th>Error</th></tr>
{{range .Stages}}<tr>
<td>{{.ID}}</td><td>{{.Name}}</td><td class="{{.Status}}">{{.Status}}</td>
<td>{{.Duration}}</td><td>{{with .Error}}{{.}}{{end}}</td>
</tr>
{{end}}</table>
<h2>Artifacts</h2>
<table>
<tr><th>Artifact</th><th>Status</th><th>Size</th></tr>
{{range .Artifacts}}<tr>
<td><code>{{.Spec.Path}}</code></td><td>{{.StateText}}</td><td>{{if .Present}}{{.Size}} B{{else}}-{{end}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

// HTMLSink writes the run summary as summary.html.
type HTMLSink struct {
	dir string
}

// NewHTMLSink creates an HTML sink writing into dir.
func NewHTMLSink(dir string) *HTMLSink {
	return &HTMLSink{dir: dir}
}

func (s *HTMLSink) Generate(data *ReportData) error {
	var b strings.Builder
	if err := htmlSummaryTemplate.Execute(&b, data); err != nil {
		return fmt.Errorf("failed to render HTML summary: %w", err)
	}
	return writeFile(filepath.Join(s.dir, "summary.html"), []byte(b.String()))
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}
