package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shopfront/stagerunner/types"
)

// TableFormatter renders the console summary table shown at the end of a
// run.
type TableFormatter struct {
	title string
}

// NewTableFormatter creates a console table formatter.
func NewTableFormatter(title string) *TableFormatter {
	return &TableFormatter{title: title}
}

// Format renders the stage results as a table string.
func (f *TableFormatter) Format(data *ReportData) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s (run %s)", f.title, data.RunID))
	t.AppendHeader(table.Row{"LAYER", "STAGE", "STATUS", "DURATION", "ERROR"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "LAYER", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "ERROR", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, stage := range data.Stages {
		errText := ""
		if stage.Error != nil {
			errText = stage.Error.Error()
		}
		t.AppendRow(table.Row{
			int(stage.ID),
			stage.Name,
			statusMarker(stage.Status),
			formatDuration(stage.Duration),
			errText,
		})
	}

	t.AppendFooter(table.Row{"", "TOTAL", data.Status,
		formatDuration(data.Duration),
		fmt.Sprintf("%d passed, %d failed, %d skipped",
			data.Stats.Passed, data.Stats.Failed, data.Stats.Skipped)})

	switch data.Status {
	case types.StageStatusFail:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.StageStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	return t.Render() + "\n"
}

func statusMarker(status types.StageStatus) string {
	switch status {
	case types.StageStatusPass:
		return "✓ pass"
	case types.StageStatusFail:
		return "✗ fail"
	case types.StageStatusSkip:
		return "- skip"
	default:
		return string(status)
	}
}

func formatDuration(d time.Duration) string {
	return strings.TrimSpace(fmt.Sprintf("%.1fs", d.Seconds()))
}
