package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/stats"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func renderProgress(p events.Progress) string {
	prefix := p.Kind
	if p.TotalSteps > 0 {
		prefix = fmt.Sprintf("%s %d/%d", p.Kind, p.Step, p.TotalSteps)
	}
	return progressStyle.Render(fmt.Sprintf("[%s] %s", prefix, p.Message))
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64) + "s"
}

func speedup(c stats.Comparison) (faster, factor string) {
	if c.Faster == "" {
		return "-", "-"
	}
	return model.Backend(c.Faster).Title(), fmt.Sprintf("%.2fx", c.SpeedupFactor)
}

func renderGeneration(doc snapshot.GenerationMetrics) string {
	t := newTable("Entity", "Count", "PostgreSQL", "Neo4j", "Faster", "Speedup")
	for _, kind := range model.Kinds {
		faster, factor := speedup(doc.Comparison[kind])
		t.Row(
			string(kind),
			strconv.FormatInt(doc.Counts[kind], 10),
			seconds(doc.Databases[model.PostgreSQL][kind].TotalTime),
			seconds(doc.Databases[model.Neo4j][kind].TotalTime),
			faster,
			factor,
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		t.Render(),
		fmt.Sprintf("wall %s, peak memory %.1f MB", seconds(doc.Duration), doc.Memory.PeakMB),
	)
}

func renderResults(res *bench.Results) string {
	t := newTable("Operation", "Level", "PostgreSQL avg", "Neo4j avg", "Errors", "Faster", "Speedup")
	for _, op := range res.Operations {
		level := "-"
		if op.Level > 0 {
			level = strconv.Itoa(op.Level)
		}
		faster, factor := speedup(op.Comparison)
		t.Row(
			string(op.Operation),
			level,
			seconds(op.Stats[model.PostgreSQL].Mean),
			seconds(op.Stats[model.Neo4j].Mean),
			fmt.Sprintf("%d/%d", op.Errors[model.PostgreSQL], op.Errors[model.Neo4j]),
			faster,
			factor,
		)
	}
	return t.Render()
}
