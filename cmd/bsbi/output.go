package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/merge"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Block-Sort-Indexer/pkg/health"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

func field(label string, value any) string {
	return fmt.Sprintf("%s %v", dimStyle.Render(label), value)
}

func printBuildSummary(w io.Writer, res pipeline.Result) {
	lines := []string{
		titleStyle.Render("Build Complete") + "  " + successStyle.Render("OK"),
		field("Build:", res.BuildID),
		field("Documents:", res.Documents) + "  " + field("Chunks:", res.Chunks) + "  " + field("Rounds:", res.Rounds),
		field("Terms:", res.Terms) + "  " + field("Postings:", res.Postings),
		field("Index:", res.FinalPath),
		field("Elapsed:", res.Elapsed.Round(time.Millisecond)),
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func printMergeSummary(w io.Writer, out string, stats merge.Stats) {
	lines := []string{
		titleStyle.Render("Merge Complete"),
		field("Inputs:", fmt.Sprintf("%d + %d terms", stats.TermsA, stats.TermsB)),
		field("Output:", fmt.Sprintf("%d terms (%d shared)", stats.TermsOut, stats.Shared)),
		field("Refills:", stats.Refills),
		field("Index:", out),
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func printHits(w io.Writer, hits []lookup.Hit) {
	for _, h := range hits {
		if !h.Found {
			fmt.Fprintf(w, "%s %s\n", titleStyle.Render(h.Query), dimStyle.Render("(not found)"))
			continue
		}
		label := h.Query
		if h.Term != h.Query {
			label = fmt.Sprintf("%s -> %s", h.Query, h.Term)
		}
		ids := make([]string, len(h.Postings))
		for i, id := range h.Postings {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "%s %s %s\n", titleStyle.Render(label), dimStyle.Render(fmt.Sprintf("[%d]", len(ids))), strings.Join(ids, " "))
	}
}

func printReport(w io.Writer, report health.Report) {
	for _, c := range report.Components {
		status := successStyle.Render("up")
		if c.Status == health.StatusDown {
			status = errorStyle.Render("down")
			if c.Optional {
				status = dimStyle.Render("down (optional)")
			}
		}
		line := fmt.Sprintf("%-12s %s %s", c.Name, status, dimStyle.Render(c.Latency))
		if c.Message != "" {
			line += "  " + c.Message
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, titleStyle.Render("overall: "+string(report.Status)))
}
