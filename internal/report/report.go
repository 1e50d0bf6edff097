// Package report renders counting results as JSON, CSV or a text table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/count"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Format selects an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	// FormatRecords is one CSV line per ballot instead of per candidate.
	FormatRecords Format = "records"
)

// ParseFormat accepts text, json, csv or records, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatCSV, FormatRecords:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, csv or records)", s)
	}
}

// Write renders res to w.
func Write(w io.Writer, res *count.Result, f Format) error {
	switch f {
	case FormatJSON:
		return JSON(w, res)
	case FormatCSV:
		return TallyCSV(w, res)
	case FormatRecords:
		return RecordsCSV(w, res)
	default:
		return Text(w, res)
	}
}

// WriteFile renders res into path, creating parent directories.
func WriteFile(path string, res *count.Result, f Format) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path) //nolint:gosec // G304: operator-chosen output path
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(file, res, f)
}

// JSON writes the full result including per-row classifier details.
func JSON(w io.Writer, res *count.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// TallyCSV writes one line per candidate in snapshot order.
func TallyCSV(w io.Writer, res *count.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"candidate_id", "candidate_name", "selection_count"}); err != nil {
		return err
	}
	for _, e := range res.Tally {
		if err := cw.Write([]string{strconv.Itoa(e.CandidateID), e.Name, strconv.Itoa(e.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RecordsCSV writes one line per ballot.
func RecordsCSV(w io.Writer, res *count.Result) error {
	cw := csv.NewWriter(w)
	header := []string{
		"ballot_id", "source", "template", "template_fallback", "estimated_corner",
		"stage", "valid", "reason", "detail", "selections",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range res.Records {
		if err := cw.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordRow(rec *ballot.Record) []string {
	ids := make([]string, len(rec.Selections))
	for i, s := range rec.Selections {
		ids[i] = strconv.Itoa(s.CandidateID)
	}
	return []string{
		rec.ID,
		rec.Source,
		rec.Template,
		strconv.FormatBool(rec.TemplateFallback),
		rec.EstimatedCorner,
		rec.Stage.String(),
		strconv.FormatBool(rec.Valid),
		string(rec.Reason),
		rec.Detail,
		strings.Join(ids, ";"),
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	countStyle  = cellStyle.Align(lipgloss.Right)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	invalidHead = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

// Text writes the tally table, the summary and the invalid ballots.
func Text(w io.Writer, res *count.Result) error {
	var b strings.Builder

	title := "Tally"
	if res.Poll != "" {
		title += " for " + res.Poll
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "Candidate", "Selections").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2:
				return countStyle
			default:
				return cellStyle
			}
		})
	for _, e := range res.Tally {
		t.Row(strconv.Itoa(e.CandidateID), e.Name, strconv.Itoa(e.Count))
	}
	b.WriteString(t.String())
	b.WriteString("\n\n")

	s := res.Summary
	fmt.Fprintf(&b, "Ballots: %d total, %d valid, %d invalid\n", s.TotalBallots, s.ValidBallots, s.InvalidBallots)
	if len(s.InvalidIDs) > 0 {
		b.WriteString(invalidHead.Render("Invalid ballots"))
		b.WriteString("\n")
		for _, rec := range res.Records {
			if rec.Valid {
				continue
			}
			fmt.Fprintf(&b, "  %s: %s", rec.ID, rec.Reason)
			if rec.Detail != "" {
				fmt.Fprintf(&b, " (%s)", rec.Detail)
			}
			b.WriteString("\n")
		}
	}
	if res.RunID != "" {
		fmt.Fprintf(&b, "Run %s\n", res.RunID)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
