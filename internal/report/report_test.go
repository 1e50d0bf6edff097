package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/count"
	"github.com/MeKo-Tech/ballotcount/internal/tally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *count.Result {
	return &count.Result{
		RunID: "run-1",
		Poll:  "district-7",
		Summary: tally.Summary{
			TotalBallots: 2, ValidBallots: 1, InvalidBallots: 1, InvalidIDs: []string{"b2"},
		},
		Tally: []tally.Entry{
			{CandidateID: 1, Name: "NGUYEN VAN A", Count: 3},
			{CandidateID: 2, Name: "TRAN THI B", Count: 0},
		},
		Records: []*ballot.Record{
			{
				ID: "b1", Source: "scans/b1.png", Template: "data1", Stage: ballot.StageValidTallied, Valid: true,
				Selections: []ballot.Selection{{Row: 1, CandidateID: 1}, {Row: 2, CandidateID: 1}},
			},
			{
				ID: "b2", Source: "scans/b2.png", Template: "data1", Stage: ballot.StageInvalid,
				Reason: ballot.KindRowExclusivityViolation, Detail: "row 4: row must mark exactly one of agree/disagree",
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, " csv ": FormatCSV, "Records": FormatRecords} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	summary := got["summary"].(map[string]any)
	assert.InDelta(t, 1, summary["invalid_ballots"], 0)
	ballots := got["ballots"].([]any)
	b2 := ballots[1].(map[string]any)
	assert.Equal(t, "INVALID", b2["stage"])
	assert.Equal(t, "RowExclusivityViolation", b2["reason"])
}

func TestTallyCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), FormatCSV))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"candidate_id", "candidate_name", "selection_count"},
		{"1", "NGUYEN VAN A", "3"},
		{"2", "TRAN THI B", "0"},
	}, rows)
}

func TestRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RecordsCSV(&buf, sample()))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"b1", "scans/b1.png", "data1", "false", "", "VALID_TALLIED", "true", "", "", "1;1"}, rows[1])
	assert.Equal(t, "RowExclusivityViolation", rows[2][7])
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), FormatText))
	out := buf.String()
	assert.Contains(t, out, "Tally for district-7")
	assert.Contains(t, out, "NGUYEN VAN A")
	assert.Contains(t, out, "Selections")
	assert.Contains(t, out, "Ballots: 2 total, 1 valid, 1 invalid")
	assert.Contains(t, out, "b2: RowExclusivityViolation (row 4")
	assert.NotContains(t, out, "b1:")
	assert.Less(t, strings.Index(out, "NGUYEN"), strings.Index(out, "TRAN"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tally.csv")
	require.NoError(t, WriteFile(path, sample(), FormatCSV))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "candidate_id,"))
}
