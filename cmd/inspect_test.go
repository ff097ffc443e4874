package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/autopark-gthost/odocheck/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectFiltersAndLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.parquet")
	l, err := ledger.Open(path)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	for i, car := range []int64{12, 7, 12} {
		require.NoError(t, l.Append(ledger.Entry{
			ReceivedAt: at.Add(time.Duration(i) * time.Minute).UnixMilli(),
			CarID:      car,
			Action:     "start",
			Latitude:   55,
			Longitude:  37,
			Odometer:   float64(54321 + i),
			Photos:     4,
			PhotoBytes: 4096,
		}))
	}

	tests := []struct {
		name     string
		args     []string
		count    string
		contains []string
		excludes []string
	}{
		{
			name:     "all",
			args:     []string{path, "--limit", "0"},
			count:    "3 reports",
			contains: []string{"54321", "54322", "54323"},
		},
		{
			name:     "car filter",
			args:     []string{path, "--car", "12"},
			count:    "2 reports",
			contains: []string{"54321", "54323"},
			excludes: []string{"54322"},
		},
		{
			name:     "limit keeps newest",
			args:     []string{path, "--limit", "1"},
			count:    "1 reports",
			contains: []string{"54323", "2026-03-01 09:32:00"},
			excludes: []string{"54321"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newInspectCmd()
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)
			require.NoError(t, cmd.Execute())

			assert.Contains(t, out.String(), tt.count)
			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out.String(), s)
			}
		})
	}
}

func TestInspectMissingFile(t *testing.T) {
	cmd := newInspectCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.parquet")})
	assert.Error(t, cmd.Execute())
}
