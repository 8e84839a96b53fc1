package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleTopology = "testdata/ls-bizerte-01.yaml"
	chamberID      = "2a9d4c61-8e37-4f0b-b1a2-5c6d7e8f9012"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSimulateCommand(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantKm    float64
		precision string
		matched   bool
	}{
		{
			name:      "head end",
			args:      []string{"-d", "1.5"},
			wantKm:    1.5,
			precision: "medium",
			matched:   true,
		},
		{
			name:      "tail end defaults to scanning toward the head",
			args:      []string{"-d", "1.7", "--probe", "tail_end"},
			wantKm:    1.5,
			precision: "medium",
			matched:   true,
		},
		{
			name:      "intermediate probe on chamber",
			// стара відстань CH-12 з файлу: 1.0 км
			args:      []string{"-d", "0.5", "--probe", "intermediate", "--reference", chamberID},
			wantKm:    1.5,
			precision: "medium",
			matched:   true,
		},
		{
			name:      "custom thresholds",
			args:      []string{"-d", "1.5", "--high-below", "2", "--medium-below", "3"},
			wantKm:    1.5,
			precision: "high",
			matched:   true,
		},
		{
			name:      "beyond the tail end",
			args:      []string{"-d", "9"},
			wantKm:    9,
			precision: "low",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"simulate", "-t", sampleTopology}, tt.args...)...)
			require.NoError(t, err)

			var res struct {
				AbsoluteDistanceKm float64          `json:"absolute_distance_km"`
				OffsetKm           *float64         `json:"offset_km"`
				Precision          string           `json:"precision"`
				Segment            *json.RawMessage `json:"segment"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.InDelta(t, tt.wantKm, res.AbsoluteDistanceKm, 1e-9)
			assert.Equal(t, tt.precision, res.Precision)
			if tt.matched {
				require.NotNil(t, res.OffsetKm)
				assert.InDelta(t, 0.4, *res.OffsetKm, 1e-9)
			} else {
				assert.Nil(t, res.Segment)
			}
		})
	}
}

func TestSimulateCommandErrors(t *testing.T) {
	_, err := execute(t, "simulate", "-t", sampleTopology, "-d", "1", "--probe", "intermediate")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "-t", sampleTopology, "-d", "1", "--probe", "intermediate", "--reference", "nope")
	assert.ErrorContains(t, err, "reference")

	_, err = execute(t, "simulate", "-t", "testdata/missing.yaml", "-d", "1")
	assert.ErrorContains(t, err, "read topology")

	_, err = execute(t, "simulate", "-t", sampleTopology)
	assert.ErrorContains(t, err, "distance")
}

func TestCheckCommandReportsStaleDistances(t *testing.T) {
	out, err := execute(t, "check", "-t", sampleTopology)
	require.NoError(t, err)

	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "LS-BIZERTE-01", report.Liaison)
	assert.Equal(t, 1, report.Points)
	assert.Equal(t, 2, report.Segments)
	assert.True(t, report.HeadAnchored)
	assert.True(t, report.TailAnchored)
	assert.InDelta(t, 3.2, report.TotalCableKm, 1e-9)
	assert.Empty(t, report.Warnings)

	require.Len(t, report.DistanceChanges, 1)
	assert.Equal(t, "CH-12", report.DistanceChanges[0].Name)
	assert.InDelta(t, 1.0, report.DistanceChanges[0].StoredKm, 1e-9)
	assert.InDelta(t, 1.1, report.DistanceChanges[0].RecompKm, 1e-9)

	_, err = execute(t, "check", "-t", sampleTopology, "--strict")
	assert.ErrorContains(t, err, "1 distance changes")
}

func TestCheckCommandRejectsBrokenTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
liaison:
  name: LS-BROKEN
  total_length_km: 1
points:
  - id: 2a9d4c61-8e37-4f0b-b1a2-5c6d7e8f9012
    ordre: 3
    type: chamber
    name: CH-1
segments: []
`), 0o600))

	_, err := execute(t, "check", "-t", path)
	assert.ErrorContains(t, err, "ordre")
}

func TestDistanceCommand(t *testing.T) {
	out, err := execute(t, "distance", "36.80", "10.00", "36.81", "10.00")
	require.NoError(t, err)
	assert.Equal(t, "1.113 km, bearing 0.0° (N)\n", out)

	_, err = execute(t, "distance", "36.80", "10.00", "north", "10.00")
	assert.ErrorContains(t, err, "argument 3")

	_, err = execute(t, "distance", "95", "10.00", "36.81", "10.00")
	assert.Error(t, err)

	_, err = execute(t, "distance", "36.80")
	assert.Error(t, err)
}
