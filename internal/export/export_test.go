package export_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelscope/internal/analytics"
	"funnelscope/internal/export"
	"funnelscope/internal/funnel"
	"funnelscope/internal/testsupport"
)

func mustReport(t *testing.T, counts funnel.StageCounts) *funnel.FunnelReport {
	t.Helper()
	report, err := funnel.ComputeMetrics(counts)
	require.NoError(t, err)
	return report
}

func parseCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteFunnelCSV(t *testing.T) {
	report := mustReport(t, funnel.StageCounts{100, 80, 60, 40, 30, 20, 15, 10})

	var buf bytes.Buffer
	require.NoError(t, export.WriteFunnelCSV(&buf, report))

	rows := parseCSV(t, &buf)
	require.Len(t, rows, funnel.NumStages+1)
	assert.Equal(t, []string{"Stage", "Sessions", "Conversion_Rate_from_Start", "Drop_Rate_to_Next"}, rows[0])
	assert.Equal(t, []string{"Homepage Visit", "100", "100.0%", "20.0%"}, rows[1])
	assert.Equal(t, []string{"Add to Cart", "40", "40.0%", "25.0%"}, rows[4])

	// the last stage has nothing after it
	last := rows[funnel.NumStages]
	assert.Equal(t, "Purchase", last[0])
	assert.Equal(t, "10.0%", last[2])
	assert.Equal(t, "N/A", last[3])
}

func TestWriteBottlenecksCSV(t *testing.T) {
	report := mustReport(t, funnel.StageCounts{100, 80, 60, 40, 30, 20, 15, 10})

	var buf bytes.Buffer
	require.NoError(t, export.WriteBottlenecksCSV(&buf, report))

	rows := parseCSV(t, &buf)
	require.Len(t, rows, funnel.NumStages)
	assert.Equal(t, []string{"Transition", "Sessions_Lost", "Drop_Rate", "Drop_Rate_Numeric", "Severity"}, rows[0])

	// worst transition first, ties broken by funnel position
	assert.Equal(t, "Product Page Visit → Add to Cart", rows[1][0])
	assert.Equal(t, "20", rows[1][1])
	assert.Equal(t, "33.3%", rows[1][2])
	assert.Equal(t, "High", rows[1][4])
	assert.Equal(t, "Cart View → Checkout", rows[2][0])
	assert.Equal(t, "Homepage Visit → Category Page Visit", rows[7][0])
	assert.Equal(t, "Medium", rows[7][4])
}

func TestWriteSegmentsCSV(t *testing.T) {
	segments := map[string]*funnel.FunnelReport{
		"mobile":  mustReport(t, funnel.StageCounts{40, 30, 20, 10, 8, 6, 5, 4}),
		"desktop": mustReport(t, funnel.StageCounts{10, 8, 6, 4, 3, 2, 2, 2}),
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteSegmentsCSV(&buf, "Device", segments))

	rows := parseCSV(t, &buf)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Device", "Sessions", "Conversions", "Conversion_Rate", "Conversion_Rate_Numeric"}, rows[0])
	assert.Equal(t, []string{"Desktop", "10", "2", "20.0%", "0.2"}, rows[1])
	assert.Equal(t, []string{"Mobile", "40", "4", "10.0%", "0.1"}, rows[2])
}

func TestWriteSegmentsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteSegmentsCSV(&buf, "Device", nil))

	rows := parseCSV(t, &buf)
	require.Len(t, rows, 1)
}

func TestExportReport(t *testing.T) {
	report := &analytics.FullReport{
		Global: mustReport(t, funnel.StageCounts{50, 40, 30, 20, 15, 10, 8, 5}),
		ByDevice: map[string]*funnel.FunnelReport{
			"desktop": mustReport(t, funnel.StageCounts{30, 25, 20, 15, 10, 8, 6, 4}),
			"mobile":  mustReport(t, funnel.StageCounts{20, 15, 10, 5, 5, 2, 2, 1}),
		},
		BySource: map[string]*funnel.FunnelReport{
			"organic": mustReport(t, funnel.StageCounts{50, 40, 30, 20, 15, 10, 8, 5}),
		},
		Sessions:    50,
		GeneratedAt: time.Now().UTC(),
	}

	dir := t.TempDir()
	exporter := export.NewExporter(dir, testsupport.GetLogger())

	paths, err := exporter.ExportReport(report)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	for _, name := range []string{
		export.FunnelFileName,
		export.BottleneckFileName,
		export.DeviceFileName,
		export.SourceFileName,
	} {
		path := filepath.Join(dir, name)
		assert.Contains(t, paths, path)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	data, err := os.ReadFile(filepath.Join(dir, export.SourceFileName))
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Organic", rows[1][0])
	assert.Equal(t, "10.0%", rows[1][3])
}

func TestExportReportCreatesDirectory(t *testing.T) {
	report := &analytics.FullReport{
		Global:   mustReport(t, funnel.StageCounts{}),
		ByDevice: map[string]*funnel.FunnelReport{},
		BySource: map[string]*funnel.FunnelReport{},
	}

	dir := filepath.Join(t.TempDir(), "nested", "exports")
	exporter := export.NewExporter(dir, testsupport.GetLogger())

	_, err := exporter.ExportReport(report)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, export.FunnelFileName))
	require.NoError(t, err)
}
