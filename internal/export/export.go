package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"log/slog"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"funnelscope/internal/analytics"
	"funnelscope/internal/funnel"
)

// Analysis file names, one per exported table.
const (
	FunnelFileName     = "funnel_analysis.csv"
	BottleneckFileName = "bottleneck_analysis.csv"
	DeviceFileName     = "device_analysis.csv"
	SourceFileName     = "traffic_source_analysis.csv"
)

// WriteFunnelCSV writes the per-stage funnel table: session counts,
// conversion from the funnel entry, and drop-off to the next stage. The
// last stage has no next stage, so its drop-off column is N/A.
func WriteFunnelCSV(w io.Writer, report *funnel.FunnelReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Stage", "Sessions", "Conversion_Rate_from_Start", "Drop_Rate_to_Next"}); err != nil {
		return err
	}

	for i, stage := range report.Stages {
		dropRate := "N/A"
		if i < len(report.Transitions) {
			dropRate = percent(report.Transitions[i].DropoffRate)
		}
		row := []string{
			stage.Stage,
			strconv.FormatInt(stage.Count, 10),
			percent(stage.ConversionRate),
			dropRate,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteBottlenecksCSV writes the ranked bottleneck table, worst transition
// first.
func WriteBottlenecksCSV(w io.Writer, report *funnel.FunnelReport) error {
	caser := cases.Title(language.English)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Transition", "Sessions_Lost", "Drop_Rate", "Drop_Rate_Numeric", "Severity"}); err != nil {
		return err
	}

	for _, tr := range report.Bottlenecks {
		row := []string{
			fmt.Sprintf("%s → %s", tr.From, tr.To),
			strconv.FormatInt(tr.SessionsLost, 10),
			percent(tr.DropoffRate),
			strconv.FormatFloat(tr.DropoffRate, 'f', -1, 64),
			caser.String(string(tr.Severity)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSegmentsCSV writes the per-segment conversion table for one axis.
// Each row shows a segment's funnel entries, completed purchases and
// entry-to-purchase conversion, sorted by segment name so output is stable.
func WriteSegmentsCSV(w io.Writer, labelColumn string, segments map[string]*funnel.FunnelReport) error {
	caser := cases.Title(language.English)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{labelColumn, "Sessions", "Conversions", "Conversion_Rate", "Conversion_Rate_Numeric"}); err != nil {
		return err
	}

	names := make([]string, 0, len(segments))
	for name := range segments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		report := segments[name]
		purchase := report.Stages[funnel.NumStages-1]
		row := []string{
			caser.String(name),
			strconv.FormatInt(report.Stages[0].Count, 10),
			strconv.FormatInt(purchase.Count, 10),
			percent(purchase.ConversionRate),
			strconv.FormatFloat(purchase.ConversionRate, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Exporter writes the full set of analysis files into one directory.
type Exporter struct {
	Directory string
	Logger    *slog.Logger
}

// NewExporter creates a new exporter writing into directory.
func NewExporter(directory string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{Directory: directory, Logger: logger}
}

// ExportReport writes the funnel, bottleneck, device and traffic source
// analyses and returns the paths written.
func (e *Exporter) ExportReport(report *analytics.FullReport) ([]string, error) {
	if err := os.MkdirAll(e.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", e.Directory, err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{FunnelFileName, func(w io.Writer) error { return WriteFunnelCSV(w, report.Global) }},
		{BottleneckFileName, func(w io.Writer) error { return WriteBottlenecksCSV(w, report.Global) }},
		{DeviceFileName, func(w io.Writer) error { return WriteSegmentsCSV(w, "Device", report.ByDevice) }},
		{SourceFileName, func(w io.Writer) error { return WriteSegmentsCSV(w, "Traffic_Source", report.BySource) }},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(e.Directory, f.name)
		if err := writeFile(path, f.write); err != nil {
			return nil, err
		}
		e.Logger.Info("Wrote analysis file", slog.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
