package funnel

import "fmt"

// SegmentKeyFunc extracts a journey's value on one segmentation axis. The
// boolean reports whether the journey belongs on the axis at all: sessions
// with an unrecognized category value return false and stay out of the
// breakdown without affecting the global report.
type SegmentKeyFunc func(Journey) (string, bool)

// SegmentReports partitions journeys by key and computes an independent
// report per partition. Every key observed in the input gets an entry, even
// for a single session, and no partition's report reads another's data.
func SegmentReports(journeys []Journey, keyFn SegmentKeyFunc) (map[string]*FunnelReport, error) {
	partitions := make(map[string][]Journey)
	for _, j := range journeys {
		key, ok := keyFn(j)
		if !ok {
			continue
		}
		partitions[key] = append(partitions[key], j)
	}

	reports := make(map[string]*FunnelReport, len(partitions))
	for key, part := range partitions {
		report, err := ComputeMetrics(Aggregate(part))
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", key, err)
		}
		reports[key] = report
	}

	return reports, nil
}
