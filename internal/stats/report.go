// Package stats builds the end-of-run statistics report from a session's
// frame records.
package stats

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/correlate"
	"firestige.xyz/framelat/internal/latency"
	"firestige.xyz/framelat/internal/record"
)

// Report formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// MetricEncodedSize is the encoded frame size in bytes.
const MetricEncodedSize = "encoded_size"

// Units.
const (
	UnitBytes = "bytes"
	UnitMs    = "ms"
)

// Metric is the summary of one named per-frame value.
type Metric struct {
	Name    string  `yaml:"name"`
	Unit    string  `yaml:"unit"`
	Summary Summary `yaml:"summary"`
}

// Report is the end-of-run summary of one endpoint.
type Report struct {
	Session     string            `yaml:"session"`
	Endpoint    core.Endpoint     `yaml:"endpoint"`
	Total       int               `yaml:"total"`
	Complete    int               `yaml:"complete"`
	Incomplete  int               `yaml:"incomplete"`
	Correlation *correlate.Counts `yaml:"correlation,omitempty"`
	Metrics     []Metric          `yaml:"metrics"`
}

type extractor struct {
	name string
	unit string
	fn   func(r record.FrameRecord) (float64, error)
}

func encodedSize(r record.FrameRecord) (float64, error) {
	size, ok := r.EncodedSize.Get()
	if !ok {
		return 0, fmt.Errorf("%w: sequence %d has no encoded_size", core.ErrIncompleteRecord, r.Sequence)
	}
	return float64(size), nil
}

var senderMetrics = []extractor{
	{MetricEncodedSize, UnitBytes, encodedSize},
	{latency.MetricEncoding, UnitMs, latency.Encoding},
	{latency.MetricServerDecode, UnitMs, latency.ServerDecode},
	{latency.MetricServerProcessing, UnitMs, latency.ServerProcessing},
	{latency.MetricNetworkRoundTrip, UnitMs, latency.NetworkRoundTrip},
	{latency.MetricFullRoundTrip, UnitMs, latency.FullRoundTrip},
}

var receiverMetrics = []extractor{
	{MetricEncodedSize, UnitBytes, encodedSize},
	{latency.MetricDecode, UnitMs, latency.Decode},
	{latency.MetricProcessing, UnitMs, latency.Processing},
}

// Build partitions records into complete and incomplete and summarises
// every metric of the endpoint over the complete ones. A sender record is
// complete once encoded and acknowledged; a receiver record once decoded
// and acknowledged.
//
// With no complete record the returned report carries only the counts and
// the error wraps core.ErrEmptyDataset.
func Build(endpoint core.Endpoint, records []record.FrameRecord, percentiles []float64) (*Report, error) {
	complete, extractors := senderComplete, senderMetrics
	if endpoint == core.EndpointReceiver {
		complete, extractors = receiverComplete, receiverMetrics
	}

	rep := &Report{Endpoint: endpoint, Total: len(records)}
	done := make([]record.FrameRecord, 0, len(records))
	for _, r := range records {
		if complete(r) {
			done = append(done, r)
		}
	}
	rep.Complete = len(done)
	rep.Incomplete = rep.Total - rep.Complete
	if len(done) == 0 {
		return rep, fmt.Errorf("%w: no complete record among %d", core.ErrEmptyDataset, rep.Total)
	}

	for _, ex := range extractors {
		values := make([]float64, 0, len(done))
		for _, r := range done {
			v, err := ex.fn(r)
			if err != nil {
				return rep, err
			}
			values = append(values, v)
		}
		sum, err := Summarize(values, percentiles)
		if err != nil {
			return rep, fmt.Errorf("summarize %s: %w", ex.name, err)
		}
		rep.Metrics = append(rep.Metrics, Metric{Name: ex.name, Unit: ex.unit, Summary: sum})
	}
	return rep, nil
}

func senderComplete(r record.FrameRecord) bool {
	return r.Complete()
}

func receiverComplete(r record.FrameRecord) bool {
	return r.Decoded() && r.AckSentTS.IsSet()
}

// Metric returns the named metric, or nil.
func (r *Report) Metric(name string) *Metric {
	for i := range r.Metrics {
		if r.Metrics[i].Name == name {
			return &r.Metrics[i]
		}
	}
	return nil
}

// Render writes the report as text or yaml.
func (r *Report) Render(w io.Writer, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return r.renderText(w)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

func (r *Report) renderText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s (%s)\n", r.Session, r.Endpoint)
	fmt.Fprintf(&b, "frames: %d total, %d complete, %d incomplete\n", r.Total, r.Complete, r.Incomplete)
	if c := r.Correlation; c != nil {
		fmt.Fprintf(&b, "acks: %d direct, %d fallback, %d duplicate, %d dropped\n",
			c.Direct, c.Fallback, c.Duplicate, c.Dropped)
	}
	if len(r.Metrics) == 0 {
		b.WriteString("no complete frames, statistics skipped\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%-26s %10s %10s %10s %10s", "metric", "min", "mean", "median", "max")
	for _, p := range r.Metrics[0].Summary.Percentiles {
		fmt.Fprintf(&b, " %10s", fmt.Sprintf("p%g", p.P))
	}
	b.WriteString("\n")

	for _, m := range r.Metrics {
		s := m.Summary
		fmt.Fprintf(&b, "%-26s %10s %10s %10s %10s", m.Name+" ("+m.Unit+")",
			formatValue(m.Unit, s.Min), formatValue(m.Unit, s.Mean), formatValue(m.Unit, s.Median), formatValue(m.Unit, s.Max))
		for _, p := range s.Percentiles {
			fmt.Fprintf(&b, " %10s", formatValue(m.Unit, p.Value))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatValue(unit string, v float64) string {
	if unit == UnitBytes {
		if v < 0 {
			v = 0
		}
		return humanize.Bytes(uint64(v + 0.5))
	}
	return fmt.Sprintf("%.3f", v)
}
