package stats

import (
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"

	"firestige.xyz/framelat/internal/core"
)

// DefaultPercentiles are reported when none are configured.
var DefaultPercentiles = []float64{5, 25, 50, 75, 95}

// Percentile is one order statistic.
type Percentile struct {
	P     float64 `yaml:"p"`
	Value float64 `yaml:"value"`
}

// Summary describes one metric's distribution.
type Summary struct {
	Count       int          `yaml:"count"`
	Min         float64      `yaml:"min"`
	Max         float64      `yaml:"max"`
	Mean        float64      `yaml:"mean"`
	Median      float64      `yaml:"median"`
	Percentiles []Percentile `yaml:"percentiles"`
}

// Summarize computes the summary of data. data is not modified.
func Summarize(data []float64, percentiles []float64) (Summary, error) {
	if len(data) == 0 {
		return Summary{}, core.ErrEmptyDataset
	}
	if percentiles == nil {
		percentiles = DefaultPercentiles
	}

	in := mstats.Float64Data(data)
	s := Summary{Count: len(data)}
	var err error
	if s.Min, err = mstats.Min(in); err != nil {
		return Summary{}, err
	}
	if s.Max, err = mstats.Max(in); err != nil {
		return Summary{}, err
	}
	if s.Mean, err = mstats.Mean(in); err != nil {
		return Summary{}, err
	}
	if s.Median, err = mstats.Median(in); err != nil {
		return Summary{}, err
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	s.Percentiles = make([]Percentile, 0, len(percentiles))
	for _, p := range percentiles {
		s.Percentiles = append(s.Percentiles, Percentile{P: p, Value: interpolate(sorted, p)})
	}
	return s, nil
}

// interpolate returns the p-th percentile of sorted, interpolating
// linearly between the two closest ranks: rank (n-1)*p/100.
func interpolate(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := float64(n-1) * p / 100
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
