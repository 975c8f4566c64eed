package service

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DurationStats summarizes utterance lengths in seconds.
type DurationStats struct {
	Count  int           `json:"count"`
	Total  time.Duration `json:"total"`
	Mean   float64       `json:"mean_sec"`
	StdDev float64       `json:"stddev_sec"`
	Min    float64       `json:"min_sec"`
	P50    float64       `json:"p50_sec"`
	P95    float64       `json:"p95_sec"`
	Max    float64       `json:"max_sec"`
}

func SummarizeDurations(d map[string]time.Duration) DurationStats {
	if len(d) == 0 {
		return DurationStats{}
	}
	xs := make([]float64, 0, len(d))
	var total time.Duration
	for _, v := range d {
		xs = append(xs, v.Seconds())
		total += v
	}
	sort.Float64s(xs)

	s := DurationStats{Count: len(xs), Total: total, Min: xs[0], Max: xs[len(xs)-1]}
	if len(xs) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	} else {
		s.Mean = xs[0]
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, xs, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, xs, nil)
	return s
}
