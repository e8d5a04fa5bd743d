// Package scoring derives product momentum and keyword opportunity
// scores from persisted snapshots.
package scoring

import (
	"math"
	"sort"
)

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	return percentile(values, 50)
}

// percentile uses nearest-rank interpolation on a sorted copy.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// interquartileRange returns P75 - P25.
func interquartileRange(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return percentile(values, 75) - percentile(values, 25)
}

// shannonEntropy computes natural-log entropy over label frequencies,
// used as a brand diversity proxy.
func shannonEntropy(labels []string) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	total := float64(len(labels))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log(p)
	}
	return entropy
}

// rangeNormalizer rescales values into [0,1] against min/max observed
// across one metrics run. The bounds are cross-sectional on purpose:
// scores are relative to the keyword set processed together.
type rangeNormalizer struct {
	min, max float64
	seen     bool
}

func (n *rangeNormalizer) observe(v float64) {
	if !n.seen {
		n.min, n.max = v, v
		n.seen = true
		return
	}
	if v < n.min {
		n.min = v
	}
	if v > n.max {
		n.max = v
	}
}

func (n *rangeNormalizer) norm(v float64) float64 {
	if !n.seen || n.max == n.min {
		return 0.5
	}
	return clamp01((v - n.min) / (n.max - n.min))
}
