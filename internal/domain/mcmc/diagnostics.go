package mcmc

import (
	"fmt"
	"math"
	"sort"
)

// Convergence thresholds for summary warnings.
const (
	rhatWarnThreshold = 1.01
	essWarnThreshold  = 400.0
)

// Stat summarizes one parameter's posterior draws across all chains.
type Stat struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Q97    float64 `json:"q97"`
	RHat   float64 `json:"r_hat"`
	ESS    float64 `json:"ess"`
}

// Summarize computes per-parameter posterior statistics and convergence
// diagnostics. The name function maps a parameter index to its label.
func Summarize(trace *Trace, name func(k int) string) ([]Stat, []Warning) {
	stats := make([]Stat, trace.Dim())
	maxRHat, minESS := 0.0, math.Inf(1)

	for k := 0; k < trace.Dim(); k++ {
		chains := make([][]float64, trace.NumChains())
		for c := range chains {
			chains[c] = trace.ChainValues(c, k)
		}
		flat := trace.Flatten(k)

		mean, sd := meanSD(flat)
		sorted := append([]float64(nil), flat...)
		sort.Float64s(sorted)

		rhat := splitRHat(chains)
		essVal := ess(chains)
		stats[k] = Stat{
			Name:   name(k),
			Mean:   mean,
			SD:     sd,
			Median: quantile(sorted, 0.5),
			Q3:     quantile(sorted, 0.03),
			Q97:    quantile(sorted, 0.97),
			RHat:   rhat,
			ESS:    essVal,
		}
		if rhat > maxRHat {
			maxRHat = rhat
		}
		if essVal < minESS {
			minESS = essVal
		}
	}

	var warnings []Warning
	if maxRHat > rhatWarnThreshold {
		warnings = append(warnings, Warning{
			Kind:    WarningHighRHat,
			Message: fmt.Sprintf("largest split R-hat is %.4f (> %.2f); chains may not have mixed", maxRHat, rhatWarnThreshold),
		})
	}
	if minESS < essWarnThreshold {
		warnings = append(warnings, Warning{
			Kind:    WarningLowESS,
			Message: fmt.Sprintf("smallest effective sample size is %.0f (< %.0f); estimates may be unstable", minESS, essWarnThreshold),
		})
	}
	return stats, warnings
}

// splitRHat is the potential scale reduction factor computed on
// half-chains. Degenerate inputs report 1 so downstream JSON stays
// finite.
func splitRHat(chains [][]float64) float64 {
	var halves [][]float64
	for _, c := range chains {
		h := len(c) / 2
		if h < 2 {
			return 1
		}
		halves = append(halves, c[:h], c[len(c)-h:])
	}

	m := len(halves)
	n := len(halves[0])
	means := make([]float64, m)
	w := 0.0
	for j, seq := range halves {
		mu, sd := meanSD(seq)
		means[j] = mu
		w += sd * sd
	}
	w /= float64(m)
	if w == 0 {
		return 1
	}

	grand, _ := meanSD(means)
	b := 0.0
	for _, mu := range means {
		b += (mu - grand) * (mu - grand)
	}
	b *= float64(n) / float64(m-1)

	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	rhat := math.Sqrt(varPlus / w)
	if !finite(rhat) {
		return 1
	}
	return rhat
}

// ess estimates the effective sample size across chains using paired
// autocorrelations with Geyer's initial monotone truncation.
func ess(chains [][]float64) float64 {
	m := len(chains)
	n := len(chains[0])
	total := float64(m * n)
	if n < 4 {
		return total
	}

	centered := make([][]float64, m)
	w := 0.0
	for j, c := range chains {
		mu, sd := meanSD(c)
		cc := make([]float64, n)
		for i, x := range c {
			cc[i] = x - mu
		}
		centered[j] = cc
		w += sd * sd
	}
	w /= float64(m)
	if w == 0 {
		return total
	}

	// Biased autocovariance at lag t averaged over chains.
	acov := func(t int) float64 {
		sum := 0.0
		for _, cc := range centered {
			s := 0.0
			for i := 0; i+t < n; i++ {
				s += cc[i] * cc[i+t]
			}
			sum += s / float64(n)
		}
		return sum / float64(m)
	}

	varPlus := w * float64(n-1) / float64(n)
	if m > 1 {
		means := make([]float64, m)
		for j, c := range chains {
			means[j], _ = meanSD(c)
		}
		_, sdm := meanSD(means)
		varPlus += sdm * sdm
	}
	if varPlus == 0 {
		return total
	}

	rho := []float64{1, 1 - (w-acov(1))/varPlus}
	even, odd := 1.0, rho[1]
	s := 1
	for s < n-4 && even+odd > 0 {
		even = 1 - (w-acov(s+1))/varPlus
		odd = 1 - (w-acov(s+2))/varPlus
		if even+odd >= 0 {
			rho = append(rho, even, odd)
		}
		s += 2
	}

	// Enforce monotone decrease over consecutive pairs.
	for i := 1; i+2 < len(rho); i += 2 {
		if rho[i+1]+rho[i+2] > rho[i-1]+rho[i] {
			rho[i+1] = (rho[i-1] + rho[i]) / 2
			rho[i+2] = rho[i+1]
		}
	}

	tau := -1.0
	for _, r := range rho {
		tau += 2 * r
	}
	if !finite(tau) || tau <= 0 {
		return total
	}
	return total / tau
}

func meanSD(v []float64) (float64, float64) {
	n := float64(len(v))
	if n == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range v {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// quantile interpolates linearly between order statistics, matching
// the numpy default. The input must be sorted.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
