package synthetic

import (
	"fmt"
	"math"

	"github.com/epiqlabs/epiq/internal/domain/infer"
)

// Verify compares a fit against the truth its dataset was generated
// from. Coverage is the fraction of true qualities inside the fitted
// 3%..97% interval.
func Verify(res *infer.Result, truth *Truth) (*Report, error) {
	if res == nil || truth == nil {
		return nil, fmt.Errorf("%w: missing result or truth", ErrTruthShape)
	}
	if res.NumEpisodes() != len(truth.Quality) {
		return nil, fmt.Errorf("%w: fit has %d episodes, truth has %d", ErrTruthShape, res.NumEpisodes(), len(truth.Quality))
	}

	report := &Report{Episodes: res.NumEpisodes()}
	covered := 0
	sumErr := 0.0
	for i, want := range truth.Quality {
		ep, err := res.Episode(i)
		if err != nil {
			return nil, err
		}
		diff := math.Abs(ep.Quality.Mean - want)
		sumErr += diff
		if diff > report.MaxAbsErr {
			report.MaxAbsErr = diff
		}
		if want >= ep.Quality.Q3 && want <= ep.Quality.Q97 {
			covered++
		}
	}
	report.MeanAbsErr = sumErr / float64(report.Episodes)
	report.Coverage = float64(covered) / float64(report.Episodes)
	report.ShowMeanErr = math.Abs(res.Hyper().ShowMean.Mean - truth.ShowMean)
	report.Warnings = res.Warnings()
	return report, nil
}
