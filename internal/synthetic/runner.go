package synthetic

import (
	"context"
	"time"

	"github.com/epiqlabs/epiq/internal/domain/bayes"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/infer"
	"github.com/epiqlabs/epiq/internal/domain/mcmc"
	"github.com/epiqlabs/epiq/pkg/logger"
)

// RunCalibration generates a dataset, fits it end to end and reports
// how well the generating truth was recovered.
func RunCalibration(ctx context.Context, cfg *Config, samplerOpts ...mcmc.Option) (*Report, error) {
	log := logger.Get().Named("synthetic")

	records, truth, err := Generate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.New(records)
	if err != nil {
		return nil, err
	}
	graph, err := bayes.Build(ds, bayes.WithBounds(cfg.Lower, cfg.Upper))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	trace, err := mcmc.New(samplerOpts...).Run(ctx, graph)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res, err := infer.New(ds, graph, trace)
	if err != nil {
		return nil, err
	}
	report, err := Verify(res, truth)
	if err != nil {
		return nil, err
	}
	report.SamplerElapsed = elapsed

	log.Info(ctx, "calibration finished",
		logger.Int("episodes", report.Episodes),
		logger.Float64("mean_abs_err", report.MeanAbsErr),
		logger.Float64("coverage", report.Coverage),
		logger.Duration("elapsed", elapsed),
	)
	return report, nil
}
