package service

import (
	"github.com/epiqlabs/epiq/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithShowName names the show this service models; registered episodes
// persist under it when an episode sink is configured.
func WithShowName(name string) Option {
	return func(s *Service) {
		s.showName = name
	}
}

// WithSamplerConfig sets the sampler parameters used by every fit.
// Non-positive values keep their defaults.
func WithSamplerConfig(draws, tune, chains int, targetAccept float64, seed int64) Option {
	return func(s *Service) {
		if draws > 0 {
			s.draws = draws
		}
		if tune >= 0 {
			s.tune = tune
		}
		if chains > 0 {
			s.chains = chains
		}
		if targetAccept > 0 && targetAccept < 1 {
			s.targetAccept = targetAccept
		}
		s.seed = seed
	}
}

// WithMaxTreeDepth bounds trajectory doubling in the sampler.
func WithMaxTreeDepth(depth int) Option {
	return func(s *Service) {
		if depth > 0 {
			s.maxTreeDepth = depth
		}
	}
}

// WithBounds overrides the rating interval used for every truncation.
func WithBounds(lower, upper float64) Option {
	return func(s *Service) {
		if upper > lower {
			s.lower, s.upper = lower, upper
		}
	}
}

// WithImputedRatings pins missing ratings to a placeholder value instead
// of excluding them from the likelihood.
func WithImputedRatings(value float64) Option {
	return func(s *Service) {
		s.impute = true
		s.imputeValue = value
	}
}

// WithFitQueueSize bounds the in-memory fit job queue.
func WithFitQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithFitLog records completed fits in the given log.
func WithFitLog(log FitLog) Option {
	return func(s *Service) {
		s.fitLog = log
	}
}

// WithEpisodeSink persists registered episodes to the given sink.
func WithEpisodeSink(sink EpisodeSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}
