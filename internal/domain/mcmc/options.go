package mcmc

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithDraws sets the number of retained draws per chain.
func WithDraws(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.draws = n
		}
	}
}

// WithTune sets the number of warmup iterations per chain.
func WithTune(n int) Option {
	return func(s *Sampler) {
		if n >= 0 {
			s.tune = n
		}
	}
}

// WithChains sets the number of independent chains.
func WithChains(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.chains = n
		}
	}
}

// WithTargetAccept sets the dual-averaging acceptance target.
func WithTargetAccept(a float64) Option {
	return func(s *Sampler) {
		if a > 0 && a < 1 {
			s.targetAccept = a
		}
	}
}

// WithSeed sets the base seed; chain c derives its own RNG from it.
func WithSeed(seed int64) Option {
	return func(s *Sampler) {
		s.seed = seed
	}
}

// WithMaxTreeDepth bounds trajectory doubling per transition.
func WithMaxTreeDepth(d int) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.maxTreeDepth = d
		}
	}
}
