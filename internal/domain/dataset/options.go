package dataset

// Option applies a configuration option during New.
type Option func(*options)

type options struct {
	impute      bool
	imputeValue float64
}

// WithImputedRatings pins unobserved ratings to a fixed placeholder value
// instead of leaving them out of the likelihood. The placeholder acts as
// real evidence, dragging estimates toward it; prefer the default
// missing-aware mode unless parity with placeholder-based pipelines is
// needed.
func WithImputedRatings(value float64) Option {
	return func(o *options) {
		o.impute = true
		o.imputeValue = value
	}
}
