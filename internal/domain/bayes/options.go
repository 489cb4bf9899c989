package bayes

// Option applies a configuration option during Build.
type Option func(*options)

type options struct {
	bounds Bounds
}

// WithBounds overrides the default rating interval. Build rejects an
// empty or inverted interval.
func WithBounds(lower, upper float64) Option {
	return func(o *options) {
		o.bounds = Bounds{Lower: lower, Upper: upper}
	}
}
