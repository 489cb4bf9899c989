// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers file and env overrides on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches the log handler to JSON output.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir is the root directory for on-disk state (episode DB, fit history).
	DataDir string `koanf:"data_dir"`

	// TMDBAPIKey authenticates against the TMDB API. Empty disables fetching.
	TMDBAPIKey string `koanf:"tmdb_api_key"`

	// TMDBBaseURL overrides the TMDB API base URL (tests point it at a stub).
	TMDBBaseURL string `koanf:"tmdb_base_url"`

	// TMDBLanguage selects the TMDB response language.
	TMDBLanguage string `koanf:"tmdb_language"`

	// Show is the show loaded from the episode DB at startup, if present.
	Show string `koanf:"show"`

	// Draws is the number of retained posterior draws per chain.
	Draws int `koanf:"draws"`

	// Tune is the number of warmup iterations per chain (discarded).
	Tune int `koanf:"tune"`

	// Chains is the number of independent sampling chains.
	Chains int `koanf:"chains"`

	// TargetAccept is the dual-averaging target acceptance probability.
	TargetAccept float64 `koanf:"target_accept"`

	// Seed drives deterministic chain RNGs.
	Seed int64 `koanf:"seed"`

	// MaxTreeDepth bounds trajectory doubling in the sampler.
	MaxTreeDepth int `koanf:"max_tree_depth"`

	// RatingLower and RatingUpper bound the rating scale.
	RatingLower float64 `koanf:"rating_lower"`
	RatingUpper float64 `koanf:"rating_upper"`

	// ImputeMissing pins missing ratings to ImputeValue instead of
	// excluding them from the likelihood.
	ImputeMissing bool    `koanf:"impute_missing"`
	ImputeValue   float64 `koanf:"impute_value"`

	// Column name overrides for CSV ingest.
	RatingField  string `koanf:"rating_field"`
	SeasonField  string `koanf:"season_field"`
	EpisodeField string `koanf:"episode_field"`
	VotesField   string `koanf:"votes_field"`

	// FitQueueSize bounds the in-memory fit job queue.
	FitQueueSize int `koanf:"fit_queue_size"`

	// MaxTopLimit caps GET /episodes/top?limit.
	MaxTopLimit int `koanf:"max_top_limit"`

	// FitOnStart triggers a fit at startup when a dataset is available.
	FitOnStart bool `koanf:"fit_on_start"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:     "info",
		LogJSON:      false,
		Addr:         ":8080",
		DataDir:      "./data",
		TMDBBaseURL:  "https://api.themoviedb.org/3",
		TMDBLanguage: "en-US",
		Draws:        2000,
		Tune:         1000,
		Chains:       defaultChains(),
		TargetAccept: 0.9,
		Seed:         42,
		MaxTreeDepth: 10,
		RatingLower:  -0.5,
		RatingUpper:  10.5,
		ImputeValue:  1.0,
		RatingField:  "vote_average",
		SeasonField:  "season_number",
		EpisodeField: "episode_number",
		VotesField:   "vote_count",
		FitQueueSize: 4,
		MaxTopLimit:  100,
		FitOnStart:   true,
	}
	return c
}

// defaultChains picks four chains, or fewer on very small machines.
func defaultChains() int {
	n := 4
	if cpus := runtime.NumCPU(); cpus < n {
		n = cpus
	}
	if n < 1 {
		n = 1
	}
	return n
}
