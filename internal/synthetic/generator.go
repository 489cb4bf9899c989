package synthetic

import (
	"context"
	"math"
	"math/rand"

	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/pkg/logger"
)

const truncRetries = 1000

// Generate draws a full show from the hierarchical generating process:
// season means around the show mean, episode qualities around their
// season mean, and observed ratings around each quality with noise
// shrinking as votes grow.
func Generate(ctx context.Context, cfg *Config) ([]dataset.Record, *Truth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	total := cfg.Seasons * cfg.EpisodesPerSeason
	records := make([]dataset.Record, 0, total)
	truth := &Truth{
		ShowMean:    cfg.ShowMean,
		SeasonMeans: make(map[int]float64, cfg.Seasons),
		Quality:     make([]float64, 0, total),
	}

	for s := 1; s <= cfg.Seasons; s++ {
		seasonMean := truncNormal(rng, cfg.ShowMean, cfg.SeasonSpread, cfg.Lower, cfg.Upper)
		truth.SeasonMeans[s] = seasonMean

		for e := 1; e <= cfg.EpisodesPerSeason; e++ {
			quality := truncNormal(rng, seasonMean, cfg.EpisodeSpread, cfg.Lower, cfg.Upper)
			votes := cfg.MinVotes + rng.Int63n(cfg.MaxVotes-cfg.MinVotes+1)

			rec := dataset.Record{Season: s, Episode: e, Votes: votes}
			if rng.Float64() >= cfg.MissingFraction {
				sd := 1 / math.Sqrt(float64(votes))
				rec.Rating = truncNormal(rng, quality, sd, cfg.Lower, cfg.Upper)
				rec.Observed = true
			}

			records = append(records, rec)
			truth.Quality = append(truth.Quality, quality)
		}
	}

	logger.Get().Named("synthetic").Info(ctx, "generated dataset",
		logger.Int("seasons", cfg.Seasons),
		logger.Int("episodes", total),
		logger.Int64("seed", cfg.Seed),
	)
	return records, truth, nil
}

// truncNormal samples a normal restricted to [lo, hi] by rejection,
// clamping if the run of rejections is implausibly long.
func truncNormal(rng *rand.Rand, mean, sd, lo, hi float64) float64 {
	for i := 0; i < truncRetries; i++ {
		x := mean + sd*rng.NormFloat64()
		if x >= lo && x <= hi {
			return x
		}
	}
	return math.Min(hi, math.Max(lo, mean))
}
