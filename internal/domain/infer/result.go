// Package infer answers queries against a completed model fit. A
// Result couples the dataset, the model graph and the posterior trace,
// and serves per-episode, per-season and show-level summaries computed
// from them.
package infer

import (
	"fmt"
	"sort"
	"time"

	"github.com/epiqlabs/epiq/internal/domain/bayes"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/mcmc"
)

// EpisodeSummary is the posterior view of one episode.
type EpisodeSummary struct {
	Index    int       `json:"index"`
	Season   int       `json:"season"`
	Episode  int       `json:"episode"`
	Observed bool      `json:"observed"`
	Rating   float64   `json:"rating"`
	Votes    int64     `json:"votes"`
	Quality  mcmc.Stat `json:"quality"`
}

// SeasonSummary is the posterior view of one season and its episodes.
type SeasonSummary struct {
	Season   int              `json:"season"`
	Code     int              `json:"code"`
	Quality  mcmc.Stat        `json:"quality"`
	Spread   mcmc.Stat        `json:"spread"`
	Episodes []EpisodeSummary `json:"episodes"`
}

// HyperSummary is the posterior view of the show-level parameters.
type HyperSummary struct {
	ShowMean      mcmc.Stat `json:"show_mean"`
	SeasonSpread  mcmc.Stat `json:"season_spread"`
	EpisodeSpread mcmc.Stat `json:"episode_spread"`
}

type pairKey struct {
	season  int
	episode int
}

// Result is an immutable fit outcome. All query methods are safe for
// concurrent use.
type Result struct {
	ds       *dataset.Dataset
	graph    *bayes.Graph
	trace    *mcmc.Trace
	stats    []mcmc.Stat
	warnings []mcmc.Warning
	byPair   map[pairKey]int
	fittedAt time.Time
}

// New summarizes a trace against the model it was sampled from.
func New(ds *dataset.Dataset, graph *bayes.Graph, trace *mcmc.Trace) (*Result, error) {
	if ds == nil || graph == nil || trace == nil {
		return nil, fmt.Errorf("%w: missing dataset, graph or trace", ErrTraceShape)
	}
	if trace.Dim() != graph.Dim() {
		return nil, fmt.Errorf("%w: trace has %d parameters, model has %d", ErrTraceShape, trace.Dim(), graph.Dim())
	}

	stats, warnings := mcmc.Summarize(trace, graph.ParamName)
	byPair := make(map[pairKey]int, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		rec := ds.At(i)
		byPair[pairKey{rec.Season, rec.Episode}] = i
	}

	return &Result{
		ds:       ds,
		graph:    graph,
		trace:    trace,
		stats:    stats,
		warnings: append(trace.Warnings(), warnings...),
		byPair:   byPair,
		fittedAt: time.Now().UTC(),
	}, nil
}

// NumEpisodes returns the number of episodes in the fitted dataset.
func (r *Result) NumEpisodes() int { return r.ds.Len() }

// NumSeasons returns the number of distinct seasons in the fitted dataset.
func (r *Result) NumSeasons() int { return r.ds.SeasonCount() }

// Dataset returns the dataset this result was fit to.
func (r *Result) Dataset() *dataset.Dataset { return r.ds }

// Graph returns the model graph this result was fit to.
func (r *Result) Graph() *bayes.Graph { return r.graph }

// Trace returns the raw posterior trace.
func (r *Result) Trace() *mcmc.Trace { return r.trace }

// FittedAt returns when the summary was computed.
func (r *Result) FittedAt() time.Time { return r.fittedAt }

// Stats returns posterior statistics for every model parameter.
func (r *Result) Stats() []mcmc.Stat {
	out := make([]mcmc.Stat, len(r.stats))
	copy(out, r.stats)
	return out
}

// Warnings returns sampler and convergence warnings for this fit.
func (r *Result) Warnings() []mcmc.Warning {
	out := make([]mcmc.Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Episode returns the posterior summary for the episode at row i.
func (r *Result) Episode(i int) (EpisodeSummary, error) {
	if i < 0 || i >= r.ds.Len() {
		return EpisodeSummary{}, fmt.Errorf("%w: index %d not in [0, %d)", ErrEpisodeIndex, i, r.ds.Len())
	}
	return r.episodeSummary(i), nil
}

// Lookup returns the posterior summary for an episode addressed by its
// season and episode numbers.
func (r *Result) Lookup(season, episode int) (EpisodeSummary, error) {
	i, ok := r.byPair[pairKey{season, episode}]
	if !ok {
		return EpisodeSummary{}, fmt.Errorf("%w: season %d episode %d", ErrEpisodeNotFound, season, episode)
	}
	return r.episodeSummary(i), nil
}

// EpisodeAt returns the posterior summary for the episode at a 0-based
// position within a season's rows. Positions past the end of the season
// are rejected, never clamped.
func (r *Result) EpisodeAt(season, position int) (EpisodeSummary, error) {
	if _, ok := r.ds.SeasonCode(season); !ok {
		return EpisodeSummary{}, fmt.Errorf("%w: season %d", ErrSeasonNotFound, season)
	}
	rows := r.ds.RowsForSeason(season)
	if position < 0 || position >= len(rows) {
		return EpisodeSummary{}, fmt.Errorf("%w: position %d not in [0, %d) for season %d",
			ErrEpisodeIndex, position, len(rows), season)
	}
	return r.episodeSummary(rows[position]), nil
}

// Season returns the posterior summary for one season, including all
// of its episodes in dataset order.
func (r *Result) Season(season int) (SeasonSummary, error) {
	code, ok := r.ds.SeasonCode(season)
	if !ok {
		return SeasonSummary{}, fmt.Errorf("%w: season %d", ErrSeasonNotFound, season)
	}

	rows := r.ds.RowsForSeason(season)
	episodes := make([]EpisodeSummary, 0, len(rows))
	for _, i := range rows {
		episodes = append(episodes, r.episodeSummary(i))
	}
	return SeasonSummary{
		Season:   season,
		Code:     code,
		Quality:  r.stats[r.graph.MuSIndex(code)],
		Spread:   r.stats[r.graph.TauSIndex(code)],
		Episodes: episodes,
	}, nil
}

// Top returns up to limit episodes ordered by posterior mean quality,
// best first. A non-positive limit returns all episodes.
func (r *Result) Top(limit int) []EpisodeSummary {
	n := r.ds.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa := r.stats[r.graph.ThetaIndex(order[a])]
		sb := r.stats[r.graph.ThetaIndex(order[b])]
		if sa.Mean != sb.Mean {
			return sa.Mean > sb.Mean
		}
		ra, rb := r.ds.At(order[a]), r.ds.At(order[b])
		if ra.Season != rb.Season {
			return ra.Season < rb.Season
		}
		return ra.Episode < rb.Episode
	})

	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]EpisodeSummary, 0, limit)
	for _, i := range order[:limit] {
		out = append(out, r.episodeSummary(i))
	}
	return out
}

// Hyper returns the posterior summary of the show-level parameters.
func (r *Result) Hyper() HyperSummary {
	return HyperSummary{
		ShowMean:      r.stats[r.graph.Mu0Index()],
		SeasonSpread:  r.stats[r.graph.SigmaMuIndex()],
		EpisodeSpread: r.stats[r.graph.Tau0Index()],
	}
}

func (r *Result) episodeSummary(i int) EpisodeSummary {
	rec := r.ds.At(i)
	return EpisodeSummary{
		Index:    i,
		Season:   rec.Season,
		Episode:  rec.Episode,
		Observed: rec.Observed,
		Rating:   rec.Rating,
		Votes:    rec.Votes,
		Quality:  r.stats[r.graph.ThetaIndex(i)],
	}
}
