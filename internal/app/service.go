// Package service orchestrates the fit pipeline and implements the
// dependencies required by the HTTP API: dataset ingest, episode
// registration, asynchronous fits and posterior queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epiqlabs/epiq/internal/adapters/fit/queue"
	fitworker "github.com/epiqlabs/epiq/internal/adapters/fit/worker"
	"github.com/epiqlabs/epiq/internal/adapters/repository"
	"github.com/epiqlabs/epiq/internal/adapters/repository/fithistory"
	"github.com/epiqlabs/epiq/internal/domain/bayes"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/infer"
	"github.com/epiqlabs/epiq/internal/domain/mcmc"
	"github.com/epiqlabs/epiq/pkg/logger"
	"github.com/epiqlabs/epiq/pkg/metrics"
)

// FitLog records completed fits. The badger-backed store implements it;
// tests get by without one.
type FitLog interface {
	Append(ctx context.Context, rec fithistory.Record) error
	List(ctx context.Context, limit int) ([]fithistory.Record, error)
	Latest(ctx context.Context) (fithistory.Record, error)
}

// EpisodeSink receives registered episodes for persistence.
type EpisodeSink interface {
	AppendEpisode(ctx context.Context, show string, rec dataset.Record) error
}

// Service holds the current dataset and fit result and serializes the
// build-sample-publish cycle through a single fit worker.
type Service struct {
	mu sync.RWMutex

	// Mutable state. The dataset is replaced, never mutated, so a fit
	// keeps its snapshot coherent while registrations continue.
	ds     *dataset.Dataset
	result *infer.Result

	// Components
	ranking   repository.Store
	fitQueue  *queue.InMemoryQueue
	fitWorker *fitworker.Worker
	fitLog    FitLog
	sink      EpisodeSink

	// Configuration
	showName     string
	draws        int
	tune         int
	chains       int
	targetAccept float64
	seed         int64
	maxTreeDepth int
	lower, upper float64
	impute       bool
	imputeValue  float64
	queueSize    int

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		draws:        mcmc.DefaultDraws,
		tune:         mcmc.DefaultTune,
		chains:       mcmc.DefaultChains,
		targetAccept: mcmc.DefaultTargetAccept,
		seed:         mcmc.DefaultSeed,
		maxTreeDepth: mcmc.DefaultMaxTreeDepth,
		lower:        bayes.DefaultLower,
		upper:        bayes.DefaultUpper,
		imputeValue:  1.0,
		queueSize:    4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the ranking store, fit queue and fit worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.ranking = repository.NewTreapStore(ctx)
	s.fitQueue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.fitWorker = fitworker.New(s.fitQueue, s)

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.fitWorker.Run(workerCtx)

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("fit_queue_size", s.queueSize),
		logger.Int("chains", s.chains),
		logger.Int("draws", s.draws),
	)
	return nil
}

// Stop shuts down the fit pipeline, waiting for an in-flight fit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping service...")

	_ = s.fitQueue.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_ = s.fitWorker.Shutdown(shutdownCtx)
	if s.cancel != nil {
		s.cancel()
	}

	s.started = false
	s.logger.Info(ctx, "service stopped")
}

// Ingest replaces the current dataset with a cleaned one built from the
// given rows. Any existing fit result stays valid for its own snapshot
// until the next fit publishes.
func (s *Service) Ingest(ctx context.Context, records []dataset.Record) error {
	ds, err := dataset.New(records, s.datasetOptions()...)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	s.mu.Lock()
	s.ds = ds
	s.mu.Unlock()

	s.updateDatasetGauges(ds)
	s.logger.Info(ctx, "dataset ingested",
		logger.Int("episodes", ds.Len()),
		logger.Int("seasons", ds.SeasonCount()),
		logger.Int("observed", ds.ObservedCount()),
	)
	return nil
}

// RegisterEpisode appends one episode row. A missing rating means
// unobserved; a missing vote count is floored to 1 by the dataset.
// The current fit result is untouched; callers trigger a refit when
// they want the new row to participate.
func (s *Service) RegisterEpisode(ctx context.Context, rec dataset.Record) error {
	s.mu.Lock()
	var (
		next *dataset.Dataset
		err  error
	)
	if s.ds == nil {
		next, err = dataset.New([]dataset.Record{rec}, s.datasetOptions()...)
	} else {
		next, err = s.ds.Append(rec)
	}
	if err == nil {
		s.ds = next
	}
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, dataset.ErrDuplicateEpisode) {
			metrics.RecordRegistrationDuplicate()
		} else {
			metrics.RecordRegistrationError()
		}
		return err
	}

	metrics.RecordEpisodeRegistered()
	s.updateDatasetGauges(next)

	if s.sink != nil && s.showName != "" {
		if err := s.sink.AppendEpisode(ctx, s.showName, rec); err != nil {
			s.logger.Warn(ctx, "episode not persisted",
				logger.Int("season", rec.Season),
				logger.Int("episode", rec.Episode),
				logger.Error(err),
			)
		}
	}

	s.logger.Info(ctx, "episode registered",
		logger.Int("season", rec.Season),
		logger.Int("episode", rec.Episode),
		logger.Any("observed", rec.Observed),
	)
	return nil
}

// RequestFit enqueues an asynchronous fit. Requests arriving while one
// is already pending coalesce into it.
func (s *Service) RequestFit(ctx context.Context, reason string) (queue.Job, bool) {
	s.mu.RLock()
	q := s.fitQueue
	s.mu.RUnlock()
	if q == nil {
		return queue.Job{}, false
	}
	return q.Enqueue(ctx, reason)
}

// Fit runs one synchronous fit cycle and returns its result.
func (s *Service) Fit(ctx context.Context) (*infer.Result, error) {
	job := queue.Job{ID: uuid.New().String(), Reason: "direct", Requested: time.Now().UTC()}
	return s.runFitCycle(ctx, job)
}

// RunFit implements the fit worker's Runner contract.
func (s *Service) RunFit(ctx context.Context, job queue.Job) error {
	_, err := s.runFitCycle(ctx, job)
	return err
}

// runFitCycle snapshots the dataset, builds the model, samples,
// summarizes and publishes the new result.
func (s *Service) runFitCycle(ctx context.Context, job queue.Job) (*infer.Result, error) {
	s.mu.RLock()
	ds := s.ds
	s.mu.RUnlock()
	if ds == nil {
		metrics.RecordFitError()
		return nil, ErrNoDataset
	}

	started := time.Now().UTC()
	graph, err := bayes.Build(ds, bayes.WithBounds(s.lower, s.upper))
	if err != nil {
		metrics.RecordFitError()
		return nil, fmt.Errorf("build model: %w", err)
	}

	sampler := mcmc.New(
		mcmc.WithDraws(s.draws),
		mcmc.WithTune(s.tune),
		mcmc.WithChains(s.chains),
		mcmc.WithTargetAccept(s.targetAccept),
		mcmc.WithSeed(s.seed),
		mcmc.WithMaxTreeDepth(s.maxTreeDepth),
	)
	trace, err := sampler.Run(ctx, graph)
	if err != nil {
		metrics.RecordFitError()
		return nil, fmt.Errorf("sample: %w", err)
	}

	result, err := infer.New(ds, graph, trace)
	if err != nil {
		metrics.RecordFitError()
		return nil, fmt.Errorf("summarize: %w", err)
	}
	finished := time.Now().UTC()

	s.publish(ctx, result)

	metrics.RecordFitCompleted()
	metrics.RecordFitDuration(float64(finished.Sub(started).Milliseconds()))
	metrics.RecordFitDivergences(trace.TotalDivergences())
	metrics.RecordSamplerDraws(trace.NumChains() * trace.NumDraws())

	if s.fitLog != nil {
		rec := fithistory.Record{
			ID:           job.ID,
			Reason:       job.Reason,
			Requested:    job.Requested,
			Started:      started,
			Finished:     finished,
			Draws:        s.draws,
			Tune:         s.tune,
			Chains:       s.chains,
			TargetAccept: s.targetAccept,
			Seed:         s.seed,
			Episodes:     ds.Len(),
			Seasons:      ds.SeasonCount(),
			Observed:     ds.ObservedCount(),
			Divergences:  trace.TotalDivergences(),
			Warnings:     result.Warnings(),
		}
		if err := s.fitLog.Append(ctx, rec); err != nil {
			s.logger.Warn(ctx, "fit record not persisted", logger.Error(err))
		}
	}

	return result, nil
}

// publish swaps the current result and refreshes the ranking store.
func (s *Service) publish(ctx context.Context, result *infer.Result) {
	episodes := result.Top(0)
	entries := make([]repository.Entry, len(episodes))
	for i, ep := range episodes {
		entries[i] = repository.Entry{
			Season:  ep.Season,
			Episode: ep.Episode,
			Quality: ep.Quality.Mean,
			Rating:  ep.Rating,
			Votes:   ep.Votes,
		}
	}

	s.mu.Lock()
	s.result = result
	ranking := s.ranking
	s.mu.Unlock()

	if ranking != nil {
		if err := ranking.ReplaceAll(ctx, entries); err != nil {
			s.logger.Error(ctx, "ranking update failed", logger.Error(err))
		}
		metrics.UpdateRankingEntries(len(entries))
	}
}

// Result returns the current fit result.
func (s *Service) Result() (*infer.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil, infer.ErrNotFitted
	}
	return s.result, nil
}

// Predict returns the posterior summary for an episode addressed by its
// season and episode numbers.
func (s *Service) Predict(ctx context.Context, season, episode int) (infer.EpisodeSummary, error) {
	start := time.Now()
	result, err := s.Result()
	if err != nil {
		metrics.RecordQueryError()
		return infer.EpisodeSummary{}, err
	}

	summary, err := result.Lookup(season, episode)
	metrics.RecordQueryLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordQueryError()
		return infer.EpisodeSummary{}, err
	}
	metrics.RecordEpisodeQuery()
	return summary, nil
}

// EpisodeAt returns the posterior summary for the episode at a 0-based
// position within a season.
func (s *Service) EpisodeAt(_ context.Context, season, position int) (infer.EpisodeSummary, error) {
	result, err := s.Result()
	if err != nil {
		metrics.RecordQueryError()
		return infer.EpisodeSummary{}, err
	}
	summary, err := result.EpisodeAt(season, position)
	if err != nil {
		metrics.RecordQueryError()
		return infer.EpisodeSummary{}, err
	}
	metrics.RecordEpisodeQuery()
	return summary, nil
}

// SeasonEpisodes returns summaries for every episode of a season, in
// season order.
func (s *Service) SeasonEpisodes(_ context.Context, season int) (infer.SeasonSummary, error) {
	result, err := s.Result()
	if err != nil {
		metrics.RecordQueryError()
		return infer.SeasonSummary{}, err
	}
	summary, err := result.Season(season)
	if err != nil {
		metrics.RecordQueryError()
		return infer.SeasonSummary{}, err
	}
	metrics.RecordSeasonQuery()
	return summary, nil
}

// TopEpisodes returns up to limit episodes ranked by posterior mean.
func (s *Service) TopEpisodes(ctx context.Context, limit int) ([]repository.Entry, error) {
	s.mu.RLock()
	ranking := s.ranking
	hasResult := s.result != nil
	s.mu.RUnlock()

	if !hasResult || ranking == nil {
		return nil, infer.ErrNotFitted
	}
	return ranking.TopN(ctx, limit)
}

// EpisodeRank returns the current rank entry for one episode.
func (s *Service) EpisodeRank(ctx context.Context, season, episode int) (repository.Entry, error) {
	s.mu.RLock()
	ranking := s.ranking
	hasResult := s.result != nil
	s.mu.RUnlock()

	if !hasResult || ranking == nil {
		return repository.Entry{}, infer.ErrNotFitted
	}
	return ranking.Rank(ctx, season, episode)
}

// Diagnostics returns posterior statistics and warnings covering every
// model parameter of the current fit.
func (s *Service) Diagnostics(_ context.Context) ([]mcmc.Stat, []mcmc.Warning, error) {
	result, err := s.Result()
	if err != nil {
		return nil, nil, err
	}
	return result.Stats(), result.Warnings(), nil
}

// FitHistory lists recorded fits, most recent first.
func (s *Service) FitHistory(ctx context.Context, limit int) ([]fithistory.Record, error) {
	if s.fitLog == nil {
		return nil, nil
	}
	return s.fitLog.List(ctx, limit)
}

// LatestFit returns the most recent recorded fit.
func (s *Service) LatestFit(ctx context.Context) (fithistory.Record, error) {
	if s.fitLog == nil {
		return fithistory.Record{}, fithistory.ErrNoFits
	}
	return s.fitLog.Latest(ctx)
}

// Dataset returns the current dataset snapshot, or nil before ingest.
func (s *Service) Dataset() *dataset.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started": s.started,
		"fitted":  s.result != nil,
		"chains":  s.chains,
		"draws":   s.draws,
		"tune":    s.tune,
	}
	if s.showName != "" {
		stats["show"] = s.showName
	}
	if s.ds != nil {
		stats["episodes"] = s.ds.Len()
		stats["seasons"] = s.ds.SeasonCount()
		stats["observed"] = s.ds.ObservedCount()
	}
	if s.result != nil {
		stats["fittedAt"] = s.result.FittedAt()
		stats["warnings"] = len(s.result.Warnings())
	}
	if s.started {
		stats["fitQueueLength"] = s.fitQueue.Len(ctx)
		stats["rankedEpisodes"] = s.ranking.Count(ctx)
	}
	return stats
}

func (s *Service) datasetOptions() []dataset.Option {
	if s.impute {
		return []dataset.Option{dataset.WithImputedRatings(s.imputeValue)}
	}
	return nil
}

func (s *Service) updateDatasetGauges(ds *dataset.Dataset) {
	metrics.UpdateDatasetEpisodes(ds.Len())
	metrics.UpdateDatasetSeasons(ds.SeasonCount())
	metrics.UpdateDatasetObserved(ds.ObservedCount())
}
