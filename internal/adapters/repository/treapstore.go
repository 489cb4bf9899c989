package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epiqlabs/epiq/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: quality DESC, then (season, episode) ASC, so an in-order
// traversal walks the ranking from best to worst. Priorities are
// derived from the quality itself, which keeps high-quality nodes near
// the root and makes top-N reads touch only the head of the tree.

// qualityScale controls fixed-point scaling from float64. Twelve
// decimal places are far below posterior Monte Carlo error, so equal
// fixed-point values are genuine ties.
const qualityScale = 1_000_000_000_000

type qualityFP int64

func toFixedPoint(x float64) qualityFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := x * qualityScale
	if scaled > float64(math.MaxInt64) {
		return qualityFP(math.MaxInt64)
	}
	if scaled < float64(math.MinInt64) {
		return qualityFP(math.MinInt64)
	}
	return qualityFP(math.Round(scaled))
}

func toFloat(x qualityFP) float64 {
	return float64(x) / qualityScale
}

// epKey identifies one episode.
type epKey struct {
	season  int
	episode int
}

func keyLess(a, b epKey) bool {
	if a.season != b.season {
		return a.season < b.season
	}
	return a.episode < b.episode
}

// record stores the fixed-point quality plus the observation metadata
// shown alongside rankings.
type record struct {
	quality qualityFP
	rating  float64
	votes   int64
}

// Snapshot is an immutable view of the ranking state.
type Snapshot struct {
	// Rank and quality in O(1) for reads.
	RankByEpisode    map[epKey]int
	QualityByEpisode map[epKey]float64

	// Fast top-N cache, sorted descending.
	TopCache []Entry
}

// treap node
type node struct {
	key     epKey
	quality qualityFP
	prio    uint64
	left    *node
	right   *node
	size    int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aQuality, aKey) ranks earlier than
// (bQuality, bKey).
func less(aQuality qualityFP, aKey epKey, bQuality qualityFP, bKey epKey) bool {
	if aQuality != bQuality {
		return aQuality > bQuality
	}
	return keyLess(aKey, bKey)
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// qualityToPriority keeps higher qualities higher in the treap. The
// offset maps the signed fixed-point range onto uint64 order.
func qualityToPriority(q qualityFP) uint64 {
	const offset = uint64(1) << 63
	return uint64(q) + offset
}

func insert(n *node, key epKey, q qualityFP) *node {
	if n == nil {
		return &node{key: key, quality: q, prio: qualityToPriority(q), size: 1}
	}
	if less(q, key, n.quality, n.key) {
		n.left = insert(n.left, key, q)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key, q)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, key epKey, q qualityFP) *node {
	if n == nil {
		return nil
	}
	if q == n.quality && key == n.key {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key, q)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key, q)
		}
	} else if less(q, key, n.quality, n.key) {
		n.left = deleteNode(n.left, key, q)
	} else {
		n.right = deleteNode(n.right, key, q)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, records map[epKey]record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, records, out)
	if len(*out) < limit {
		if rec, exists := records[n.key]; exists {
			*out = append(*out, Entry{
				Season:  n.key.season,
				Episode: n.key.episode,
				Quality: toFloat(rec.quality),
				Rating:  rec.rating,
				Votes:   rec.votes,
			})
		}
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, records, out)
	}
}

// TreapStore is the default Store implementation.
type TreapStore struct {
	mu                    sync.RWMutex
	root                  *node
	byKey                 map[epKey]record
	snapshotInterval      time.Duration
	metricsUpdateInterval time.Duration
	topCacheSize          int

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store and starts its background
// snapshot and metrics goroutines. Close stops them.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		snapshotInterval:      1 * time.Second,
		metricsUpdateInterval: 5 * time.Second,
		topCacheSize:          500,
		byKey:                 make(map[epKey]record),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.stopChan = make(chan struct{})
	s.startPeriodicSnapshots(ctx)
	s.startMetricsUpdater(ctx)
	return s
}

func (s *TreapStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.publishSnapshot()
			}
		}
	}()
}

// publishSnapshot rebuilds and publishes a new snapshot.
func (s *TreapStore) publishSnapshot() {
	start := time.Now()
	s.mu.RLock()
	s.publishSnapshotInternal()
	s.mu.RUnlock()

	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordRankingSnapshotRebuild(ms, time.Now().Unix())
}

// Close gracefully shuts down the background goroutines.
func (s *TreapStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// Update implements Store.Update with O(log n) expected time.
func (s *TreapStore) Update(ctx context.Context, season, episode int, quality, rating float64, votes int64) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	key := epKey{season: season, episode: episode}
	nq := toFixedPoint(quality)

	isNew := false
	s.mu.Lock()
	if old, ok := s.byKey[key]; ok {
		if nq == old.quality && rating == old.rating && votes == old.votes {
			s.mu.Unlock()
			return false, nil
		}
		if nq != old.quality {
			s.root = deleteNode(s.root, key, old.quality)
			s.root = insert(s.root, key, nq)
		}
	} else {
		isNew = true
		s.root = insert(s.root, key, nq)
	}
	s.byKey[key] = record{quality: nq, rating: rating, votes: votes}
	s.mu.Unlock()

	if isNew {
		metrics.UpdateRankingEntries(s.Count(ctx))
	}
	return true, nil
}

// ReplaceAll implements Store.ReplaceAll. The whole tree is rebuilt
// and a fresh snapshot published before returning.
func (s *TreapStore) ReplaceAll(ctx context.Context, entries []Entry) error {
	start := time.Now()

	s.mu.Lock()
	s.root = nil
	s.byKey = make(map[epKey]record, len(entries))
	for _, e := range entries {
		key := epKey{season: e.Season, episode: e.Episode}
		q := toFixedPoint(e.Quality)
		if _, ok := s.byKey[key]; ok {
			continue
		}
		s.byKey[key] = record{quality: q, rating: e.Rating, votes: e.Votes}
		s.root = insert(s.root, key, q)
	}
	s.publishSnapshotInternal()
	s.mu.Unlock()

	metrics.UpdateRankingEntries(s.Count(ctx))
	metrics.RecordRankingUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Rank returns the current rank and quality for an episode.
func (s *TreapStore) Rank(ctx context.Context, season, episode int) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	key := epKey{season: season, episode: episode}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.byKey[key]; !ok {
		metrics.RecordErrorByComponent("ranking", "not_found")
		return Entry{}, ErrNotFound
	}

	allEntries := make([]Entry, 0, len(s.byKey))
	collectAll(s.root, s.byKey, &allEntries)
	assignRanksWithTies(allEntries)

	for _, entry := range allEntries {
		if entry.Season == season && entry.Episode == episode {
			return entry, nil
		}
	}
	return Entry{}, ErrNotFound
}

// TopN returns the top N entries ordered by quality desc.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("ranking", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, n)
	collectTopN(s.root, n, s.byKey, &out)
	assignRanksWithTies(out)
	return out, nil
}

// Count returns the total number of ranked episodes.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// CachedTop reads up to n entries from the latest snapshot without
// touching the tree. Callers get slightly stale but lock-free data.
func (s *TreapStore) CachedTop(n int) []Entry {
	snap := s.snapshot.Load()
	if snap == nil || n < 1 {
		return nil
	}
	if n > len(snap.TopCache) {
		n = len(snap.TopCache)
	}
	out := make([]Entry, n)
	copy(out, snap.TopCache[:n])
	return out
}

// publishSnapshotInternal rebuilds the snapshot; the caller holds at
// least a read lock.
func (s *TreapStore) publishSnapshotInternal() {
	topCache := make([]Entry, 0, s.topCacheSize)
	collectTopN(s.root, s.topCacheSize, s.byKey, &topCache)

	rankByEpisode := make(map[epKey]int, len(s.byKey))
	qualityByEpisode := make(map[epKey]float64, len(s.byKey))

	allEntries := make([]Entry, 0, len(s.byKey))
	collectAll(s.root, s.byKey, &allEntries)
	assignRanksWithTies(allEntries)

	for _, entry := range allEntries {
		key := epKey{season: entry.Season, episode: entry.Episode}
		rankByEpisode[key] = entry.Rank
		qualityByEpisode[key] = entry.Quality
	}

	for i := range topCache {
		key := epKey{season: topCache[i].Season, episode: topCache[i].Episode}
		if rank, exists := rankByEpisode[key]; exists {
			topCache[i].Rank = rank
		}
	}

	s.snapshot.Store(&Snapshot{
		RankByEpisode:    rankByEpisode,
		QualityByEpisode: qualityByEpisode,
		TopCache:         topCache,
	})
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateRankingEntries(s.Count(ctx))
			}
		}
	}()
}

// collectAll appends all entries in rank order.
func collectAll(n *node, byKey map[epKey]record, out *[]Entry) {
	if n == nil {
		return
	}
	collectAll(n.left, byKey, out)
	if rec, ok := byKey[n.key]; ok {
		*out = append(*out, Entry{
			Season:  n.key.season,
			Episode: n.key.episode,
			Quality: toFloat(rec.quality),
			Rating:  rec.rating,
			Votes:   rec.votes,
		})
	}
	collectAll(n.right, byKey, out)
}

// sortEntries orders entries the same way the tree does; used by tests
// to cross-check traversal order.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Quality != entries[j].Quality {
			return entries[i].Quality > entries[j].Quality
		}
		return keyLess(
			epKey{season: entries[i].Season, episode: entries[i].Episode},
			epKey{season: entries[j].Season, episode: entries[j].Episode},
		)
	})
}

// assignRanksWithTies assigns dense ranks: episodes with equal quality
// share a rank and the next distinct quality takes the following one.
func assignRanksWithTies(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	currentRank := 1
	for i := 0; i < len(entries); i++ {
		entries[i].Rank = currentRank

		sameCount := 1
		for j := i + 1; j < len(entries) && entries[j].Quality == entries[i].Quality; j++ {
			entries[j].Rank = currentRank
			sameCount++
		}

		currentRank++
		i += sameCount - 1
	}
}
