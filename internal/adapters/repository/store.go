// Package repository implements the in-memory episode ranking that
// backs the query API. Episodes are ordered by posterior mean quality.
package repository

import "context"

// Entry is one ranked episode row.
type Entry struct {
	Rank    int     `json:"rank"`
	Season  int     `json:"season"`
	Episode int     `json:"episode"`
	Quality float64 `json:"quality"`
	Rating  float64 `json:"rating"`
	Votes   int64   `json:"votes"`
}

// Store provides read/write access to the ranking state.
type Store interface {
	// Update sets the quality for an episode, inserting it if unknown.
	// Returns true if the stored value changed.
	Update(ctx context.Context, season, episode int, quality, rating float64, votes int64) (bool, error)

	// ReplaceAll swaps the whole ranking for the given entries. A fit
	// replaces every posterior mean at once.
	ReplaceAll(ctx context.Context, entries []Entry) error

	// Rank returns the current rank and quality for an episode.
	// Returns ErrNotFound if the episode is unranked.
	Rank(ctx context.Context, season, episode int) (Entry, error)

	// TopN returns the top-N entries ordered by quality desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of ranked episodes.
	Count(ctx context.Context) int
}
