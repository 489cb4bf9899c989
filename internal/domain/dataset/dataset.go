// Package dataset holds the episode table and season-code derivation.
package dataset

import (
	"fmt"
	"math"
)

// Default cleaning constants.
const (
	// minVotes is the floor applied to vote counts so the likelihood
	// noise scale 1/sqrt(votes) stays finite.
	minVotes int64 = 1
)

// Record is one episode row.
type Record struct {
	// Season is the raw season number as published, not the code.
	Season int
	// Episode is the episode number within the season.
	Episode int
	// Rating is the vote-weighted average rating. Only meaningful when
	// Observed is true.
	Rating float64
	// Observed reports whether Rating carries real evidence.
	Observed bool
	// Votes is the number of votes behind Rating, never below 1 after
	// cleaning.
	Votes int64
	// Extra carries caller-supplied fields (title, air date, ...) that the
	// model ignores.
	Extra map[string]string
}

// Dataset is an append-only episode table with derived season codes.
// Values are immutable after construction; Append returns a new Dataset.
type Dataset struct {
	records []Record
	codes   []int
	seasons []int
}

// New builds a Dataset from episode records, cleaning them on the way in:
// vote counts are floored at 1 and NaN ratings are demoted to unobserved.
// Records keep their given order; season codes follow first appearance.
func New(records []Record, opts ...Option) (*Dataset, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	cleaned := make([]Record, len(records))
	for i, r := range records {
		if r.Votes < minVotes {
			r.Votes = minVotes
		}
		if math.IsNaN(r.Rating) {
			r.Observed = false
			r.Rating = 0
		}
		if !r.Observed && o.impute {
			r.Observed = true
			r.Rating = o.imputeValue
		}
		r.Extra = copyExtra(r.Extra)
		cleaned[i] = r
	}

	seen := make(map[[2]int]struct{}, len(cleaned))
	for _, r := range cleaned {
		key := [2]int{r.Season, r.Episode}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: season %d episode %d", ErrDuplicateEpisode, r.Season, r.Episode)
		}
		seen[key] = struct{}{}
	}

	codes, seasons := ComputeSeasonCodes(cleaned)
	return &Dataset{records: cleaned, codes: codes, seasons: seasons}, nil
}

// ComputeSeasonCodes derives 0-based season codes in order of first
// appearance. It is a pure function of the record slice: appending rows
// for already-known seasons never changes earlier codes.
func ComputeSeasonCodes(records []Record) (codes []int, seasons []int) {
	codes = make([]int, len(records))
	index := make(map[int]int, 8)
	for i, r := range records {
		c, ok := index[r.Season]
		if !ok {
			c = len(seasons)
			index[r.Season] = c
			seasons = append(seasons, r.Season)
		}
		codes[i] = c
	}
	return codes, seasons
}

// Append returns a new Dataset with rec added at the end. The receiver is
// left untouched, so traces fitted against it stay coherent. A second
// registration of the same (season, episode) pair is rejected.
func (d *Dataset) Append(rec Record) (*Dataset, error) {
	for _, r := range d.records {
		if r.Season == rec.Season && r.Episode == rec.Episode {
			return nil, fmt.Errorf("%w: season %d episode %d", ErrDuplicateEpisode, rec.Season, rec.Episode)
		}
	}

	if rec.Votes < minVotes {
		rec.Votes = minVotes
	}
	if math.IsNaN(rec.Rating) {
		rec.Observed = false
		rec.Rating = 0
	}
	rec.Extra = copyExtra(rec.Extra)

	records := make([]Record, len(d.records)+1)
	copy(records, d.records)
	records[len(d.records)] = rec

	codes, seasons := ComputeSeasonCodes(records)
	return &Dataset{records: records, codes: codes, seasons: seasons}, nil
}

// Len returns the number of episode rows.
func (d *Dataset) Len() int { return len(d.records) }

// At returns the record at row i.
func (d *Dataset) At(i int) Record { return d.records[i] }

// Records returns a copy of all rows in insertion order.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Codes returns a copy of the per-row season codes.
func (d *Dataset) Codes() []int {
	out := make([]int, len(d.codes))
	copy(out, d.codes)
	return out
}

// CodeAt returns the season code for row i.
func (d *Dataset) CodeAt(i int) int { return d.codes[i] }

// Seasons returns the distinct season numbers in first-appearance order.
func (d *Dataset) Seasons() []int {
	out := make([]int, len(d.seasons))
	copy(out, d.seasons)
	return out
}

// SeasonCount returns the number of distinct seasons.
func (d *Dataset) SeasonCount() int { return len(d.seasons) }

// SeasonCode returns the code for a raw season number.
func (d *Dataset) SeasonCode(season int) (int, bool) {
	for c, s := range d.seasons {
		if s == season {
			return c, true
		}
	}
	return 0, false
}

// RowsForSeason returns the row indices belonging to a season, in
// insertion order. The result is empty for unknown seasons.
func (d *Dataset) RowsForSeason(season int) []int {
	var rows []int
	for i, r := range d.records {
		if r.Season == season {
			rows = append(rows, i)
		}
	}
	return rows
}

// ObservedCount returns the number of rows with an observed rating.
func (d *Dataset) ObservedCount() int {
	n := 0
	for _, r := range d.records {
		if r.Observed {
			n++
		}
	}
	return n
}

func copyExtra(extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
