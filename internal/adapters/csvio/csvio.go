// Package csvio reads and writes episode tables as CSV, so datasets can
// be exported after a fetch and fitted offline later.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/epiqlabs/epiq/internal/domain/dataset"
)

// Fields names the columns the model cares about. Any other column is
// carried through the record's Extra map untouched.
type Fields struct {
	Rating  string
	Season  string
	Episode string
	Votes   string
}

// DefaultFields returns the TMDB-flavored column names.
func DefaultFields() Fields {
	return Fields{
		Rating:  "vote_average",
		Season:  "season_number",
		Episode: "episode_number",
		Votes:   "vote_count",
	}
}

func (f Fields) validate() error {
	if f.Rating == "" || f.Season == "" || f.Episode == "" || f.Votes == "" {
		return fmt.Errorf("%w: all of rating, season, episode and votes need names", ErrMissingField)
	}
	return nil
}

// Write exports records as CSV. The four model columns come first, then
// any extra columns in sorted order; unobserved ratings export as empty
// cells so a round trip keeps them unobserved.
func Write(w io.Writer, records []dataset.Record, fields Fields) error {
	if err := fields.validate(); err != nil {
		return err
	}
	if len(records) == 0 {
		return ErrNoRecords
	}

	extraCols := collectExtraColumns(records)
	header := []string{fields.Season, fields.Episode, fields.Rating, fields.Votes}
	header = append(header, extraCols...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, 0, len(header))
	for i, rec := range records {
		row = row[:0]
		rating := ""
		if rec.Observed {
			rating = strconv.FormatFloat(rec.Rating, 'f', -1, 64)
		}
		row = append(row,
			strconv.Itoa(rec.Season),
			strconv.Itoa(rec.Episode),
			rating,
			strconv.FormatInt(rec.Votes, 10),
		)
		for _, col := range extraCols {
			row = append(row, rec.Extra[col])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read imports a CSV episode table. Season, episode and votes must
// parse; an empty or unparsable rating cell marks the row unobserved.
func Read(r io.Reader, fields Fields) ([]dataset.Record, error) {
	if err := fields.validate(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRecords, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{fields.Season, fields.Episode, fields.Votes} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, required)
		}
	}
	ratingIdx, hasRating := col[fields.Rating]

	var records []dataset.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		season, err := strconv.Atoi(row[col[fields.Season]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d season %q", ErrBadCell, line, row[col[fields.Season]])
		}
		episode, err := strconv.Atoi(row[col[fields.Episode]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d episode %q", ErrBadCell, line, row[col[fields.Episode]])
		}
		votes, err := strconv.ParseInt(row[col[fields.Votes]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d votes %q", ErrBadCell, line, row[col[fields.Votes]])
		}

		rec := dataset.Record{Season: season, Episode: episode, Votes: votes}
		if hasRating && row[ratingIdx] != "" {
			rating, err := strconv.ParseFloat(row[ratingIdx], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d rating %q", ErrBadCell, line, row[ratingIdx])
			}
			rec.Rating = rating
			rec.Observed = true
		}

		for i, name := range header {
			if name == fields.Season || name == fields.Episode || name == fields.Votes ||
				(hasRating && i == ratingIdx) || row[i] == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = map[string]string{}
			}
			rec.Extra[name] = row[i]
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// collectExtraColumns gathers every extra key used by any record.
func collectExtraColumns(records []dataset.Record) []string {
	seen := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec.Extra {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
