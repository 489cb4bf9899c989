// Package fithistory keeps a durable log of completed fits in Badger,
// so diagnostics survive restarts and the fit list endpoint has depth.
package fithistory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/epiqlabs/epiq/internal/domain/mcmc"
)

// keyPrefix namespaces fit records; the rest of the key is a zero-padded
// finish timestamp, so lexical order is chronological order.
const keyPrefix = "fit!"

// Record is one completed fit.
type Record struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	Requested time.Time `json:"requested"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`

	Draws        int     `json:"draws"`
	Tune         int     `json:"tune"`
	Chains       int     `json:"chains"`
	TargetAccept float64 `json:"target_accept"`
	Seed         int64   `json:"seed"`

	Episodes    int `json:"episodes"`
	Seasons     int `json:"seasons"`
	Observed    int `json:"observed"`
	Divergences int `json:"divergences"`

	Warnings []mcmc.Warning `json:"warnings,omitempty"`
}

// Elapsed returns the sampling wall time.
func (r Record) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Store is a Badger-backed fit log.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the fit history at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open fit history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one completed fit.
func (s *Store) Append(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return ErrMissingID
	}
	if rec.Finished.IsZero() {
		rec.Finished = time.Now().UTC()
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode fit record: %w", err)
	}
	key := fmt.Sprintf("%s%020d!%s", keyPrefix, rec.Finished.UnixNano(), rec.ID)

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	}); err != nil {
		return fmt.Errorf("store fit record: %w", err)
	}
	return nil
}

// List returns up to limit fit records, most recent first. A
// non-positive limit returns everything.
func (s *Store) List(_ context.Context, limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// With Reverse set, seeking past the prefix walks newest first.
		for it.Seek([]byte(keyPrefix + "\xff")); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			if err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decode fit record: %w", err)
				}
				records = append(records, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list fit records: %w", err)
	}
	return records, nil
}

// Latest returns the most recent fit record.
func (s *Store) Latest(ctx context.Context) (Record, error) {
	records, err := s.List(ctx, 1)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNoFits
	}
	return records[0], nil
}
