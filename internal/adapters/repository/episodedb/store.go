// Package episodedb persists fetched shows and their episode rows in
// SQLite, so a restart can refit without touching the metadata API.
package episodedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/epiqlabs/epiq/internal/domain/dataset"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS shows (
	name       TEXT PRIMARY KEY,
	tmdb_id    INTEGER NOT NULL,
	fetched_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS episodes (
	show_name TEXT NOT NULL REFERENCES shows(name) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	season    INTEGER NOT NULL,
	episode   INTEGER NOT NULL,
	rating    REAL,
	votes     INTEGER NOT NULL,
	extra     TEXT,
	PRIMARY KEY (show_name, season, episode)
);
CREATE INDEX IF NOT EXISTS idx_episodes_position ON episodes(show_name, position);
`

// Show is one persisted show header.
type Show struct {
	Name      string
	TMDBID    int64
	FetchedAt time.Time
}

// Store is a SQLite-backed episode table keyed by show name.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the episode database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open episode db: %w", err)
	}
	// Single writer keeps SQLITE_BUSY handling out of the picture.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveShow replaces the stored rows for one show with the given
// records, in their dataset order.
func (s *Store) SaveShow(ctx context.Context, name string, tmdbID int64, records []dataset.Record) error {
	if name == "" {
		return ErrEmptyShowName
	}
	if len(records) == 0 {
		return ErrNoEpisodes
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO shows(name, tmdb_id, fetched_at) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET tmdb_id = excluded.tmdb_id, fetched_at = excluded.fetched_at`,
		name, tmdbID, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("upsert show: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE show_name = ?`, name); err != nil {
		return fmt.Errorf("clear episodes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO episodes(show_name, position, season, episode, rating, votes, extra)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		rating, extra, err := encodeRecord(rec)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, name, i, rec.Season, rec.Episode, rating, rec.Votes, extra); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// AppendEpisode persists one registered episode at the end of a show's
// row order.
func (s *Store) AppendEpisode(ctx context.Context, name string, rec dataset.Record) error {
	if name == "" {
		return ErrEmptyShowName
	}

	rating, extra, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes(show_name, position, season, episode, rating, votes, extra)
		 SELECT ?, COALESCE(MAX(position) + 1, 0), ?, ?, ?, ?, ?
		 FROM episodes WHERE show_name = ?
		 ON CONFLICT(show_name, season, episode) DO NOTHING`,
		name, rec.Season, rec.Episode, rating, rec.Votes, extra, name)
	if err != nil {
		return fmt.Errorf("append episode: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: season %d episode %d", dataset.ErrDuplicateEpisode, rec.Season, rec.Episode)
	}
	return nil
}

// LoadShow returns a show header and its episode rows in stored order.
func (s *Store) LoadShow(ctx context.Context, name string) (Show, []dataset.Record, error) {
	var (
		show Show
		ts   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, tmdb_id, fetched_at FROM shows WHERE name = ?`, name).
		Scan(&show.Name, &show.TMDBID, &ts)
	if err == sql.ErrNoRows {
		return Show{}, nil, fmt.Errorf("%w: %q", ErrShowNotFound, name)
	}
	if err != nil {
		return Show{}, nil, fmt.Errorf("load show: %w", err)
	}
	show.FetchedAt, _ = time.Parse(time.RFC3339, ts)

	rows, err := s.db.QueryContext(ctx,
		`SELECT season, episode, rating, votes, extra
		 FROM episodes WHERE show_name = ? ORDER BY position`, name)
	if err != nil {
		return Show{}, nil, fmt.Errorf("load episodes: %w", err)
	}
	defer rows.Close()

	var records []dataset.Record
	for rows.Next() {
		var (
			rec    dataset.Record
			rating sql.NullFloat64
			extra  sql.NullString
		)
		if err := rows.Scan(&rec.Season, &rec.Episode, &rating, &rec.Votes, &extra); err != nil {
			return Show{}, nil, fmt.Errorf("scan episode: %w", err)
		}
		if rating.Valid {
			rec.Rating = rating.Float64
			rec.Observed = true
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &rec.Extra); err != nil {
				return Show{}, nil, fmt.Errorf("decode extra: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Show{}, nil, fmt.Errorf("iterate episodes: %w", err)
	}
	if len(records) == 0 {
		return Show{}, nil, fmt.Errorf("%w: show %q is empty", ErrNoEpisodes, name)
	}
	return show, records, nil
}

// Shows lists the persisted show headers, most recently fetched first.
func (s *Store) Shows(ctx context.Context) ([]Show, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, tmdb_id, fetched_at FROM shows ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	defer rows.Close()

	var shows []Show
	for rows.Next() {
		var (
			show Show
			ts   string
		)
		if err := rows.Scan(&show.Name, &show.TMDBID, &ts); err != nil {
			return nil, fmt.Errorf("scan show: %w", err)
		}
		show.FetchedAt, _ = time.Parse(time.RFC3339, ts)
		shows = append(shows, show)
	}
	return shows, rows.Err()
}

// encodeRecord splits a record into its nullable rating and JSON extra.
func encodeRecord(rec dataset.Record) (any, any, error) {
	var rating any
	if rec.Observed {
		rating = rec.Rating
	}
	var extra any
	if len(rec.Extra) > 0 {
		raw, err := json.Marshal(rec.Extra)
		if err != nil {
			return nil, nil, fmt.Errorf("encode extra: %w", err)
		}
		extra = string(raw)
	}
	return rating, extra, nil
}
