package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// defaultBusyTimeoutMs is applied when the caller does not supply one.
// The control CLI reads the journal while the daemon writes it, so a
// zero timeout would surface SQLITE_BUSY on every overlap.
const defaultBusyTimeoutMs = 5000

// defaultRecentLimit bounds recent-block queries when the caller passes
// no limit of its own.
const defaultRecentLimit = 50

// Store is the SQLite-backed decision journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at path with the default
// busy timeout.
func Open(path string) (*Store, error) {
	return OpenWithBusyTimeout(path, defaultBusyTimeoutMs)
}

// OpenWithBusyTimeout opens or creates the journal database with an
// explicit SQLite busy timeout in milliseconds.
func OpenWithBusyTimeout(path string, busyTimeoutMs int) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	if busyTimeoutMs <= 0 {
		busyTimeoutMs = defaultBusyTimeoutMs
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// Migrating forces the file into existence before the chmod.
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the journal is reachable. Used by the health checker.
func (s *Store) Ping() error {
	if s.db == nil {
		return errors.New("journal not open")
	}
	var one int
	if err := s.db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping journal: %w", err)
	}
	return nil
}

// RecordDecision journals one enforcement decision. It satisfies the
// engine's Journal dependency.
func (s *Store) RecordDecision(app, reason, detail string, dropped bool, at time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO block_events (app, reason, detail, dropped, at_ns) VALUES (?, ?, ?, ?, ?)",
		app, reason, detail, dropped, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// RecentBlocks returns the newest journal rows, most recent first.
// A non-positive limit applies the default.
func (s *Store) RecentBlocks(limit int) ([]BlockRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.Query(`
		SELECT id, app, reason, detail, dropped, at_ns
		FROM block_events
		ORDER BY at_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent blocks: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

// RecentBlocksForApp returns the newest journal rows for a single app,
// most recent first.
func (s *Store) RecentBlocksForApp(app string, limit int) ([]BlockRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.Query(`
		SELECT id, app, reason, detail, dropped, at_ns
		FROM block_events
		WHERE app = ?
		ORDER BY at_ns DESC, id DESC
		LIMIT ?`, app, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent blocks for app: %w", err)
	}
	defer rows.Close()

	return scanBlocks(rows)
}

// LastBlockFor returns the most recent decision for one app, or nil when
// the app has never been journaled.
func (s *Store) LastBlockFor(app string) (*BlockRecord, error) {
	var (
		r    BlockRecord
		atNs int64
	)
	err := s.db.QueryRow(`
		SELECT id, app, reason, detail, dropped, at_ns
		FROM block_events
		WHERE app = ?
		ORDER BY at_ns DESC, id DESC
		LIMIT 1`, app).Scan(&r.ID, &r.App, &r.Reason, &r.Detail, &r.Dropped, &atNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last block: %w", err)
	}
	r.At = time.Unix(0, atNs)
	return &r, nil
}

// CountByApp aggregates journaled decisions per app, busiest first.
func (s *Store) CountByApp() ([]AppCount, error) {
	rows, err := s.db.Query(`
		SELECT app,
		       SUM(CASE WHEN dropped = 0 THEN 1 ELSE 0 END) AS blocks,
		       SUM(CASE WHEN dropped = 1 THEN 1 ELSE 0 END) AS dropped
		FROM block_events
		GROUP BY app
		ORDER BY blocks DESC, app ASC`)
	if err != nil {
		return nil, fmt.Errorf("query app counts: %w", err)
	}
	defer rows.Close()

	var counts []AppCount
	for rows.Next() {
		var c AppCount
		if err := rows.Scan(&c.App, &c.Blocks, &c.Dropped); err != nil {
			return nil, fmt.Errorf("scan app count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Stats summarizes the journal.
func (s *Store) Stats() (Stats, error) {
	var (
		total   int64
		dropped int64
		firstNs int64
		lastNs  int64
	)
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(dropped), 0),
		       COALESCE(MIN(at_ns), 0),
		       COALESCE(MAX(at_ns), 0)
		FROM block_events`).Scan(&total, &dropped, &firstNs, &lastNs)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}

	st := Stats{
		Blocks:  total - dropped,
		Dropped: dropped,
	}
	if firstNs > 0 {
		st.FirstAt = time.Unix(0, firstNs)
	}
	if lastNs > 0 {
		st.LastAt = time.Unix(0, lastNs)
	}
	return st, nil
}

// PruneOlderThan deletes journal rows older than cutoff and returns the
// number of rows removed.
func (s *Store) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM block_events WHERE at_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return n, nil
}

// scanBlocks converts rows from a block_events query into records.
func scanBlocks(rows *sql.Rows) ([]BlockRecord, error) {
	var records []BlockRecord
	for rows.Next() {
		var (
			r    BlockRecord
			atNs int64
		)
		if err := rows.Scan(&r.ID, &r.App, &r.Reason, &r.Detail, &r.Dropped, &atNs); err != nil {
			return nil, fmt.Errorf("scan block record: %w", err)
		}
		r.At = time.Unix(0, atNs)
		records = append(records, r)
	}
	return records, rows.Err()
}
