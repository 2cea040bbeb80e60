package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLStore is a database/sql-backed Store. It works against either
// lib/pq (driver "postgres") or mattn/go-sqlite3 (driver "sqlite3"); the only
// difference between the two is placeholder syntax, handled by dialect().
type SQLStore struct {
	db     *sql.DB
	driver string
	log    func(...any)
}

// NewSQLStore wraps an already-open *sql.DB. driver must be "postgres" or
// "sqlite3" so SQLStore knows which placeholder syntax and schema dialect to
// emit. queryLog, if non-nil, receives a line per executed statement — wire
// logger.SQLQueryLogger(zapLogger) here to bridge to structured logging.
func NewSQLStore(db *sql.DB, driver string, queryLog func(...any)) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver, log: queryLog}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) logf(format string, args ...any) {
	if s.log != nil {
		s.log(fmt.Sprintf(format, args...))
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	blobType := "BYTEA"
	if s.driver != "postgres" {
		blobType = "BLOB"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS journal_events (
			entity_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			tag TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload %s NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (entity_id, seq)
		)`, blobType),
		`CREATE INDEX IF NOT EXISTS journal_events_tag_idx ON journal_events (tag)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS journal_snapshots (
			entity_id TEXT PRIMARY KEY,
			seq BIGINT NOT NULL,
			tag TEXT NOT NULL,
			payload %s NOT NULL,
			taken_at TIMESTAMP NOT NULL
		)`, blobType),
		`CREATE TABLE IF NOT EXISTS journal_deleted_markers (
			entity_id TEXT PRIMARY KEY,
			deleted_to BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// ph renders the n-th bind placeholder (1-indexed) in this store's dialect.
func (s *SQLStore) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) AppendEvents(ctx context.Context, entityID string, expectedSeq uint64, records []Record) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) FROM journal_events WHERE entity_id = %s`, s.ph(1)),
		entityID)
	if err := row.Scan(&current); err != nil {
		return 0, fmt.Errorf("journal: read current seq: %w", err)
	}
	if current != expectedSeq {
		return current, &ConflictError{EntityID: entityID, Expected: expectedSeq, ActualSeq: current}
	}

	now := time.Now()
	insertSQL := fmt.Sprintf(`INSERT INTO journal_events (entity_id, seq, tag, kind, payload, recorded_at) VALUES (%s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))

	newSeq := expectedSeq
	for i, r := range records {
		newSeq = expectedSeq + uint64(i) + 1
		recordedAt := r.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = now
		}
		if _, err := tx.ExecContext(ctx, insertSQL, entityID, newSeq, r.Tag, r.Kind, r.Payload, recordedAt); err != nil {
			return 0, fmt.Errorf("journal: insert event seq %d: %w", newSeq, err)
		}
	}

	s.logf("journal: appended %d event(s) for entity %s up to seq %d", len(records), entityID, newSeq)
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("journal: commit: %w", err)
	}
	return newSeq, nil
}

func (s *SQLStore) ReadEvents(ctx context.Context, entityID string, fromSeq, toSeq uint64) (<-chan Record, <-chan error) {
	out := make(chan Record, 32)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		var deletedTo uint64
		_ = s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT deleted_to FROM journal_deleted_markers WHERE entity_id = %s`, s.ph(1)),
			entityID).Scan(&deletedTo)
		if fromSeq < deletedTo {
			fromSeq = deletedTo
		}

		var rows *sql.Rows
		var err error
		if toSeq == 0 {
			q := fmt.Sprintf(`SELECT seq, tag, kind, payload, recorded_at FROM journal_events WHERE entity_id = %s AND seq > %s ORDER BY seq ASC`, s.ph(1), s.ph(2))
			rows, err = s.db.QueryContext(ctx, q, entityID, fromSeq)
		} else {
			q := fmt.Sprintf(`SELECT seq, tag, kind, payload, recorded_at FROM journal_events WHERE entity_id = %s AND seq > %s AND seq <= %s ORDER BY seq ASC`, s.ph(1), s.ph(2), s.ph(3))
			rows, err = s.db.QueryContext(ctx, q, entityID, fromSeq, toSeq)
		}
		if err != nil {
			errc <- fmt.Errorf("journal: read events: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r Record
			r.EntityID = entityID
			if err := rows.Scan(&r.Seq, &r.Tag, &r.Kind, &r.Payload, &r.RecordedAt); err != nil {
				errc <- fmt.Errorf("journal: scan event: %w", err)
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (s *SQLStore) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}

	var upsert string
	switch s.driver {
	case "postgres":
		upsert = fmt.Sprintf(`INSERT INTO journal_snapshots (entity_id, seq, tag, payload, taken_at)
			VALUES (%s, %s, %s, %s, %s)
			ON CONFLICT (entity_id) DO UPDATE SET seq = EXCLUDED.seq, tag = EXCLUDED.tag, payload = EXCLUDED.payload, taken_at = EXCLUDED.taken_at`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	default:
		upsert = `INSERT INTO journal_snapshots (entity_id, seq, tag, payload, taken_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (entity_id) DO UPDATE SET seq = excluded.seq, tag = excluded.tag, payload = excluded.payload, taken_at = excluded.taken_at`
	}

	_, err := s.db.ExecContext(ctx, upsert, snap.EntityID, snap.Seq, snap.Tag, snap.Payload, snap.TakenAt)
	if err != nil {
		return fmt.Errorf("journal: write snapshot: %w", err)
	}
	s.logf("journal: wrote snapshot for entity %s at seq %d", snap.EntityID, snap.Seq)
	return nil
}

func (s *SQLStore) ReadLatestSnapshot(ctx context.Context, entityID string) (Snapshot, error) {
	var snap Snapshot
	snap.EntityID = entityID
	q := fmt.Sprintf(`SELECT seq, tag, payload, taken_at FROM journal_snapshots WHERE entity_id = %s`, s.ph(1))
	err := s.db.QueryRowContext(ctx, q, entityID).Scan(&snap.Seq, &snap.Tag, &snap.Payload, &snap.TakenAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("journal: read snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLStore) DeleteEventsUpTo(ctx context.Context, entityID string, seq uint64) error {
	var upsert string
	switch s.driver {
	case "postgres":
		upsert = fmt.Sprintf(`INSERT INTO journal_deleted_markers (entity_id, deleted_to) VALUES (%s, %s)
			ON CONFLICT (entity_id) DO UPDATE SET deleted_to = GREATEST(journal_deleted_markers.deleted_to, EXCLUDED.deleted_to)`,
			s.ph(1), s.ph(2))
	default:
		upsert = `INSERT INTO journal_deleted_markers (entity_id, deleted_to) VALUES (?, ?)
			ON CONFLICT (entity_id) DO UPDATE SET deleted_to = MAX(journal_deleted_markers.deleted_to, excluded.deleted_to)`
	}
	_, err := s.db.ExecContext(ctx, upsert, entityID, seq)
	if err != nil {
		return fmt.Errorf("journal: delete events up to %d: %w", seq, err)
	}
	return nil
}

func (s *SQLStore) CurrentEventsByTag(ctx context.Context, tag string) (<-chan Record, <-chan error) {
	out := make(chan Record, 32)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		q := fmt.Sprintf(`SELECT e.entity_id, e.seq, e.kind, e.payload, e.recorded_at
			FROM journal_events e
			LEFT JOIN journal_deleted_markers d ON d.entity_id = e.entity_id
			WHERE e.tag = %s AND e.seq > COALESCE(d.deleted_to, 0)
			ORDER BY e.entity_id, e.seq`, s.ph(1))
		rows, err := s.db.QueryContext(ctx, q, tag)
		if err != nil {
			errc <- fmt.Errorf("journal: current events by tag: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			r := Record{Tag: tag}
			if err := rows.Scan(&r.EntityID, &r.Seq, &r.Kind, &r.Payload, &r.RecordedAt); err != nil {
				errc <- fmt.Errorf("journal: scan tagged event: %w", err)
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// driverFromDSN mirrors the teacher cmd/server's sqlite://.../postgresql://
// URL convention, returning the database/sql driver name and stripped DSN.
func driverFromDSN(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(url, "sqlite://"), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", url, nil
	default:
		return "", "", fmt.Errorf("journal: unsupported database URL %q (use sqlite:// or postgresql://)", url)
	}
}

// Open opens a database/sql connection per url's scheme and wraps it in a
// SQLStore, running its migration. Callers own the returned store's Close.
func Open(url string, queryLog func(...any)) (*SQLStore, error) {
	driver, dsn, err := driverFromDSN(url)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return NewSQLStore(db, driver, queryLog)
}
