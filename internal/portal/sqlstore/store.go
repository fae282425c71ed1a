package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/portal"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const DefaultDocumentName = "portal"

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", errors.Newf("unsupported sql dialect %q", raw)
	}
}

// Store keeps the state document as a single row of portal_state and the run
// log in automation_runs.
type Store struct {
	db      *sql.DB
	dialect Dialect
	name    string
}

// Open connects with the driver matching dialect, waiting for the database to
// answer pings, and creates the schema if needed.
func Open(ctx context.Context, dialect Dialect, dsn string, name string) (*Store, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dialect)
	}
	var pingErr error
	for i := 0; i < 5; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if pingErr != nil {
		_ = db.Close()
		return nil, errors.Wrapf(pingErr, "could not reach %s after retries", dialect)
	}
	if dialect == DialectSQLite {
		// One writer at a time; avoids SQLITE_BUSY between the two tables.
		db.SetMaxOpenConns(1)
	}
	s := New(db, dialect, name)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB, dialect Dialect, name string) *Store {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDocumentName
	}
	return &Store{db: db, dialect: dialect, name: name}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// bind rewrites ?-placeholders for the dialect.
func (s *Store) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Migrate(ctx context.Context) error {
	docType := "TEXT"
	runID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		docType = "JSONB"
		runID = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS portal_state (
			name TEXT PRIMARY KEY,
			document ` + docType + ` NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS automation_runs (
			id ` + runID + `,
			job TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			status TEXT NOT NULL,
			outcome TEXT,
			forced BOOLEAN NOT NULL DEFAULT FALSE,
			message TEXT,
			error TEXT,
			output_preview TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate schema")
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*portal.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT document FROM portal_state WHERE name = ?`), s.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return portal.NewDocument(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load state %q", s.name)
	}
	return portal.ParseDocument([]byte(raw))
}

func (s *Store) Save(ctx context.Context, doc *portal.Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	_, err = s.db.ExecContext(ctx, s.bind(`INSERT INTO portal_state (name, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`),
		s.name, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "save state %q", s.name)
	}
	return nil
}

// Record appends one run to automation_runs.
func (s *Store) Record(ctx context.Context, rec cron.RunRecord) error {
	_, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO automation_runs
		(job, started_at, finished_at, status, outcome, forced, message, error, output_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.Job,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Status, rec.Outcome, rec.Forced, rec.Message, rec.Error, rec.OutputPreview)
	if err != nil {
		return errors.Wrap(err, "record run")
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]cron.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT job, started_at, finished_at, status,
		COALESCE(outcome, ''), forced, COALESCE(message, ''), COALESCE(error, ''), COALESCE(output_preview, '')
		FROM automation_runs ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []cron.RunRecord
	for rows.Next() {
		var rec cron.RunRecord
		var started, finished string
		if err := rows.Scan(&rec.Job, &started, &finished, &rec.Status, &rec.Outcome, &rec.Forced, &rec.Message, &rec.Error, &rec.OutputPreview); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}
