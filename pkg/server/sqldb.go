package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// SQLStore manages a SQLite3 database used for the command audit log and
// for wizard @sql queries.
type SQLStore struct {
	db        *sql.DB
	mu        sync.Mutex
	path      string
	timeout   time.Duration
	retention time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

const executionSchema = `
CREATE TABLE IF NOT EXISTS executions (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	player   INTEGER NOT NULL,
	cause    INTEGER NOT NULL,
	command  TEXT NOT NULL,
	micros   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_ts ON executions(ts);
`

// OpenSQLStore opens a SQLite3 database, sets WAL mode and busy timeout,
// and creates the audit tables. Rows older than retentionDays are pruned
// at open and then once a day; retentionDays <= 0 keeps everything.
func OpenSQLStore(path string, timeoutSec, retentionDays int) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(executionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit tables: %w", err)
	}
	s := &SQLStore{
		db:        db,
		path:      path,
		timeout:   time.Duration(timeoutSec) * time.Second,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		stop:      make(chan struct{}),
	}
	if s.retention > 0 {
		s.pruneExecutions()
		go s.pruneLoop()
	}
	return s, nil
}

// Close stops the pruner and closes the SQLite3 database connection.
func (s *SQLStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) pruneLoop() {
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.pruneExecutions()
		case <-s.stop:
			return
		}
	}
}

// pruneExecutions drops audit rows older than the retention window.
func (s *SQLStore) pruneExecutions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	cutoff := time.Now().Add(-s.retention).Unix()
	s.db.ExecContext(ctx, "DELETE FROM executions WHERE ts < ?", cutoff)
}

// Path returns the filesystem path of the SQLite database.
func (s *SQLStore) Path() string { return s.path }

// LogExecution records one dispatched queue entry in the audit log.
func (s *SQLStore) LogExecution(player, cause gamedb.DBRef, command string, dur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.db.ExecContext(ctx,
		"INSERT INTO executions (ts, player, cause, command, micros) VALUES (?, ?, ?, ?, ?)",
		time.Now().Unix(), int(player), int(cause), command, dur.Microseconds())
}

// ExecutionRecord is one row of the command audit log.
type ExecutionRecord struct {
	Time    time.Time
	Player  gamedb.DBRef
	Cause   gamedb.DBRef
	Command string
	Elapsed time.Duration
}

// RecentExecutions returns the newest audit rows, most recent first.
func (s *SQLStore) RecentExecutions(limit int) ([]ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("SQL NOT CONFIGURED")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT ts, player, cause, command, micros FROM executions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ExecutionRecord
	for rows.Next() {
		var ts, micros int64
		var player, cause int
		var command string
		if err := rows.Scan(&ts, &player, &cause, &command, &micros); err != nil {
			return nil, err
		}
		recs = append(recs, ExecutionRecord{
			Time:    time.Unix(ts, 0),
			Player:  gamedb.DBRef(player),
			Cause:   gamedb.DBRef(cause),
			Command: command,
			Elapsed: time.Duration(micros) * time.Microsecond,
		})
	}
	return recs, rows.Err()
}

// Query executes a SQL statement and returns results as delimited text.
// SELECT queries return rows delimited by rowDelim with fields separated
// by fieldDelim. Non-SELECT queries return the number of affected rows.
func (s *SQLStore) Query(query, rowDelim, fieldDelim string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return "", fmt.Errorf("SQL NOT CONFIGURED")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		result, err := s.db.ExecContext(ctx, trimmed)
		if err != nil {
			return "", err
		}
		affected, _ := result.RowsAffected()
		return fmt.Sprintf("%d", affected), nil
	}

	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	numCols := len(cols)

	var resultRows []string
	for rows.Next() {
		values := make([]interface{}, numCols)
		ptrs := make([]interface{}, numCols)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		fields := make([]string, numCols)
		for i, v := range values {
			if v == nil {
				fields[i] = ""
			} else {
				fields[i] = fmt.Sprintf("%v", v)
			}
		}
		resultRows = append(resultRows, strings.Join(fields, fieldDelim))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(resultRows, rowDelim), nil
}

// cmdSQL runs a raw statement against the audit database.
func cmdSQL(g *Game, d *Descriptor, args string, switches []string) {
	if g.SQLDB == nil {
		d.Send("SQL is not configured.")
		return
	}
	if strings.TrimSpace(args) == "" {
		d.Send("Usage: @sql <statement>")
		return
	}
	out, err := g.SQLDB.Query(args, "\n", " | ")
	if err != nil {
		d.Send(fmt.Sprintf("SQL error: %s", err))
		return
	}
	if out == "" {
		d.Send("No rows.")
		return
	}
	for _, line := range strings.Split(out, "\n") {
		d.Send(line)
	}
}
