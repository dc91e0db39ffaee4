// Package checkpoint stores per-epoch model snapshots in SQLite.
package checkpoint

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load for an unknown checkpoint.
var ErrNotFound = errors.New("checkpoint: not found")

// Snapshot is a model that can be written in its text format.
type Snapshot interface {
	Write(w io.Writer) error
}

// Info describes a stored checkpoint.
type Info struct {
	ID        int64
	Run       string
	Kind      string
	Epoch     int
	Iteration int
	Mistakes  int
	Created   time.Time
	Size      int
}

// Store is a SQLite checkpoint database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run TEXT NOT NULL,
		kind TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		iteration INTEGER NOT NULL,
		mistakes INTEGER NOT NULL,
		created INTEGER NOT NULL,
		model BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS checkpoints_run ON checkpoints (run, epoch);`
	if _, err := db.Exec(query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: init table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save writes a snapshot of m and returns its id.
func (s *Store) Save(info Info, m Snapshot) (int64, error) {
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		return 0, fmt.Errorf("checkpoint: encode: %w", err)
	}
	created := info.Created
	if created.IsZero() {
		created = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		"INSERT INTO checkpoints (run, kind, epoch, iteration, mistakes, created, model) VALUES (?, ?, ?, ?, ?, ?, ?)",
		info.Run, info.Kind, info.Epoch, info.Iteration, info.Mistakes, created.UnixNano(), buf.Bytes())
	if err != nil {
		return 0, fmt.Errorf("checkpoint: save: %w", err)
	}
	return res.LastInsertId()
}

// List returns the checkpoints of run in epoch order, or of every run when
// run is empty.
func (s *Store) List(run string) ([]Info, error) {
	query := "SELECT id, run, kind, epoch, iteration, mistakes, created, length(model) FROM checkpoints"
	var args []any
	if run != "" {
		query += " WHERE run = ?"
		args = append(args, run)
	}
	query += " ORDER BY run ASC, epoch ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []Info
	for rows.Next() {
		var info Info
		var created int64
		if err := rows.Scan(&info.ID, &info.Run, &info.Kind, &info.Epoch, &info.Iteration,
			&info.Mistakes, &created, &info.Size); err != nil {
			return nil, err
		}
		info.Created = time.Unix(0, created)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Load returns the description and text-format model of checkpoint id.
func (s *Store) Load(id int64) (Info, []byte, error) {
	var info Info
	var created int64
	var model []byte
	err := s.db.QueryRow(
		"SELECT id, run, kind, epoch, iteration, mistakes, created, model FROM checkpoints WHERE id = ?", id).
		Scan(&info.ID, &info.Run, &info.Kind, &info.Epoch, &info.Iteration, &info.Mistakes, &created, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return info, nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return info, nil, fmt.Errorf("checkpoint: load: %w", err)
	}
	info.Created = time.Unix(0, created)
	info.Size = len(model)
	return info, model, nil
}

// Latest returns the id of the last checkpoint of run, or of the most
// recently saved checkpoint when run is empty.
func (s *Store) Latest(run string) (int64, error) {
	query := "SELECT id FROM checkpoints WHERE run = ? ORDER BY epoch DESC, id DESC LIMIT 1"
	args := []any{run}
	if run == "" {
		query = "SELECT id FROM checkpoints ORDER BY id DESC LIMIT 1"
		args = nil
	}
	var id int64
	err := s.db.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: run %q", ErrNotFound, run)
	}
	return id, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
