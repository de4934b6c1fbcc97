// Package store persists recordings and their loop markers in a local
// SQLite database. It is the only component that touches the storage
// engine; everything above it works on the in-memory mirror kept by the
// library package.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"dacapo/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// The collection layout is fixed for a deployment. A schema version bump
// runs the upgrade step once; the step itself is create-if-absent and safe
// to re-run.
const (
	recordingsTable = "recordings"
	markersTable    = "loop_markers"
	schemaVersion   = 1
)

// Store wraps a *sql.DB providing keyed CRUD over recordings. The engine is
// opened lazily on first use, so constructing a Store never fails; a broken
// database path surfaces as ErrStorageUnavailable from the first operation.
// Safe for concurrent use.
type Store struct {
	path   string
	logger *logrus.Logger

	mu   sync.Mutex
	conn *sql.DB
}

// NewStore creates a store backed by the SQLite database at path. The file
// is not touched until the first operation.
func NewStore(path string) *Store {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Store{
		path:   path,
		logger: logger,
	}
}

// ensureOpen opens the engine and applies the version-gated upgrade step.
// Must be called with s.mu held.
func (s *Store) ensureOpen() error {
	if s.conn != nil {
		return nil
	}

	conn, err := sql.Open("sqlite3", s.path+"?cache=shared&mode=rwc")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			s.logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	if err := upgradeSchema(conn); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.conn = conn
	s.logger.WithField("db_path", s.path).Info("Store opened")
	return nil
}

// upgradeSchema creates the backing tables when the on-disk version is
// behind the deployment's schema version. Idempotent.
func upgradeSchema(conn *sql.DB) error {
	var current int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS ` + recordingsTable + ` (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			audio BLOB NOT NULL,
			duration REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ` + markersTable + ` (
			id TEXT PRIMARY KEY,
			recording_id TEXT NOT NULL,
			title TEXT NOT NULL,
			a REAL NOT NULL,
			b REAL NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (recording_id) REFERENCES ` + recordingsTable + `(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_markers_recording ON ` + markersTable + `(recording_id);`,
	}
	for _, table := range tables {
		if _, err := conn.Exec(table); err != nil {
			return err
		}
	}

	_, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// Add persists a new recording and returns its id. A caller-minted id is
// honored, so the caller can reference the recording before the write
// settles; an empty id is filled with a fresh uuid. Ids are never reused.
func (s *Store) Add(rec models.Recording) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return "", err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO "+recordingsTable+" (id, name, audio, duration, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.Name, rec.Audio, rec.Duration, rec.CreatedAt)
	if err != nil {
		s.logger.WithError(err).WithField("name", rec.Name).Error("Failed to insert recording")
		return "", fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	if err := insertMarkers(tx, rec.ID, rec.Markers); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return rec.ID, nil
}

// Get returns the recording with the given id, or nil when it does not
// exist.
func (s *Store) Get(id string) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var rec models.Recording
	err := s.conn.QueryRow(
		"SELECT id, name, audio, duration, created_at FROM "+recordingsTable+" WHERE id = ?", id).
		Scan(&rec.ID, &rec.Name, &rec.Audio, &rec.Duration, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("recording_id", id).Error("Failed to get recording")
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	markers, err := s.loadMarkers(rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Markers = markers
	return &rec, nil
}

// Update replaces the stored recording and its marker list. The marker list
// is rewritten wholesale; the call is atomic.
func (s *Store) Update(rec models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"UPDATE "+recordingsTable+" SET name = ?, audio = ?, duration = ? WHERE id = ?",
		rec.Name, rec.Audio, rec.Duration, rec.ID)
	if err != nil {
		s.logger.WithError(err).WithField("recording_id", rec.ID).Error("Failed to update recording")
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: recording %s not found", ErrOperationFailed, rec.ID)
	}

	if _, err := tx.Exec("DELETE FROM "+markersTable+" WHERE recording_id = ?", rec.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if err := insertMarkers(tx, rec.ID, rec.Markers); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return nil
}

// Delete removes the recording with the given id. Markers go with it via
// the cascading foreign key. Deleting a missing id is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	if _, err := s.conn.Exec("DELETE FROM "+recordingsTable+" WHERE id = ?", id); err != nil {
		s.logger.WithError(err).WithField("recording_id", id).Error("Failed to delete recording")
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return nil
}

// GetAll returns every recording in insertion order.
func (s *Store) GetAll() ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(
		"SELECT id, name, audio, duration, created_at FROM " + recordingsTable + " ORDER BY rowid")
	if err != nil {
		s.logger.WithError(err).Error("Failed to list recordings")
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Audio, &rec.Duration, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	for i := range recs {
		markers, err := s.loadMarkers(recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Markers = markers
	}
	return recs, nil
}

// Close closes the underlying connection if it was ever opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// loadMarkers reads the marker list for a recording ordered by insertion.
// Must be called with s.mu held and the engine open.
func (s *Store) loadMarkers(recordingID string) ([]models.LoopMarker, error) {
	rows, err := s.conn.Query(
		"SELECT id, title, a, b, created_at FROM "+markersTable+" WHERE recording_id = ? ORDER BY rowid",
		recordingID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	defer rows.Close()

	var markers []models.LoopMarker
	for rows.Next() {
		var m models.LoopMarker
		if err := rows.Scan(&m.ID, &m.Title, &m.A, &m.B, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return markers, nil
}

func insertMarkers(tx *sql.Tx, recordingID string, markers []models.LoopMarker) error {
	for _, m := range markers {
		_, err := tx.Exec(
			"INSERT INTO "+markersTable+" (id, recording_id, title, a, b, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			m.ID, recordingID, m.Title, m.A, m.B, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOperationFailed, err)
		}
	}
	return nil
}
