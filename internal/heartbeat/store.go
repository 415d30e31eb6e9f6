package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SchemaVersion identifies the on-disk record layout. Bump on incompatible
// changes; Store.IsStale reports directories written under another version
// so the registry can clear them before first use.
const SchemaVersion = "1"

const (
	schemaMarker = ".schema"
	tmpPrefix    = ".tmp-"

	readRetries    = 3
	readRetryDelay = 10 * time.Millisecond
)

// ErrNotFound is returned by Read when no record exists for a session.
var ErrNotFound = errors.New("heartbeat: record not found")

// Store persists Records as one JSON file per session id under a shared
// directory. All writes go through a temp-file rename so concurrent readers
// never observe a partial record. Safe for concurrent use from any number of
// processes; the directory is the only shared state.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore binds a store to dir. The directory is not created here; the
// registry owns directory bootstrap.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the store's working directory.
func (s *Store) Dir() string { return s.dir }

// Write atomically persists rec, overwriting any previous record for the
// same session id.
func (s *Store) Write(rec Record) error {
	if rec.SessionID == "" {
		return errors.New("heartbeat: empty session id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("heartbeat: marshal record %s: %w", rec.SessionID, err)
	}
	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("heartbeat: create temp for %s: %w", rec.SessionID, err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("heartbeat: write temp for %s: %w", rec.SessionID, err)
	}
	final := filepath.Join(s.dir, FileName(rec.SessionID))
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("heartbeat: replace record %s: %w", rec.SessionID, err)
	}
	return nil
}

// Read returns the record for sessionID or ErrNotFound. A parse failure is
// retried a few times to ride out a concurrent replace, then reported as
// not found.
func (s *Store) Read(sessionID string) (Record, error) {
	path := filepath.Join(s.dir, FileName(sessionID))
	var lastErr error
	for i := 0; i < readRetries; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Record{}, ErrNotFound
			}
			return Record{}, fmt.Errorf("heartbeat: read record %s: %w", sessionID, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err == nil {
			return rec, nil
		} else {
			lastErr = err
		}
		time.Sleep(readRetryDelay)
	}
	s.logger.Warn("heartbeat record unreadable, treating as absent",
		"session", sessionID, "error", lastErr)
	return Record{}, ErrNotFound
}

// Delete removes the record for sessionID. Deleting an absent record is a
// no-op, which makes the primary's cleanup races harmless.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(filepath.Join(s.dir, FileName(sessionID)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("heartbeat: delete record %s: %w", sessionID, err)
	}
	return nil
}

// List returns every readable record in the directory. Corrupt or vanished
// entries are skipped, logged, and left for a later tick; they never fail
// the scan.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: list records: %w", err)
	}
	recs := make([]Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("skipping unreadable heartbeat file", "file", name, "error", err)
			}
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping corrupt heartbeat file", "file", name, "error", err)
			continue
		}
		if rec.SessionID == "" {
			s.logger.Warn("skipping heartbeat file without session id", "file", name)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// IsStale reports whether the directory was written by an incompatible
// schema: records exist but the schema marker is missing or carries a
// different version. An empty or nonexistent directory is never stale.
func (s *Store) IsStale() (bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("heartbeat: inspect store: %w", err)
	}
	hasRecords := false
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), tmpPrefix) {
			hasRecords = true
			break
		}
	}
	if !hasRecords {
		return false, nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, schemaMarker))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("heartbeat: read schema marker: %w", err)
	}
	return strings.TrimSpace(string(data)) != SchemaVersion, nil
}

// Clear removes every record and temp file, leaving the directory itself in
// place. Used by the registry when IsStale reports an incompatible store.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("heartbeat: clear store: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".json") || strings.HasPrefix(name, tmpPrefix) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("heartbeat: clear record %s: %w", name, err)
			}
		}
	}
	return nil
}

// WriteSchemaMarker stamps the directory with the current schema version.
func (s *Store) WriteSchemaMarker() error {
	path := filepath.Join(s.dir, schemaMarker)
	if err := os.WriteFile(path, []byte(SchemaVersion+"\n"), 0o644); err != nil {
		return fmt.Errorf("heartbeat: write schema marker: %w", err)
	}
	return nil
}
