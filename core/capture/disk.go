package capture

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	sessionDirPrefix = "storage-"
	// staleSessionAge is how old an abandoned session dir must be before a
	// new disk store removes it.
	staleSessionAge = 24 * time.Hour
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	url      TEXT NOT NULL,
	data     BLOB NOT NULL,
	response BLOB
);
`

// DiskStorage keeps captured traffic in a SQLite database inside a
// per-session directory under the home dir.
type DiskStorage struct {
	home       string
	sessionDir string
	maxSize    int
	db         *sql.DB

	cleanupOnce sync.Once
	cleanupErr  error
}

var _ Storage = (*DiskStorage)(nil)

// NewDiskStorage opens a fresh session database under home. Session
// directories left behind by earlier processes are removed once stale.
func NewDiskStorage(home string, maxSize int) (*DiskStorage, error) {
	sweepStaleSessions(home, time.Now())

	sessionDir := filepath.Join(home, sessionDirPrefix+uuid.NewString())
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(sessionDir, "requests.db"))
	if err != nil {
		_ = os.RemoveAll(sessionDir)
		return nil, fmt.Errorf("failed to open capture database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		_ = os.RemoveAll(sessionDir)
		return nil, fmt.Errorf("failed to initialize capture database: %w", err)
	}

	return &DiskStorage{
		home:       home,
		sessionDir: sessionDir,
		maxSize:    maxSize,
		db:         db,
	}, nil
}

func sweepStaleSessions(home string, now time.Time) {
	entries, err := os.ReadDir(home)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), sessionDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > staleSessionAge {
			_ = os.RemoveAll(filepath.Join(home, e.Name()))
		}
	}
}

func (s *DiskStorage) HomeDir() string {
	return s.home
}

// SessionDir is the directory holding this store's database.
func (s *DiskStorage) SessionDir() string {
	return s.sessionDir
}

func (s *DiskStorage) SaveRequest(req *Request) error {
	stored := req.Clone()
	resp := stored.Response
	stored.Response = nil

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	var respData []byte
	if resp != nil {
		if respData, err = json.Marshal(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO requests (id, url, data, response) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET url = excluded.url, data = excluded.data, response = COALESCE(excluded.response, requests.response)`,
		stored.ID, stored.URL, data, respData)
	if err != nil {
		return fmt.Errorf("failed to save request %s: %w", stored.ID, err)
	}

	if s.maxSize > 0 {
		if _, err := tx.Exec(`DELETE FROM requests WHERE seq NOT IN (SELECT seq FROM requests ORDER BY seq DESC LIMIT ?)`, s.maxSize); err != nil {
			return fmt.Errorf("failed to evict requests: %w", err)
		}
	}
	return tx.Commit()
}

func (s *DiskStorage) SaveResponse(requestID string, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	res, err := s.db.Exec(`UPDATE requests SET response = ? WHERE id = ?`, data, requestID)
	if err != nil {
		return fmt.Errorf("failed to save response for %s: %w", requestID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DiskStorage) LoadRequests() ([]*Request, error) {
	return s.query(`SELECT id, data, response FROM requests ORDER BY seq`)
}

func (s *DiskStorage) LoadRequest(id string) (*Request, error) {
	reqs, err := s.query(`SELECT id, data, response FROM requests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, ErrNotFound
	}
	return reqs[0], nil
}

func (s *DiskStorage) LoadLastRequest() (*Request, error) {
	reqs, err := s.query(`SELECT id, data, response FROM requests ORDER BY seq DESC LIMIT 1`)
	if err != nil || len(reqs) == 0 {
		return nil, err
	}
	return reqs[0], nil
}

func (s *DiskStorage) FindRequest(pattern string) (*Request, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	reqs, err := s.LoadRequests()
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		if re.MatchString(req.URL) {
			return req, nil
		}
	}
	return nil, nil
}

func (s *DiskStorage) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM requests`); err != nil {
		return fmt.Errorf("failed to clear requests: %w", err)
	}
	return nil
}

// Cleanup closes the database and removes the session directory.
func (s *DiskStorage) Cleanup() error {
	s.cleanupOnce.Do(func() {
		s.cleanupErr = errors.Join(s.db.Close(), os.RemoveAll(s.sessionDir))
	})
	return s.cleanupErr
}

func (s *DiskStorage) query(q string, args ...any) ([]*Request, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}
	defer rows.Close()

	var reqs []*Request
	for rows.Next() {
		var (
			id       string
			data     []byte
			respData []byte
		)
		if err := rows.Scan(&id, &data, &respData); err != nil {
			return nil, fmt.Errorf("failed to read request row: %w", err)
		}
		req := &Request{}
		if err := json.Unmarshal(data, req); err != nil {
			return nil, fmt.Errorf("failed to decode request %s: %w", id, err)
		}
		if len(respData) > 0 {
			req.Response = &Response{}
			if err := json.Unmarshal(respData, req.Response); err != nil {
				return nil, fmt.Errorf("failed to decode response for %s: %w", id, err)
			}
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return reqs, nil
}
