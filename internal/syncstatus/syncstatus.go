// Package syncstatus persists a summary of the most recent sync cycle so the
// status command can report on a running daemon.
package syncstatus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/fsutil"
	"github.com/plexsphere/cloudflare-ufw-sync/internal/reconcile"
)

// FileName is the status file name inside the data directory.
const FileName = "last-sync.json"

// Record is the persisted summary of one cycle.
type Record struct {
	Time       time.Time `json:"time"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`

	IPs struct {
		V4 int `json:"v4"`
		V6 int `json:"v6"`
	} `json:"ips"`

	Rules struct {
		Added        int `json:"added"`
		Removed      int `json:"removed"`
		AddFailed    int `json:"add_failed"`
		RemoveFailed int `json:"remove_failed"`
	} `json:"rules"`

	StatusDegraded  bool   `json:"status_degraded,omitempty"`
	PreconditionErr string `json:"precondition_error,omitempty"`

	// LastSuccess is carried over from earlier records when this cycle failed.
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// FromResult builds a Record for a completed cycle.
func FromResult(now time.Time, res reconcile.Result, err error) Record {
	var r Record
	r.Time = now.UTC()
	r.Success = err == nil
	if err != nil {
		r.Error = err.Error()
	}
	r.DurationMS = res.Duration.Milliseconds()
	r.IPs.V4 = res.Desired[cidr.FamilyV4]
	r.IPs.V6 = res.Desired[cidr.FamilyV6]
	r.Rules.Added = res.Added
	r.Rules.Removed = res.Removed
	r.Rules.AddFailed = res.AddFailed
	r.Rules.RemoveFailed = res.RemoveFailed
	r.StatusDegraded = res.StatusDegraded
	if res.PreconditionErr != nil {
		r.PreconditionErr = res.PreconditionErr.Error()
	}
	if r.Success {
		t := r.Time
		r.LastSuccess = &t
	}
	return r
}

// Store reads and writes the status file in a data directory.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastSuccess *time.Time
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With("component", "syncstatus"),
		now:    time.Now,
	}
}

// Path returns the status file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Write persists rec atomically.
func (s *Store) Write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("syncstatus: marshal: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.dir, FileName, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("syncstatus: write: %w", err)
	}
	return nil
}

// Read loads the last record. It returns (nil, nil) when no sync has been
// recorded yet.
func (s *Store) Read() (*Record, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncstatus: read: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("syncstatus: decode %s: %w", s.Path(), err)
	}
	return &rec, nil
}

// RecordCycle implements reconcile.Recorder. Write failures are logged; a
// read-only data directory must not break syncing.
func (s *Store) RecordCycle(res reconcile.Result, err error) {
	rec := FromResult(s.now(), res, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.LastSuccess == nil {
		if s.lastSuccess == nil {
			if prev, rerr := s.Read(); rerr == nil && prev != nil {
				s.lastSuccess = prev.LastSuccess
			}
		}
		rec.LastSuccess = s.lastSuccess
	} else {
		s.lastSuccess = rec.LastSuccess
	}

	if werr := s.Write(rec); werr != nil {
		s.logger.Warn("failed to write sync status", "path", s.Path(), "error", werr)
	}
}
