// Package diaglog keeps the human-readable diagnostic stream of schedule
// mutations in a rotating JSONL file.
package diaglog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/groundsched/core/schedule"
)

// Config controls file location and rotation. Sizes are in megabytes and
// ages in days.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Query filters diagnostic records. Zero values match everything.
type Query struct {
	// ID keeps records with at least one classification about that range.
	ID        string
	Operation schedule.Operation
	Start     time.Time
	End       time.Time
	// Limit keeps only the most recent records when positive.
	Limit int
}

// RotatingLog stores diagnostic records with automatic rotation.
type RotatingLog struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingLog creates the parent directory and returns a log writing to cfg.Path.
func NewRotatingLog(cfg Config) (*RotatingLog, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &RotatingLog{logger: lj, path: cfg.Path}, nil
}

// RecordDiagnostics appends one record as a JSON line.
func (l *RotatingLog) RecordDiagnostics(ctx context.Context, rec schedule.DiagnosticRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.logger.Write(append(b, '\n'))
	return err
}

// Query reads the current file and its uncompressed backups and returns
// matching records ordered by time. Versions restart with each process so
// they only order records sharing a timestamp.
func (l *RotatingLog) Query(ctx context.Context, q Query) ([]schedule.DiagnosticRecord, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var res []schedule.DiagnosticRecord
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(f, q)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		res = append(res, recs...)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if !res[i].Time.Equal(res[j].Time) {
			return res[i].Time.Before(res[j].Time)
		}
		return res[i].Version < res[j].Version
	})
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[len(res)-q.Limit:]
	}
	return res, nil
}

// Close closes the underlying writer.
func (l *RotatingLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger.Close()
}

// files lists backups (name-<timestamp>.ext) and the active file.
func (l *RotatingLog) files() ([]string, error) {
	ext := filepath.Ext(l.path)
	prefix := strings.TrimSuffix(l.path, ext)
	backups, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(backups)
	return append(backups, l.path), nil
}

func readFile(path string, q Query) ([]schedule.DiagnosticRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var res []schedule.DiagnosticRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r schedule.DiagnosticRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if q.match(r) {
			res = append(res, r)
		}
	}
	return res, scanner.Err()
}

func (q Query) match(r schedule.DiagnosticRecord) bool {
	if q.Operation != "" && r.Operation != q.Operation {
		return false
	}
	if !q.Start.IsZero() && r.Time.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Time.After(q.End) {
		return false
	}
	if q.ID == "" {
		return true
	}
	for _, c := range r.Classifications {
		if c.ID == q.ID {
			return true
		}
	}
	return false
}
