package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
)

const (
	auditQueueSize = 1000
	auditRingSize  = 1000
	auditInsertTTL = 5 * time.Second
)

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error)
}

// AuditService keeps the companion API trail: a JSONL file per UTC day, the
// most recent entries in memory and, when configured, a repository.
type AuditService struct {
	dir    string
	repo   AuditRepo
	recent *auditRing
	queue  chan *model.AuditLog
	done   chan struct{}

	// owned by the writer goroutine after construction
	day  string
	file *os.File
	enc  *json.Encoder
}

func NewAuditService(dir string, repo AuditRepo) (*AuditService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	s := &AuditService{
		dir:    dir,
		repo:   repo,
		recent: newAuditRing(auditRingSize),
		queue:  make(chan *model.AuditLog, auditQueueSize),
		done:   make(chan struct{}),
	}
	if err := s.rotate(time.Now().UTC()); err != nil {
		return nil, err
	}
	go s.write()
	return s, nil
}

// Record queues an entry. When the writer falls behind the entry is kept in
// memory only.
func (s *AuditService) Record(entry *model.AuditLog) {
	s.recent.push(entry)
	select {
	case s.queue <- entry:
	default:
		logger.Warn("Audit queue full, entry not persisted", "route", entry.Route, "stage", entry.Stage)
	}
}

// List serves from the repository and falls back to recent entries.
func (s *AuditService) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	q = q.Normalize()
	if s.repo != nil {
		records, err := s.repo.List(ctx, q)
		if err == nil {
			return records, nil
		}
		logger.Warn("Audit repository list failed, serving recent entries", "error", err)
	}
	return s.recent.find(q), nil
}

// Close flushes queued entries and closes the current file.
func (s *AuditService) Close() {
	close(s.queue)
	<-s.done
}

func (s *AuditService) write() {
	defer close(s.done)
	for entry := range s.queue {
		if err := s.rotate(time.Now().UTC()); err != nil {
			logger.Error("Failed to open audit file", "error", err)
		} else if err := s.enc.Encode(entry); err != nil {
			logger.Error("Failed to write audit entry", "id", entry.ID, "error", err)
		}
		if s.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), auditInsertTTL)
			if err := s.repo.Insert(ctx, entry); err != nil {
				logger.Error("Failed to store audit entry", "id", entry.ID, "error", err)
			}
			cancel()
		}
	}
	if s.file != nil {
		_ = s.file.Close()
	}
}

// rotate switches to the file for now's day if it is not already open.
func (s *AuditService) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if s.file != nil && s.day == day {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(s.dir, "audit-"+day+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	s.day, s.file, s.enc = day, f, json.NewEncoder(f)
	return nil
}

// auditRing holds the last len(entries) records; head is the next slot.
type auditRing struct {
	mu      sync.Mutex
	entries []*model.AuditLog
	head    int
	full    bool
}

func newAuditRing(size int) *auditRing {
	return &auditRing{entries: make([]*model.AuditLog, size)}
}

func (r *auditRing) push(e *model.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
	if r.head == 0 {
		r.full = true
	}
}

// find walks from newest to oldest.
func (r *auditRing) find(q model.AuditQuery) []*model.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.head
	if r.full {
		n = len(r.entries)
	}
	out := make([]*model.AuditLog, 0, min(n, q.Limit))
	for i := 1; i <= n && len(out) < q.Limit; i++ {
		e := r.entries[(r.head-i+len(r.entries))%len(r.entries)]
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
