package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
)

// MemoryLaunchRepo is used when no database is configured.
type MemoryLaunchRepo struct {
	mu      sync.RWMutex
	records map[string]*model.LaunchRecord
}

func NewMemoryLaunchRepo() *MemoryLaunchRepo {
	return &MemoryLaunchRepo{records: make(map[string]*model.LaunchRecord)}
}

func (r *MemoryLaunchRepo) SaveLaunch(_ context.Context, rec *model.LaunchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.records[rec.SessionID] = &cp
	return nil
}

func (r *MemoryLaunchRepo) UpdateLaunch(_ context.Context, rec *model.LaunchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[rec.SessionID]
	if !ok {
		return nil
	}
	cur.Status = rec.Status
	cur.Detail = rec.Detail
	cur.Error = rec.Error
	cur.InstanceURL = rec.InstanceURL
	cur.VerifyURL = rec.VerifyURL
	cur.EigenAppID = rec.EigenAppID
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryLaunchRepo) GetLaunch(_ context.Context, sessionID string) (*model.LaunchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryLaunchRepo) ListLaunches(_ context.Context, wallet string, limit int) ([]*model.LaunchRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	r.mu.RLock()
	out := make([]*model.LaunchRecord, 0, len(r.records))
	for _, rec := range r.records {
		if wallet != "" && !strings.EqualFold(rec.WalletAddress, wallet) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryActiveCache is the in-process stand-in for ActiveSessionCache.
type MemoryActiveCache struct {
	mu      sync.Mutex
	entries map[string]*model.ActiveLaunch
}

func NewMemoryActiveCache() *MemoryActiveCache {
	return &MemoryActiveCache{entries: make(map[string]*model.ActiveLaunch)}
}

func (c *MemoryActiveCache) PutActive(_ context.Context, rec *model.ActiveLaunch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *rec
	c.entries[strings.ToLower(rec.WalletAddress)] = &cp
	return nil
}

func (c *MemoryActiveCache) GetActive(_ context.Context, wallet string) (*model.ActiveLaunch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[strings.ToLower(wallet)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (c *MemoryActiveCache) DeleteActive(_ context.Context, wallet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, strings.ToLower(wallet))
	return nil
}
