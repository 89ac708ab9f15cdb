package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/frontdoor/internal/model"
)

// RedisAuditRepo keeps a capped list of recent audit entries.
type RedisAuditRepo struct {
	client  *RedisClient
	listKey string
	listMax int64
}

func NewRedisAuditRepo(client *RedisClient, listMax int64) *RedisAuditRepo {
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  client,
		listKey: client.key("audit_logs"),
		listMax: listMax,
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.Client.TxPipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, r.listMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisAuditRepo) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	q = q.Normalize()
	fetch := min(max(int64(q.Limit)*5, 100), r.listMax)
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, fetch-1).Result()
	if err != nil {
		return nil, err
	}
	return filterAudit(items, q), nil
}

// filterAudit decodes newest-first list items, skipping undecodable ones.
func filterAudit(items []string, q model.AuditQuery) []*model.AuditLog {
	results := make([]*model.AuditLog, 0, q.Limit)
	for _, raw := range items {
		entry := &model.AuditLog{}
		if err := json.Unmarshal([]byte(raw), entry); err != nil || !q.Matches(entry) {
			continue
		}
		if results = append(results, entry); len(results) >= q.Limit {
			break
		}
	}
	return results
}
