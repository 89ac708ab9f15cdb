package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
)

type RedisIdempotencyStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) GetOrLock(key string) (*model.IdempotencyRecord, bool) {
	ctx := context.Background()
	payload := encodeIdemRecord(model.IdempotencyRecord{CreatedAt: time.Now().UTC(), Processing: true})
	locked, err := s.client.Client.SetNX(ctx, s.client.key("idem", key), payload, s.ttl).Result()
	if err == nil && locked {
		return nil, false
	}
	raw, err := s.client.Client.Get(ctx, s.client.key("idem", key)).Result()
	if err != nil {
		return nil, false
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *RedisIdempotencyStore) Save(key string, status int, body []byte) {
	payload := encodeIdemRecord(model.IdempotencyRecord{Status: status, Body: body, CreatedAt: time.Now().UTC()})
	_ = s.client.Client.Set(context.Background(), s.client.key("idem", key), payload, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	_ = s.client.Client.Del(context.Background(), s.client.key("idem", key)).Err()
}

func encodeIdemRecord(rec model.IdempotencyRecord) string {
	wire := map[string]interface{}{
		"status":     rec.Status,
		"body":       base64.StdEncoding.EncodeToString(rec.Body),
		"created_at": rec.CreatedAt.Unix(),
		"processing": rec.Processing,
	}
	data, _ := json.Marshal(wire)
	return string(data)
}

func decodeIdemRecord(raw string) (*model.IdempotencyRecord, error) {
	var wire struct {
		Status     int    `json:"status"`
		Body       string `json:"body"`
		CreatedAt  int64  `json:"created_at"`
		Processing bool   `json:"processing"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	body, _ := base64.StdEncoding.DecodeString(wire.Body)
	return &model.IdempotencyRecord{
		Status:     wire.Status,
		Body:       body,
		CreatedAt:  time.Unix(wire.CreatedAt, 0).UTC(),
		Processing: wire.Processing,
	}, nil
}
