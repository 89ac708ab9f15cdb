package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresAuditRepo struct {
	db *gorm.DB
}

func NewPostgresAuditRepo(db *gorm.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
}

func (r *PostgresAuditRepo) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	q = q.Normalize()
	tx := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if q.SessionID != "" {
		tx = tx.Where("session_id = ?", q.SessionID)
	}
	if q.Stage != "" {
		tx = tx.Where("stage = ?", q.Stage)
	}
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at <= ?", *q.To)
	}
	var records []*model.AuditLog
	err := tx.Order("created_at DESC").Limit(q.Limit).Find(&records).Error
	return records, err
}

// Cleanup removes entries older than the retention window.
func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AuditLog{}).Error
}
