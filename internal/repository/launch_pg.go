package repository

import (
	"context"
	"errors"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresLaunchRepo struct {
	db *gorm.DB
}

func NewPostgresLaunchRepo(db *gorm.DB) *PostgresLaunchRepo {
	return &PostgresLaunchRepo{db: db}
}

func (r *PostgresLaunchRepo) SaveLaunch(ctx context.Context, rec *model.LaunchRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

func (r *PostgresLaunchRepo) UpdateLaunch(ctx context.Context, rec *model.LaunchRecord) error {
	return r.db.WithContext(ctx).Model(&model.LaunchRecord{}).
		Where("session_id = ?", rec.SessionID).
		Updates(map[string]any{
			"status":       rec.Status,
			"detail":       rec.Detail,
			"error":        rec.Error,
			"instance_url": rec.InstanceURL,
			"verify_url":   rec.VerifyURL,
			"eigen_app_id": rec.EigenAppID,
		}).Error
}

func (r *PostgresLaunchRepo) GetLaunch(ctx context.Context, sessionID string) (*model.LaunchRecord, error) {
	var rec model.LaunchRecord
	err := r.db.WithContext(ctx).First(&rec, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresLaunchRepo) ListLaunches(ctx context.Context, wallet string, limit int) ([]*model.LaunchRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if wallet != "" {
		q = q.Where("wallet_address = ?", wallet)
	}
	var out []*model.LaunchRecord
	return out, q.Find(&out).Error
}
