package model

import "time"

// LaunchRecord is the persisted history of one launch session.
type LaunchRecord struct {
	SessionID       string `json:"session_id" gorm:"primaryKey;size:128"`
	WalletAddress   string `json:"wallet_address" gorm:"index;size:42"`
	DelegatedUserID string `json:"delegated_user_id,omitempty" gorm:"size:128"`
	ChainID         int64  `json:"chain_id"`
	ProfileName     string `json:"profile_name" gorm:"size:128"`
	Status          string `json:"status" gorm:"size:32"`
	Detail          string `json:"detail,omitempty"`
	Error           string `json:"error,omitempty"`
	InstanceURL     string `json:"instance_url,omitempty"`
	VerifyURL       string `json:"verify_url,omitempty"`
	EigenAppID      string `json:"eigen_app_id,omitempty" gorm:"size:128"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LaunchRecord) TableName() string {
	return "frontdoor_launches"
}

// ActiveLaunch is the cached pointer used to resume polling.
type ActiveLaunch struct {
	SessionID     string    `json:"session_id"`
	WalletAddress string    `json:"wallet_address"`
	ProfileName   string    `json:"profile_name"`
	StartedAt     time.Time `json:"started_at"`
}
