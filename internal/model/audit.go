package model

import (
	"time"
)

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditLog is one call to the companion API. Bodies are stored after
// secrets have been masked.
type AuditLog struct {
	ID              string `json:"id" gorm:"primaryKey;size:64"`
	SessionID       string `json:"session_id" gorm:"index:idx_audit_session;size:64"`
	Wallet          string `json:"wallet,omitempty" gorm:"size:42"`
	Stage           string `json:"stage,omitempty" gorm:"index;size:32"`
	LaunchSessionID string `json:"launch_session_id,omitempty" gorm:"size:64"`

	Route     string `json:"route"`
	Status    int    `json:"status"`
	LatencyMs int64  `json:"latency_ms"`

	ErrorCode    string `json:"error_code,omitempty" gorm:"size:48"`
	ErrorMessage string `json:"error_message,omitempty"`

	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_audit_session"`
}

func (AuditLog) TableName() string {
	return "frontdoor_audit_logs"
}

// AuditQuery selects audit entries. Empty fields match everything.
type AuditQuery struct {
	SessionID string
	Stage     string
	Limit     int
	From      *time.Time
	To        *time.Time
}

// Normalize clamps Limit into (0, MaxAuditLimit].
func (q AuditQuery) Normalize() AuditQuery {
	if q.Limit <= 0 || q.Limit > MaxAuditLimit {
		q.Limit = DefaultAuditLimit
	}
	return q
}

func (q AuditQuery) Matches(e *AuditLog) bool {
	switch {
	case e == nil:
		return false
	case q.SessionID != "" && e.SessionID != q.SessionID:
		return false
	case q.Stage != "" && e.Stage != q.Stage:
		return false
	case q.From != nil && e.CreatedAt.Before(*q.From):
		return false
	case q.To != nil && e.CreatedAt.After(*q.To):
		return false
	}
	return true
}
