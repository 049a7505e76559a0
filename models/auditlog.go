package models

import "time"

// ExitAuditLog is an append-only audit trail entry for an ExitSplit.
type ExitAuditLog struct {
	ID          ID     `gorm:"type:uuid;primary_key"`
	ExitSplitID ID     `gorm:"type:uuid;not null;index"`
	Action      string `gorm:"not null"`
	OldStatus   string
	NewStatus   string
	Details     []byte // json
	PerformedBy string
	PerformedAt time.Time `gorm:"not null"`
}

func (ExitAuditLog) TableName() string { return "exit_audit_logs" }

// Common audit actions recorded against an ExitSplit's lifecycle.
const (
	AuditInitiated        = "initiated"
	AuditFarmerPaid       = "farmer_paid"
	AuditPoolerPaid       = "pooler_paid"
	AuditPlatformPaid     = "platform_paid"
	AuditFarmerRetried    = "farmer_retried"
	AuditPoolerRetried    = "pooler_retried"
	AuditPlatformRetried  = "platform_retried"
	AuditCompleted        = "completed"
	AuditFailed           = "failed"
)
