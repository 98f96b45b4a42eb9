package models

import "time"

// TransactionKind classifies the direction of a ledger entry.
type TransactionKind string

const (
	TransactionEarn   TransactionKind = "earn"
	TransactionDeduct TransactionKind = "deduct"
	TransactionBonus  TransactionKind = "bonus"
)

// ReasonCode is the closed enumeration of point-changing events.
type ReasonCode string

const (
	ReasonReportSubmitted   ReasonCode = "report_submitted"
	ReasonTaskCompleted     ReasonCode = "task_completed"
	ReasonDailyStreak       ReasonCode = "daily_streak"
	ReasonStreakMilestone   ReasonCode = "streak_milestone"
	ReasonVerificationBonus ReasonCode = "verification_bonus"
	ReasonGroupDriveBonus   ReasonCode = "group_drive_bonus"
	ReasonBadgeEarned       ReasonCode = "badge_earned"
	ReasonClanBonus         ReasonCode = "clan_bonus"
	ReasonFraudPenalty      ReasonCode = "fraud_penalty"
	ReasonAdminAdjustment   ReasonCode = "admin_adjustment"
	ReasonSignupBonus       ReasonCode = "signup_bonus"
)

const (
	ReferenceReport   = "report"
	ReferenceTask     = "task"
	ReferenceBadge    = "badge"
	ReferenceStreak   = "streak"
	ReferenceAdmin    = "admin"
	ReferenceActivity = "activity"
)

// PointTransaction is an append-only ledger entry. Rows are never updated or
// deleted; (user_id, reference_type, reference_id, reason_code) is the
// idempotency key for reference-bearing awards.
type PointTransaction struct {
	ID     string  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string  `json:"user_id" gorm:"type:uuid;index:idx_tx_user_created;not null"`
	ClanID *string `json:"clan_id,omitempty" gorm:"type:uuid;index"` // clan at time of award, snapshot

	Kind       TransactionKind `json:"kind" gorm:"type:varchar(8);not null"`
	Value      int64           `json:"value" gorm:"not null"`
	Reason     string          `json:"reason" gorm:"not null"`
	ReasonCode ReasonCode      `json:"reason_code" gorm:"type:varchar(32);index"`

	ReferenceID   string `json:"reference_id,omitempty" gorm:"index"`
	ReferenceType string `json:"reference_type,omitempty" gorm:"type:varchar(16)"`

	BalanceBefore int64 `json:"balance_before"`
	BalanceAfter  int64 `json:"balance_after"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_tx_user_created"`
}
