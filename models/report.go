package models

import "time"

const (
	CategoryTree    = "tree"
	CategoryGarbage = "garbage"
	CategoryWater   = "water"
	CategoryOther   = "other"
)

// Report statuses. Transitions are monotonic except for explicit admin
// overrides; fraud is reachable from any non-terminal status.
const (
	ReportPending     = "pending"
	ReportUnderReview = "under_review"
	ReportVerified    = "verified"
	ReportRejected    = "rejected"
	ReportResolved    = "resolved"
	ReportFraud       = "fraud"
)

// MLValidation is the validator verdict snapshot, set once when the verdict
// arrives and kept for audit.
type MLValidation struct {
	IsValid     bool       `json:"is_valid"`
	Confidence  float64    `json:"confidence"`
	FraudFlag   bool       `json:"fraud_flag"`
	Reason      string     `json:"reason,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

type Report struct {
	ID     string  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string  `json:"user_id" gorm:"type:uuid;index;not null"`
	ClanID *string `json:"clan_id,omitempty" gorm:"type:uuid;index"`

	Category    string `json:"category" gorm:"type:varchar(16);index;not null"`
	SubType     string `json:"sub_type,omitempty"`
	ImageURL    string `json:"image_url" gorm:"not null"`
	Description string `json:"description,omitempty"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	Region    string  `json:"region,omitempty"`

	Status       string       `json:"status" gorm:"type:varchar(16);index;default:'pending'"`
	MLValidation MLValidation `json:"ml_validation" gorm:"embedded;embeddedPrefix:ml_"`

	// PointsAwarded stays 0 until the submit reward is paid, then is fixed.
	// The 0 -> non-zero transition is the payment idempotency guard.
	PointsAwarded int64 `json:"points_awarded" gorm:"default:0"`

	Verifications     []ReportVerification `json:"verifications" gorm:"foreignKey:ReportID"`
	VerificationCount int                  `json:"verification_count" gorm:"default:0"`

	IsAnonymous bool `json:"is_anonymous" gorm:"default:true"`

	TaskID     *string    `json:"task_id,omitempty" gorm:"type:uuid"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *string    `json:"resolved_by,omitempty" gorm:"type:uuid"`

	Timestamps
}

const (
	VoteValid   = "valid"
	VoteInvalid = "invalid"
)

// ReportVerification is one community vote. (report_id, voter_id) is unique.
type ReportVerification struct {
	ID       string    `json:"id" gorm:"primaryKey;type:uuid"`
	ReportID string    `json:"report_id" gorm:"type:uuid;index:idx_report_voter,unique;not null"`
	VoterID  string    `json:"voter_id" gorm:"type:uuid;index:idx_report_voter,unique;not null"`
	Vote     string    `json:"vote" gorm:"type:varchar(8);not null"`
	VotedAt  time.Time `json:"voted_at" gorm:"autoCreateTime"`
}

// Terminal reports only accept the resolvedAt/resolvedBy audit fields.
func ReportStatusTerminal(status string) bool {
	switch status {
	case ReportVerified, ReportRejected, ReportResolved, ReportFraud:
		return true
	}
	return false
}

// ImpactField maps a report category to the clan impact counter it feeds,
// or "" when the category has no counter.
func ImpactField(category string) string {
	switch category {
	case CategoryTree:
		return "trees_planted"
	case CategoryGarbage:
		return "garbage_cleared"
	case CategoryWater:
		return "water_issues_resolved"
	}
	return ""
}
