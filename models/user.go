package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleNGO      = "ngo"
	RoleVerifier = "verifier"
)

// User is the account aggregate: balance, streak, badges, fraud state.
// Balance and level are only ever mutated through the reward engine so the
// ledger stays the source of truth.
type User struct {
	ID    string  `json:"id" gorm:"primaryKey;type:uuid"`
	Name  string  `json:"name" gorm:"not null"`
	Email *string `json:"email,omitempty" gorm:"uniqueIndex"`
	Phone *string `json:"phone,omitempty" gorm:"uniqueIndex"`
	Role  string  `json:"role" gorm:"type:varchar(16);default:'user'"`

	// Clan membership is owned by the clan roster; these are weak references
	// kept in sync by the clan registry.
	ClanID   *string `json:"clan_id,omitempty" gorm:"type:uuid;index"`
	ClanName string  `json:"clan_name,omitempty"`
	Region   string  `json:"region,omitempty"`

	TotalPoints    int64      `json:"total_points" gorm:"default:0"`
	Level          int        `json:"level" gorm:"default:1"` // cached, recomputed from TotalPoints on every award
	Streak         int        `json:"streak" gorm:"default:0"`
	LastActionDate *time.Time `json:"last_action_date,omitempty"`
	LastLogin      *time.Time `json:"last_login,omitempty"`

	Badges []Badge `json:"badges" gorm:"foreignKey:UserID"`

	Contributions Contributions `json:"contributions" gorm:"embedded;embeddedPrefix:contrib_"`

	FraudFlags int  `json:"fraud_flags" gorm:"default:0"`
	IsBanned   bool `json:"is_banned" gorm:"default:false"`

	ProfileImage string `json:"profile_image,omitempty"`

	Timestamps
}

// Contributions are per-user impact counters, bumped by the pipelines.
type Contributions struct {
	TreesPlanted           int64 `json:"trees_planted" gorm:"default:0"`
	GarbageCleared         int64 `json:"garbage_cleared" gorm:"default:0"`
	WaterIssuesResolved    int64 `json:"water_issues_resolved" gorm:"default:0"`
	ReportsSubmitted       int64 `json:"reports_submitted" gorm:"default:0"`
	TasksCompleted         int64 `json:"tasks_completed" gorm:"default:0"`
	VerificationsCompleted int64 `json:"verifications_completed" gorm:"default:0"`
}

// Badge is an earned badge instance. (user_id, name) is unique: awarding an
// already-held badge is a no-op, which makes badge evaluation safe to re-run.
type Badge struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string    `json:"user_id" gorm:"index:idx_user_badge_name,unique;not null"`
	Name        string    `json:"name" gorm:"index:idx_user_badge_name,unique;not null"`
	Icon        string    `json:"icon,omitempty"`
	Description string    `json:"description,omitempty"`
	EarnedAt    time.Time `json:"earned_at" gorm:"autoCreateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
