package models

import "time"

const (
	RoleLeader   = "leader"
	RoleCoLeader = "co-leader"
	RoleMember   = "member"
)

const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
)

const (
	ActivityActive    = "active"
	ActivityCompleted = "completed"
	ActivityCancelled = "cancelled"
)

const (
	ClanMinMembers = 2
	ClanMaxMembers = 500
)

// Clan is a capacity-bounded team. The members roster owns clan membership;
// User.ClanID is only a mirror maintained by the registry.
type Clan struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string `json:"name" gorm:"uniqueIndex;not null"`
	Slug        string `json:"slug" gorm:"index"`
	Description string `json:"description,omitempty"`
	Region      string `json:"region" gorm:"index;not null"`
	Area        string `json:"area,omitempty"`

	IsPrivate  bool `json:"is_private" gorm:"default:false"`
	MaxMembers int  `json:"max_members" gorm:"default:50"`

	// Aggregate score: monotonically increased by reward-engine contributions,
	// never decreased by task or report rewards.
	Points         int64 `json:"points" gorm:"default:0"`
	Ranking        int   `json:"ranking" gorm:"default:0"`
	CompletedTasks int64 `json:"completed_tasks" gorm:"default:0"`

	Members      []ClanMember      `json:"members" gorm:"foreignKey:ClanID"`
	JoinRequests []ClanJoinRequest `json:"join_requests" gorm:"foreignKey:ClanID"`
	Invites      []ClanInvite      `json:"invites" gorm:"foreignKey:ClanID"`
	Activities   []ClanActivity    `json:"activities" gorm:"foreignKey:ClanID"`

	Impact ClanImpact `json:"impact" gorm:"embedded;embeddedPrefix:impact_"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	CreatedBy string `json:"created_by" gorm:"type:uuid"`

	Timestamps
}

// ClanImpact aggregates category-specific environmental outcomes.
type ClanImpact struct {
	TreesPlanted        int64 `json:"trees_planted" gorm:"default:0"`
	GarbageCleared      int64 `json:"garbage_cleared" gorm:"default:0"`
	WaterIssuesResolved int64 `json:"water_issues_resolved" gorm:"default:0"`
}

// ClanMember is one roster entry. (clan_id, user_id) is unique; a user holds
// at most one roster entry across all clans (enforced by the registry).
type ClanMember struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid"`
	ClanID            string    `json:"clan_id" gorm:"type:uuid;index:idx_clan_member,unique;not null"`
	UserID            string    `json:"user_id" gorm:"type:uuid;index:idx_clan_member,unique;index;not null"`
	Role              string    `json:"role" gorm:"type:varchar(16);default:'member'"`
	ContributedPoints int64     `json:"contributed_points" gorm:"default:0"`
	JoinedAt          time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

type ClanJoinRequest struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	ClanID      string    `json:"clan_id" gorm:"type:uuid;index:idx_clan_request,unique;not null"`
	UserID      string    `json:"user_id" gorm:"type:uuid;index:idx_clan_request,unique;not null"`
	Name        string    `json:"name,omitempty"`
	RequestedAt time.Time `json:"requested_at" gorm:"autoCreateTime"`
}

type ClanInvite struct {
	ID       string    `json:"id" gorm:"primaryKey;type:uuid"`
	ClanID   string    `json:"clan_id" gorm:"type:uuid;index;not null"`
	UserID   string    `json:"user_id" gorm:"type:uuid;index;not null"`
	Username string    `json:"username,omitempty"`
	Status   string    `json:"status" gorm:"type:varchar(8);default:'pending'"`
	SentAt   time.Time `json:"sent_at" gorm:"autoCreateTime"`
}

// ClanActivity is an ad hoc clan-proposed event (cleanup drive, plantation...).
type ClanActivity struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	ClanID      string `json:"clan_id" gorm:"type:uuid;index;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category" gorm:"type:varchar(16);default:'other'"`
	Location    string `json:"location,omitempty"`

	ProposedByID   string    `json:"proposed_by_id" gorm:"type:uuid;not null"`
	ProposedByName string    `json:"proposed_by_name,omitempty"`
	ProposedAt     time.Time `json:"proposed_at" gorm:"autoCreateTime"`

	Participants []ActivityParticipant `json:"participants" gorm:"foreignKey:ActivityID"`

	Status        string     `json:"status" gorm:"type:varchar(16);default:'active'"`
	Date          *time.Time `json:"date,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	PointsAwarded int64      `json:"points_awarded" gorm:"default:0"`
}

type ActivityParticipant struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	ActivityID string    `json:"activity_id" gorm:"type:uuid;index:idx_activity_user,unique;not null"`
	UserID     string    `json:"user_id" gorm:"type:uuid;index:idx_activity_user,unique;not null"`
	Name       string    `json:"name,omitempty"`
	JoinedAt   time.Time `json:"joined_at" gorm:"autoCreateTime"`
}
