// services/clan_service.go
package services

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"time"

	"eco-mission-system/models"
	"eco-mission-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ClanService owns the clan roster and everything hanging off it: join
// requests, invites, activities and the leaderboard. Capacity and membership
// writes run under a per-clan lock.
type ClanService struct {
	DB       *gorm.DB
	Rewards  *RewardService
	Notifier Notifier

	locks *utils.KeyMutex
}

func NewClanService(db *gorm.DB, rewards *RewardService, notifier Notifier) *ClanService {
	return &ClanService{DB: db, Rewards: rewards, Notifier: notifier, locks: utils.NewKeyMutex()}
}

func clanLockKey(clanID string) string { return "clan:" + clanID }

// CreateClanInput carries clan creation.
type CreateClanInput struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Region          string   `json:"region"`
	Area            string   `json:"area"`
	IsPrivate       bool     `json:"is_private"`
	MaxMembers      int      `json:"max_members"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	InviteUsernames []string `json:"invite_usernames"`
}

// Create makes a clan with the creator as its sole leader. Optional username
// invites go out in the same call; unknown usernames are skipped.
func (s *ClanService) Create(ctx context.Context, creatorID string, in CreateClanInput) (*models.Clan, error) {
	if in.Name == "" || in.Region == "" {
		return nil, validation("name and region are required")
	}
	if in.MaxMembers == 0 {
		in.MaxMembers = 50
	}
	if in.MaxMembers < models.ClanMinMembers {
		in.MaxMembers = models.ClanMinMembers
	}
	if in.MaxMembers > models.ClanMaxMembers {
		in.MaxMembers = models.ClanMaxMembers
	}

	clan := models.Clan{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Slug:        slug.Make(in.Name),
		Description: in.Description,
		Region:      in.Region,
		Area:        in.Area,
		IsPrivate:   in.IsPrivate,
		MaxMembers:  in.MaxMembers,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		CreatedBy:   creatorID,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var creator models.User
		if err := tx.First(&creator, "id = ?", creatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user", creatorID)
			}
			return err
		}

		var inClan int64
		if err := tx.Model(&models.ClanMember{}).Where("user_id = ?", creatorID).Count(&inClan).Error; err != nil {
			return err
		}
		if inClan > 0 {
			return conflict(CodeAlreadyMember, "already in a clan")
		}

		var nameTaken int64
		if err := tx.Model(&models.Clan{}).Where("name = ?", in.Name).Count(&nameTaken).Error; err != nil {
			return err
		}
		if nameTaken > 0 {
			return conflict(CodeNameTaken, "clan name already taken")
		}

		if err := tx.Create(&clan).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.ClanMember{
			ID:     uuid.NewString(),
			ClanID: clan.ID,
			UserID: creatorID,
			Role:   models.RoleLeader,
		}).Error; err != nil {
			return err
		}
		if err := s.setUserClan(tx, creatorID, &clan.ID, clan.Name); err != nil {
			return err
		}

		for _, username := range in.InviteUsernames {
			var invitee models.User
			if err := tx.First(&invitee, "name = ?", username).Error; err != nil {
				continue
			}
			if invitee.ID == creatorID || invitee.ClanID != nil {
				continue
			}
			if err := tx.Create(&models.ClanInvite{
				ID:       uuid.NewString(),
				ClanID:   clan.ID,
				UserID:   invitee.ID,
				Username: invitee.Name,
				Status:   models.InvitePending,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🏰 Clan %q created by %s", clan.Name, creatorID)
	return s.Get(clan.ID)
}

// Join adds the user to a public clan, or files a join request for a private
// one. The returned bool is true when a request was filed instead of a
// membership. Joining while in another clan ends that membership first; only
// rejoining the same clan is a conflict. Capacity is re-checked at write time
// under the clan lock.
func (s *ClanService) Join(ctx context.Context, clanID, userID string) (*models.Clan, bool, error) {
	s.locks.Lock(clanLockKey(clanID))
	defer s.locks.Unlock(clanLockKey(clanID))

	requested := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var clan models.Clan
		if err := tx.First(&clan, "id = ?", clanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("clan", clanID)
			}
			return err
		}
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user", userID)
			}
			return err
		}

		var mine models.ClanMember
		if err := tx.First(&mine, "clan_id = ? AND user_id = ?", clanID, userID).Error; err == nil {
			return conflict(CodeAlreadyMember, "already in this clan")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if clan.IsPrivate {
			var pending int64
			if err := tx.Model(&models.ClanJoinRequest{}).
				Where("clan_id = ? AND user_id = ?", clanID, userID).Count(&pending).Error; err != nil {
				return err
			}
			if pending > 0 {
				return conflict(CodeRequestPending, "join request already pending")
			}
			var invited int64
			if err := tx.Model(&models.ClanInvite{}).
				Where("clan_id = ? AND user_id = ? AND status = ?", clanID, userID, models.InvitePending).
				Count(&invited).Error; err != nil {
				return err
			}
			if invited > 0 {
				return conflict(CodeInvitePending, "respond to your pending invite instead")
			}
			requested = true
			return tx.Create(&models.ClanJoinRequest{
				ID:     uuid.NewString(),
				ClanID: clanID,
				UserID: userID,
				Name:   user.Name,
			}).Error
		}

		if err := s.leavePrior(tx, userID, clanID); err != nil {
			return err
		}
		if err := s.checkCapacity(tx, &clan); err != nil {
			return err
		}
		return s.addMember(tx, &clan, userID, user.Name)
	})
	if err != nil {
		return nil, false, err
	}

	if !requested {
		s.Notifier.Publish(ctx, ClanTopic(clanID), map[string]any{
			"event":   "member_joined",
			"user_id": userID,
		})
	}
	clan, err := s.Get(clanID)
	return clan, requested, err
}

// ApproveRequest turns a pending join request into a membership.
func (s *ClanService) ApproveRequest(ctx context.Context, clanID, approverID, requestUserID string) (*models.Clan, error) {
	s.locks.Lock(clanLockKey(clanID))
	defer s.locks.Unlock(clanLockKey(clanID))

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.requireRank(tx, clanID, approverID); err != nil {
			return err
		}

		var req models.ClanJoinRequest
		if err := tx.First(&req, "clan_id = ? AND user_id = ?", clanID, requestUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("join request", requestUserID)
			}
			return err
		}

		var clan models.Clan
		if err := tx.First(&clan, "id = ?", clanID).Error; err != nil {
			return err
		}
		// The requester may have joined elsewhere while waiting.
		if err := s.leavePrior(tx, requestUserID, clanID); err != nil {
			return err
		}
		if err := s.checkCapacity(tx, &clan); err != nil {
			return err
		}

		if err := tx.Delete(&req).Error; err != nil {
			return err
		}
		return s.addMember(tx, &clan, requestUserID, req.Name)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(clanID)
}

// RejectRequest discards a pending join request.
func (s *ClanService) RejectRequest(ctx context.Context, clanID, approverID, requestUserID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.requireRank(tx, clanID, approverID); err != nil {
			return err
		}
		res := tx.Delete(&models.ClanJoinRequest{}, "clan_id = ? AND user_id = ?", clanID, requestUserID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("join request", requestUserID)
		}
		return nil
	})
}

// Invite sends a membership invite to a user by id.
func (s *ClanService) Invite(ctx context.Context, clanID, inviterID, inviteeID string) (*models.ClanInvite, error) {
	var invite models.ClanInvite
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.requireRank(tx, clanID, inviterID); err != nil {
			return err
		}

		var invitee models.User
		if err := tx.First(&invitee, "id = ?", inviteeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user", inviteeID)
			}
			return err
		}
		if invitee.ClanID != nil && *invitee.ClanID == clanID {
			return conflict(CodeAlreadyMember, "user already in this clan")
		}

		var pending int64
		if err := tx.Model(&models.ClanInvite{}).
			Where("clan_id = ? AND user_id = ? AND status = ?", clanID, inviteeID, models.InvitePending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return conflict(CodeInvitePending, "invite already pending")
		}

		invite = models.ClanInvite{
			ID:       uuid.NewString(),
			ClanID:   clanID,
			UserID:   inviteeID,
			Username: invitee.Name,
			Status:   models.InvitePending,
		}
		return tx.Create(&invite).Error
	})
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

// RespondInvite accepts or declines a pending invite. Accepting a full clan
// declines the invite and reports ClanFull.
func (s *ClanService) RespondInvite(ctx context.Context, inviteID, userID string, accept bool) (*models.Clan, error) {
	var invite models.ClanInvite
	if err := s.DB.First(&invite, "id = ?", inviteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invite", inviteID)
		}
		return nil, err
	}
	if invite.UserID != userID {
		return nil, forbidden("invite belongs to another user")
	}
	if invite.Status != models.InvitePending {
		return nil, conflict(CodeAlreadyHandled, "invite already "+invite.Status)
	}

	if !accept {
		if err := s.DB.Model(&models.ClanInvite{}).Where("id = ?", inviteID).
			Update("status", models.InviteDeclined).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}

	s.locks.Lock(clanLockKey(invite.ClanID))
	defer s.locks.Unlock(clanLockKey(invite.ClanID))

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var clan models.Clan
		if err := tx.First(&clan, "id = ?", invite.ClanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("clan", invite.ClanID)
			}
			return err
		}
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		if err := s.leavePrior(tx, userID, invite.ClanID); err != nil {
			return err
		}

		if err := s.checkCapacity(tx, &clan); err != nil {
			tx.Model(&models.ClanInvite{}).Where("id = ?", inviteID).
				Update("status", models.InviteDeclined)
			return err
		}

		if err := tx.Model(&models.ClanInvite{}).Where("id = ?", inviteID).
			Update("status", models.InviteAccepted).Error; err != nil {
			return err
		}
		return s.addMember(tx, &clan, userID, user.Name)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(invite.ClanID)
}

// Leave removes the user's membership. A departing sole leader hands off to
// the longest-tenured co-leader, falling back to the longest-tenured member;
// leadership never blocks leaving. An emptied clan is deleted.
func (s *ClanService) Leave(ctx context.Context, userID string) error {
	var membership models.ClanMember
	if err := s.DB.First(&membership, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("clan membership", userID)
		}
		return err
	}
	clanID := membership.ClanID

	s.locks.Lock(clanLockKey(clanID))
	defer s.locks.Unlock(clanLockKey(clanID))

	return s.DB.Transaction(func(tx *gorm.DB) error {
		return s.removeMembership(tx, &membership)
	})
}

// removeMembership deletes a roster entry, clears the user mirror, deletes an
// emptied clan, and promotes a successor when the last leader walks out.
func (s *ClanService) removeMembership(tx *gorm.DB, membership *models.ClanMember) error {
	clanID := membership.ClanID

	if err := tx.Delete(&models.ClanMember{}, "id = ?", membership.ID).Error; err != nil {
		return err
	}
	if err := s.setUserClan(tx, membership.UserID, nil, ""); err != nil {
		return err
	}

	var remaining []models.ClanMember
	if err := tx.Where("clan_id = ?", clanID).Order("joined_at ASC").Find(&remaining).Error; err != nil {
		return err
	}
	if len(remaining) == 0 {
		log.Printf("🏚️ Clan %s emptied, removing", clanID)
		if err := tx.Delete(&models.ClanJoinRequest{}, "clan_id = ?", clanID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.ClanInvite{}, "clan_id = ?", clanID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Clan{}, "id = ?", clanID).Error
	}

	if membership.Role != models.RoleLeader {
		return nil
	}
	for _, m := range remaining {
		if m.Role == models.RoleLeader {
			return nil
		}
	}

	// Succession: longest-tenured co-leader first, then longest-tenured
	// member.
	successor := remaining[0]
	for _, m := range remaining {
		if m.Role == models.RoleCoLeader {
			successor = m
			break
		}
	}
	log.Printf("👑 Clan %s leadership passed to %s", clanID, successor.UserID)
	return tx.Model(&models.ClanMember{}).Where("id = ?", successor.ID).
		Update("role", models.RoleLeader).Error
}

// leavePrior enforces one clan per user: joining the clan you are already in
// is a conflict, joining a different one quietly ends the old membership.
func (s *ClanService) leavePrior(tx *gorm.DB, userID, targetClanID string) error {
	var existing models.ClanMember
	err := tx.First(&existing, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ClanID == targetClanID {
		return conflict(CodeAlreadyMember, "already in this clan")
	}
	return s.removeMembership(tx, &existing)
}

// Kick removes another member. Leaders can kick anyone below them;
// co-leaders can kick members only.
func (s *ClanService) Kick(ctx context.Context, clanID, actorID, targetID string) error {
	if actorID == targetID {
		return validation("use leave to exit your own clan")
	}

	s.locks.Lock(clanLockKey(clanID))
	defer s.locks.Unlock(clanLockKey(clanID))

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var actor models.ClanMember
		if err := tx.First(&actor, "clan_id = ? AND user_id = ?", clanID, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return forbidden("not a member of this clan")
			}
			return err
		}
		var target models.ClanMember
		if err := tx.First(&target, "clan_id = ? AND user_id = ?", clanID, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("clan member", targetID)
			}
			return err
		}

		switch actor.Role {
		case models.RoleLeader:
			if target.Role == models.RoleLeader {
				return forbidden("cannot kick a leader")
			}
		case models.RoleCoLeader:
			if target.Role != models.RoleMember {
				return forbidden("co-leaders can only kick members")
			}
		default:
			return forbidden("only leaders and co-leaders can kick")
		}

		if err := tx.Delete(&models.ClanMember{}, "id = ?", target.ID).Error; err != nil {
			return err
		}
		return s.setUserClan(tx, targetID, nil, "")
	})
}

// SetMemberRole promotes or demotes a member. Leader only.
func (s *ClanService) SetMemberRole(ctx context.Context, clanID, actorID, targetID, role string) error {
	if role != models.RoleCoLeader && role != models.RoleMember {
		return validation("role must be co-leader or member")
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var actor models.ClanMember
		if err := tx.First(&actor, "clan_id = ? AND user_id = ?", clanID, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return forbidden("not a member of this clan")
			}
			return err
		}
		if actor.Role != models.RoleLeader {
			return forbidden("only the leader can change roles")
		}
		res := tx.Model(&models.ClanMember{}).
			Where("clan_id = ? AND user_id = ? AND role <> ?", clanID, targetID, models.RoleLeader).
			Update("role", role)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("clan member", targetID)
		}
		return nil
	})
}

// ProposeActivityInput carries an activity proposal.
type ProposeActivityInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Location    string     `json:"location"`
	Date        *time.Time `json:"date"`
}

// ProposeActivity creates an active group drive; the proposer is its first
// participant.
func (s *ClanService) ProposeActivity(ctx context.Context, clanID, userID string, in ProposeActivityInput) (*models.ClanActivity, error) {
	if in.Title == "" {
		return nil, validation("title is required")
	}

	var activity models.ClanActivity
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var member models.ClanMember
		if err := tx.First(&member, "clan_id = ? AND user_id = ?", clanID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return forbidden("not a member of this clan")
			}
			return err
		}
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		activity = models.ClanActivity{
			ID:             uuid.NewString(),
			ClanID:         clanID,
			Title:          in.Title,
			Description:    in.Description,
			Category:       firstNonEmpty(in.Category, models.CategoryOther),
			Location:       in.Location,
			ProposedByID:   userID,
			ProposedByName: user.Name,
			Status:         models.ActivityActive,
			Date:           in.Date,
		}
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}
		return tx.Create(&models.ActivityParticipant{
			ID:         uuid.NewString(),
			ActivityID: activity.ID,
			UserID:     userID,
			Name:       user.Name,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Publish(ctx, ClanTopic(clanID), map[string]any{
		"event":       "activity_proposed",
		"activity_id": activity.ID,
		"title":       activity.Title,
	})
	return &activity, nil
}

// JoinActivity signs a clan member up for an active group drive.
func (s *ClanService) JoinActivity(ctx context.Context, activityID, userID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var activity models.ClanActivity
		if err := tx.First(&activity, "id = ?", activityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("activity", activityID)
			}
			return err
		}
		if activity.Status != models.ActivityActive {
			return invalidState("activity", activityID, "activity is "+activity.Status)
		}

		var member models.ClanMember
		if err := tx.First(&member, "clan_id = ? AND user_id = ?", activity.ClanID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return forbidden("not a member of this clan")
			}
			return err
		}

		var already int64
		if err := tx.Model(&models.ActivityParticipant{}).
			Where("activity_id = ? AND user_id = ?", activityID, userID).Count(&already).Error; err != nil {
			return err
		}
		if already > 0 {
			return conflict(CodeAlreadyJoined, "already joined this activity")
		}

		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		return tx.Create(&models.ActivityParticipant{
			ID:         uuid.NewString(),
			ActivityID: activityID,
			UserID:     userID,
			Name:       user.Name,
		}).Error
	})
}

// LeaveActivity withdraws from an activity that has not completed yet.
func (s *ClanService) LeaveActivity(ctx context.Context, activityID, userID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var activity models.ClanActivity
		if err := tx.First(&activity, "id = ?", activityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("activity", activityID)
			}
			return err
		}
		if activity.Status != models.ActivityActive {
			return invalidState("activity", activityID, "activity is "+activity.Status)
		}
		res := tx.Delete(&models.ActivityParticipant{}, "activity_id = ? AND user_id = ?", activityID, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("activity participant", userID)
		}
		return nil
	})
}

// CompleteActivity settles a group drive: the clan earns a base bonus plus a
// per-head bonus, every participant earns the group drive bonus, and the
// clan's impact counter for the category ticks. The proposer or clan brass
// may settle. The active -> completed edge is checked-and-set, so a double
// complete pays nothing twice.
func (s *ClanService) CompleteActivity(ctx context.Context, activityID, actorID string) (*models.ClanActivity, error) {
	var activity models.ClanActivity
	if err := s.DB.Preload("Participants").First(&activity, "id = ?", activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("activity", activityID)
		}
		return nil, err
	}

	if actorID != activity.ProposedByID {
		if err := s.requireRank(s.DB, activity.ClanID, actorID); err != nil {
			return nil, err
		}
	}

	participants := len(activity.Participants)
	clanBonus := int64(PointsActivityClanBase + PointsActivityPerParticipant*participants)
	now := time.Now()

	res := s.DB.Model(&models.ClanActivity{}).
		Where("id = ? AND status = ?", activityID, models.ActivityActive).
		Updates(map[string]any{
			"status":         models.ActivityCompleted,
			"completed_at":   now,
			"points_awarded": clanBonus,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, invalidState("activity", activityID, "activity is already settled")
	}

	if err := s.DB.Model(&models.Clan{}).Where("id = ?", activity.ClanID).
		Update("points", gorm.Expr("points + ?", clanBonus)).Error; err != nil {
		return nil, err
	}
	if field := models.ImpactField(activity.Category); field != "" {
		col := "impact_" + field
		if err := s.DB.Model(&models.Clan{}).Where("id = ?", activity.ClanID).
			Update(col, gorm.Expr(col+" + 1")).Error; err != nil {
			return nil, err
		}
	}

	for _, p := range activity.Participants {
		if _, err := s.Rewards.AwardPoints(p.UserID, PointsActivityParticipant,
			"Group drive: "+activity.Title, models.ReasonGroupDriveBonus,
			activity.ID, models.ReferenceActivity); err != nil {
			log.Printf("⚠️ Activity %s: bonus to %s failed: %v", activityID, p.UserID, err)
		}
	}

	s.Notifier.Publish(ctx, ClanTopic(activity.ClanID), map[string]any{
		"event":        "activity_completed",
		"activity_id":  activityID,
		"clan_bonus":   clanBonus,
		"participants": participants,
	})
	log.Printf("🎉 Activity %s completed: clan +%d, %d participants paid", activityID, clanBonus, participants)

	done, err := s.GetActivity(activityID)
	return done, err
}

// CancelActivity drops an active group drive without payout.
func (s *ClanService) CancelActivity(ctx context.Context, activityID, actorID string) error {
	var activity models.ClanActivity
	if err := s.DB.First(&activity, "id = ?", activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("activity", activityID)
		}
		return err
	}
	if actorID != activity.ProposedByID {
		if err := s.requireRank(s.DB, activity.ClanID, actorID); err != nil {
			return err
		}
	}
	res := s.DB.Model(&models.ClanActivity{}).
		Where("id = ? AND status = ?", activityID, models.ActivityActive).
		Update("status", models.ActivityCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return invalidState("activity", activityID, "activity is already settled")
	}
	return nil
}

func (s *ClanService) GetActivity(activityID string) (*models.ClanActivity, error) {
	var activity models.ClanActivity
	if err := s.DB.Preload("Participants").First(&activity, "id = ?", activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("activity", activityID)
		}
		return nil, err
	}
	return &activity, nil
}

// Get fetches a clan with its roster and live ranking.
func (s *ClanService) Get(clanID string) (*models.Clan, error) {
	var clan models.Clan
	err := s.DB.Preload("Members").Preload("JoinRequests").Preload("Activities.Participants").
		First(&clan, "id = ?", clanID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("clan", clanID)
		}
		return nil, err
	}

	var ahead int64
	if err := s.DB.Model(&models.Clan{}).Where("points > ?", clan.Points).Count(&ahead).Error; err != nil {
		return nil, err
	}
	clan.Ranking = int(ahead) + 1
	return &clan, nil
}

// MyClan resolves the user's clan, or a not-found error when unaffiliated.
func (s *ClanService) MyClan(userID string) (*models.Clan, error) {
	var membership models.ClanMember
	if err := s.DB.First(&membership, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("clan membership", userID)
		}
		return nil, err
	}
	return s.Get(membership.ClanID)
}

// ClanFilter narrows List.
type ClanFilter struct {
	Region string
	Page   int
	Limit  int
}

func (s *ClanService) List(f ClanFilter) ([]models.Clan, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}

	q := s.DB.Model(&models.Clan{})
	if f.Region != "" {
		q = q.Where("region = ?", f.Region)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var clans []models.Clan
	err := q.Preload("Members").Order("points DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&clans).Error
	return clans, total, err
}

// Leaderboard returns the top clans by points with rankings filled in.
func (s *ClanService) Leaderboard(limit int) ([]models.Clan, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var clans []models.Clan
	if err := s.DB.Order("points DESC").Limit(limit).Find(&clans).Error; err != nil {
		return nil, err
	}
	for i := range clans {
		clans[i].Ranking = i + 1
	}
	return clans, nil
}

// Nearby returns clans within radiusKm of the point, closest first.
func (s *ClanService) Nearby(lat, lng, radiusKm float64, limit int) ([]models.Clan, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var clans []models.Clan
	if err := s.DB.Find(&clans).Error; err != nil {
		return nil, err
	}

	type scored struct {
		clan models.Clan
		dist float64
	}
	var within []scored
	for _, c := range clans {
		d := haversineKm(lat, lng, c.Latitude, c.Longitude)
		if d <= radiusKm {
			within = append(within, scored{c, d})
		}
	}
	sort.Slice(within, func(i, j int) bool { return within[i].dist < within[j].dist })

	out := make([]models.Clan, 0, limit)
	for _, s := range within {
		out = append(out, s.clan)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// RefreshRankings recomputes the stored ranking column, points descending.
// Run from the scheduler, not the request path.
func (s *ClanService) RefreshRankings() error {
	var ids []string
	if err := s.DB.Model(&models.Clan{}).Order("points DESC").Pluck("id", &ids).Error; err != nil {
		return err
	}
	for i, id := range ids {
		if err := s.DB.Model(&models.Clan{}).Where("id = ?", id).
			Update("ranking", i+1).Error; err != nil {
			return err
		}
	}
	return nil
}

// requireRank rejects callers who are not a leader or co-leader of the clan.
func (s *ClanService) requireRank(tx *gorm.DB, clanID, userID string) error {
	var member models.ClanMember
	if err := tx.First(&member, "clan_id = ? AND user_id = ?", clanID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return forbidden("not a member of this clan")
		}
		return err
	}
	if member.Role != models.RoleLeader && member.Role != models.RoleCoLeader {
		return forbidden("requires leader or co-leader")
	}
	return nil
}

func (s *ClanService) checkCapacity(tx *gorm.DB, clan *models.Clan) error {
	var count int64
	if err := tx.Model(&models.ClanMember{}).Where("clan_id = ?", clan.ID).Count(&count).Error; err != nil {
		return err
	}
	if int(count) >= clan.MaxMembers {
		return conflict(CodeClanFull, "clan is full")
	}
	return nil
}

func (s *ClanService) addMember(tx *gorm.DB, clan *models.Clan, userID, name string) error {
	if err := tx.Create(&models.ClanMember{
		ID:     uuid.NewString(),
		ClanID: clan.ID,
		UserID: userID,
		Role:   models.RoleMember,
	}).Error; err != nil {
		return err
	}
	// Stale requests elsewhere are moot once the user has a clan.
	if err := tx.Delete(&models.ClanJoinRequest{}, "user_id = ?", userID).Error; err != nil {
		return err
	}
	return s.setUserClan(tx, userID, &clan.ID, clan.Name)
}

// setUserClan maintains the weak reference on the user row.
func (s *ClanService) setUserClan(tx *gorm.DB, userID string, clanID *string, clanName string) error {
	return tx.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"clan_id": clanID, "clan_name": clanName}).Error
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
