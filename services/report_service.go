// services/report_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"eco-mission-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportService runs the report state machine: pending → verified/rejected →
// resolved, with fraud reachable from any non-terminal status by admin action.
type ReportService struct {
	DB       *gorm.DB
	Rewards  *RewardService
	Notifier Notifier
	Queue    ValidationQueue
}

func NewReportService(db *gorm.DB, rewards *RewardService, notifier Notifier) *ReportService {
	return &ReportService{DB: db, Rewards: rewards, Notifier: notifier}
}

// SubmitReportInput carries the submission payload, already validated for
// shape by the transport layer.
type SubmitReportInput struct {
	Category    string  `json:"category"`
	SubType     string  `json:"sub_type"`
	ImageURL    string  `json:"image_url"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"address"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
}

// Submit creates a pending report, spawns a linked open task when the
// submitter has a clan, and queues the validator. The verdict arrives
// out-of-band via ApplyVerdict.
func (s *ReportService) Submit(ctx context.Context, userID string, in SubmitReportInput) (*models.Report, error) {
	if in.ImageURL == "" || in.Category == "" {
		return nil, validation("image URL and category are required")
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user", userID)
		}
		return nil, err
	}

	report := models.Report{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ClanID:      user.ClanID,
		Category:    in.Category,
		SubType:     in.SubType,
		ImageURL:    in.ImageURL,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Address:     in.Address,
		City:        in.City,
		Region:      in.Region,
		Status:      models.ReportPending,
		IsAnonymous: true,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&report).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("contrib_reports_submitted", gorm.Expr("contrib_reports_submitted + 1")).Error; err != nil {
			return err
		}

		if user.ClanID != nil {
			task := models.Task{
				ID:              uuid.NewString(),
				Category:        in.Category,
				Title:           fmt.Sprintf("%s Issue - %s", titleCase(in.Category), firstNonEmpty(in.Address, in.Region, "Unknown Location")),
				Description:     in.Description,
				ReportID:        &report.ID,
				ClanID:          user.ClanID,
				Latitude:        in.Latitude,
				Longitude:       in.Longitude,
				Address:         in.Address,
				Region:          in.Region,
				Status:          models.TaskOpen,
				MaxParticipants: 1,
				IsClanTask:      true,
				PointsReward:    PointsTaskCompleted,
				CreatedBy:       user.ID,
			}
			if err := tx.Create(&task).Error; err != nil {
				return err
			}
			report.TaskID = &task.ID
			if err := tx.Model(&models.Report{}).Where("id = ?", report.ID).
				Update("task_id", task.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if user.ClanID != nil {
		s.Notifier.Publish(ctx, ClanTopic(*user.ClanID), map[string]any{
			"event":     "new_report",
			"report_id": report.ID,
			"category":  report.Category,
			"message":   "New mission available in your area!",
		})
	}
	s.Notifier.Publish(ctx, TopicGlobalReports, map[string]any{
		"event":     "new_report",
		"report_id": report.ID,
		"category":  report.Category,
		"status":    report.Status,
		"latitude":  report.Latitude,
		"longitude": report.Longitude,
		"region":    report.Region,
	})

	if s.Queue != nil {
		s.Queue.Enqueue(ValidationJob{
			Kind:     JobReport,
			EntityID: report.ID,
			UserID:   user.ID,
			MediaRef: report.ImageURL,
			Category: report.Category,
		})
	}

	return &report, nil
}

// ApplyVerdict applies an asynchronous validator verdict. Re-delivered
// verdicts and verdicts arriving after an admin override are silent no-ops:
// the points_awarded guard is checked-and-set in a single conditional update.
func (s *ReportService) ApplyVerdict(ctx context.Context, reportID string, verdict Verdict) (*models.Report, error) {
	var report models.Report
	if err := s.DB.First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("report", reportID)
		}
		return nil, err
	}

	if models.ReportStatusTerminal(report.Status) {
		return &report, nil
	}

	now := time.Now()
	mlCols := map[string]any{
		"ml_is_valid":     verdict.Valid,
		"ml_confidence":   verdict.Confidence,
		"ml_fraud_flag":   verdict.Fraud,
		"ml_reason":       verdict.Reason,
		"ml_processed_at": now,
	}

	if verdict.Fraud {
		if err := s.DB.Model(&models.Report{}).Where("id = ?", reportID).
			Updates(mergeCols(mlCols, map[string]any{"status": models.ReportFraud})).Error; err != nil {
			return nil, err
		}
		if _, err := s.Rewards.Penalize(report.UserID, PointsFraudPenalty, "Report flagged as fraud"); err != nil {
			return nil, err
		}
		return s.Get(reportID)
	}

	if !verdict.Valid {
		// Inconclusive: record the verdict, keep the report pending for
		// community voting or admin review.
		if err := s.DB.Model(&models.Report{}).Where("id = ?", reportID).
			Updates(mlCols).Error; err != nil {
			return nil, err
		}
		return s.Get(reportID)
	}

	res := s.DB.Model(&models.Report{}).
		Where("id = ? AND points_awarded = 0 AND status IN ?", reportID,
			[]string{models.ReportPending, models.ReportUnderReview}).
		Updates(mergeCols(mlCols, map[string]any{
			"status":         models.ReportVerified,
			"points_awarded": PointsReportSubmitted,
		}))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the check-and-set: a concurrent verdict or admin action
		// already settled this report.
		return s.Get(reportID)
	}

	if _, err := s.Rewards.AwardPoints(report.UserID, PointsReportSubmitted,
		fmt.Sprintf("Report verified: %s issue", report.Category),
		models.ReasonReportSubmitted, report.ID, models.ReferenceReport); err != nil {
		return nil, err
	}

	if report.ClanID != nil {
		if err := s.bumpClanImpact(*report.ClanID, report.Category); err != nil {
			return nil, err
		}
	}

	s.Notifier.Publish(ctx, TopicGlobalReports, map[string]any{
		"event":          "report_verified",
		"report_id":      report.ID,
		"user_id":        report.UserID,
		"category":       report.Category,
		"points_awarded": PointsReportSubmitted,
	})

	log.Printf("✅ Report %s verified (+%d pts to %s)", report.ID, PointsReportSubmitted, report.UserID)
	return s.Get(reportID)
}

// CastVote records one community verification vote. Three votes resolve the
// report by majority. Every voter earns the fixed verification bonus,
// decoupled from the report's ultimate disposition.
func (s *ReportService) CastVote(ctx context.Context, reportID, voterID, vote string) (*models.Report, error) {
	if vote != models.VoteValid && vote != models.VoteInvalid {
		return nil, validation("vote must be 'valid' or 'invalid'")
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var report models.Report
		if err := tx.Preload("Verifications").First(&report, "id = ?", reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("report", reportID)
			}
			return err
		}
		if models.ReportStatusTerminal(report.Status) {
			return invalidState("report", reportID, "report is already "+report.Status)
		}
		if report.UserID == voterID {
			return forbidden("cannot verify your own report")
		}
		for _, v := range report.Verifications {
			if v.VoterID == voterID {
				return conflict(CodeAlreadyVoted, "already voted on this report")
			}
		}

		if err := tx.Create(&models.ReportVerification{
			ID:       uuid.NewString(),
			ReportID: reportID,
			VoterID:  voterID,
			Vote:     vote,
		}).Error; err != nil {
			return err
		}

		valid, invalid := 0, 0
		for _, v := range report.Verifications {
			if v.Vote == models.VoteValid {
				valid++
			} else {
				invalid++
			}
		}
		if vote == models.VoteValid {
			valid++
		} else {
			invalid++
		}

		updates := map[string]any{"verification_count": report.VerificationCount + 1}
		if report.VerificationCount+1 >= 3 {
			if valid > invalid {
				updates["status"] = models.ReportVerified
			} else {
				updates["status"] = models.ReportRejected
			}
		}
		if err := tx.Model(&models.Report{}).Where("id = ?", reportID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).Where("id = ?", voterID).
			Update("contrib_verifications_completed", gorm.Expr("contrib_verifications_completed + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	// Voter incentive, idempotent per (voter, report).
	if _, err := s.Rewards.AwardPoints(voterID, PointsVerificationDone,
		"Community verification bonus", models.ReasonVerificationBonus,
		reportID, models.ReferenceReport); err != nil {
		return nil, err
	}

	return s.Get(reportID)
}

// AdminSetStatus is the manual override channel: it can push a report to any
// status, penalizing on fraud and paying the submit reward when verifying an
// unpaid report.
func (s *ReportService) AdminSetStatus(ctx context.Context, reportID, adminID, status, reason string) (*models.Report, error) {
	switch status {
	case models.ReportPending, models.ReportUnderReview, models.ReportVerified,
		models.ReportRejected, models.ReportResolved, models.ReportFraud:
	default:
		return nil, validation("unknown report status " + status)
	}

	var report models.Report
	if err := s.DB.First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("report", reportID)
		}
		return nil, err
	}

	now := time.Now()
	if err := s.DB.Model(&models.Report{}).Where("id = ?", reportID).Updates(map[string]any{
		"status":      status,
		"resolved_at": now,
		"resolved_by": adminID,
	}).Error; err != nil {
		return nil, err
	}

	switch status {
	case models.ReportFraud:
		if _, err := s.Rewards.Penalize(report.UserID, 50, firstNonEmpty(reason, "Report manually flagged as fraud")); err != nil {
			return nil, err
		}
	case models.ReportVerified:
		res := s.DB.Model(&models.Report{}).
			Where("id = ? AND points_awarded = 0", reportID).
			Update("points_awarded", PointsReportSubmitted)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			if _, err := s.Rewards.AwardPoints(report.UserID, PointsReportSubmitted,
				"Report manually verified", models.ReasonReportSubmitted,
				report.ID, models.ReferenceReport); err != nil {
				return nil, err
			}
		}
	}

	return s.Get(reportID)
}

// Get fetches a report with its votes.
func (s *ReportService) Get(reportID string) (*models.Report, error) {
	var report models.Report
	if err := s.DB.Preload("Verifications").First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("report", reportID)
		}
		return nil, err
	}
	return &report, nil
}

// ReportFilter narrows List.
type ReportFilter struct {
	Category string
	Status   string
	Page     int
	Limit    int
}

func (s *ReportService) List(f ReportFilter) ([]models.Report, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}

	q := s.DB.Model(&models.Report{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reports []models.Report
	err := q.Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&reports).Error
	return reports, total, err
}

func (s *ReportService) Mine(userID string) ([]models.Report, error) {
	var reports []models.Report
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&reports).Error
	return reports, err
}

func (s *ReportService) bumpClanImpact(clanID, category string) error {
	field := models.ImpactField(category)
	if field == "" {
		return nil
	}
	col := "impact_" + field
	return s.DB.Model(&models.Clan{}).Where("id = ?", clanID).
		Update(col, gorm.Expr(col+" + 1")).Error
}

func mergeCols(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
