// Package moderation handles user reports: intake with a priority derived
// from the category, the moderator workflow and the bans it may impose.
package moderation

import (
	"context"
	"errors"
	"strings"
	"time"

	"rando/backend/internal/analysis"
	"rando/backend/internal/config"
	"rando/backend/internal/errorx"
	"rando/backend/internal/metrics"
	"rando/backend/internal/models"
	"rando/backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultCategory = "other"
	DefaultPageSize = 50
)

// AlertSender pages moderators about urgent reports.
type AlertSender interface {
	SendReportAlert(ctx context.Context, r *models.Report) error
}

// Service handles the business logic for reports.
type Service struct {
	Storage storage.Storage
	Alerts  AlertSender
	Clock   clockwork.Clock
}

// NewService creates a new moderation service. alerts may be nil.
func NewService(s storage.Storage, alerts AlertSender, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{Storage: s, Alerts: alerts, Clock: clock}
}

func (s *Service) now() time.Time { return s.Clock.Now().UTC() }

// Submit stores a new pending report. Priority comes from the category
// weight; high priority reports are forwarded to the moderators' chat.
func (s *Service) Submit(ctx context.Context, r *models.Report) (*models.Report, error) {
	if r.ReporterID == "" || r.ReportedUserID == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "reporter and reported user are required")
	}
	if r.ReporterID == r.ReportedUserID {
		return nil, errorx.New(errorx.CodeInvalidParam, "cannot report yourself")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "reason is required")
	}
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	if _, ok := config.ReportCategoryWeights[r.Category]; !ok {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "unknown report category %q", r.Category)
	}

	r.ID = ""
	r.Status = models.ReportPending
	r.Priority = analysis.GetWeight(r.Category)
	r.ReviewedBy, r.ReviewNotes, r.ActionTaken, r.ResolvedAt = nil, nil, nil, nil
	r.CreatedAt = s.now()
	if err := s.Storage.CreateReport(ctx, r); err != nil {
		return nil, err
	}

	metrics.ReportsSubmitted.WithLabelValues(r.Category).Inc()
	zap.L().Info("report submitted",
		zap.String("report_id", r.ID),
		zap.String("reported_user_id", r.ReportedUserID),
		zap.String("category", r.Category),
		zap.Int("priority", r.Priority))

	if s.Alerts != nil && analysis.NeedsAlert(r.Priority) {
		if err := s.Alerts.SendReportAlert(ctx, r); err != nil {
			zap.L().Warn("failed to alert moderators", zap.String("report_id", r.ID), zap.Error(err))
		}
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Report, error) {
	return s.Storage.GetReport(ctx, id)
}

// List returns reports by priority; an empty status lists all of them.
func (s *Service) List(ctx context.Context, status string, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.Storage.ListReports(ctx, status, limit)
}

// MarkReviewed moves a pending report to reviewed.
func (s *Service) MarkReviewed(ctx context.Context, id, moderator, notes string) (*models.Report, error) {
	return s.transition(ctx, id, []string{models.ReportPending}, s.reviewUpdates(models.ReportReviewed, moderator, notes))
}

// Resolve closes the report with an action. Ban actions are applied to the
// reported user.
func (s *Service) Resolve(ctx context.Context, id, moderator, action, notes string) (*models.Report, error) {
	if !models.ValidAction(action) {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "unknown action %q", action)
	}
	updates := s.reviewUpdates(models.ReportResolved, moderator, notes)
	updates["action_taken"] = action
	updates["resolved_at"] = s.now()

	r, err := s.transition(ctx, id, []string{models.ReportPending, models.ReportReviewed}, updates)
	if err != nil {
		return nil, err
	}

	switch action {
	case models.ActionBanTemporary:
		err = s.Ban(ctx, r.ReportedUserID, config.TemporaryBanDuration)
	case models.ActionBanPermanent:
		err = s.Ban(ctx, r.ReportedUserID, 0)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Dismiss closes the report without action.
func (s *Service) Dismiss(ctx context.Context, id, moderator, notes string) (*models.Report, error) {
	return s.transition(ctx, id, []string{models.ReportPending, models.ReportReviewed}, s.reviewUpdates(models.ReportDismissed, moderator, notes))
}

func (s *Service) reviewUpdates(status, moderator, notes string) map[string]any {
	u := map[string]any{
		"status":      status,
		"reviewed_by": moderator,
		"updated_at":  s.now(),
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		u["review_notes"] = notes
	}
	return u
}

func (s *Service) transition(ctx context.Context, id string, from []string, updates map[string]any) (*models.Report, error) {
	if by, _ := updates["reviewed_by"].(string); strings.TrimSpace(by) == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "moderator is required")
	}
	changed, err := s.Storage.TransitionReport(ctx, id, from, updates)
	if err != nil {
		return nil, err
	}
	r, err := s.Storage.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, errorx.Newf(errorx.CodeInvalidState, "report %s is %s", id, r.Status)
	}
	zap.L().Info("report updated", zap.String("report_id", id), zap.String("status", r.Status))
	return r, nil
}

// Ban bans the user for d, or permanently when d is zero, and takes them
// out of the queue if they are waiting.
func (s *Service) Ban(ctx context.Context, userID string, d time.Duration) error {
	if d < 0 {
		return errorx.New(errorx.CodeInvalidParam, "ban duration must not be negative")
	}
	var until *time.Time
	if d > 0 {
		t := s.now().Add(d)
		until = &t
	}
	if err := s.Storage.UpdateUserBan(ctx, userID, until, d == 0); err != nil {
		return err
	}
	// a banned waiter must not be paired; a row already claimed stays for its owner
	withdrawn, err := s.Storage.DeleteUnmatchedEntry(ctx, userID)
	if err != nil {
		return err
	}
	zap.L().Info("user banned", zap.String("user_id", userID), zap.Duration("duration", d), zap.Bool("withdrawn", withdrawn))
	return nil
}

func (s *Service) Unban(ctx context.Context, userID string) error {
	if err := s.Storage.UpdateUserBan(ctx, userID, nil, false); err != nil {
		return err
	}
	zap.L().Info("user unbanned", zap.String("user_id", userID))
	return nil
}

// IsBanned is a convenience for callers without a clock.
func (s *Service) IsBanned(ctx context.Context, userID string) (bool, error) {
	banned, err := s.Storage.IsUserBanned(ctx, userID, s.now())
	if errors.Is(err, errorx.ErrNotFound) {
		return false, nil
	}
	return banned, err
}
