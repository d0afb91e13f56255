package storage

import (
	"context"

	"rando/backend/internal/models"

	"go.uber.org/zap"
)

func (s *Service) CreateReport(ctx context.Context, r *models.Report) error {
	r.CreatedAt = truncate(r.CreatedAt)
	r.UpdatedAt = r.CreatedAt
	if err := s.db(ctx).Create(r).Error; err != nil {
		zap.L().Error("failed to save report",
			zap.String("reporter_id", r.ReporterID),
			zap.String("reported_user_id", r.ReportedUserID),
			zap.Error(err))
		return translate(err, "report")
	}
	return nil
}

func (s *Service) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	if err := s.db(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err, "report")
	}
	return &r, nil
}

// TransitionReport applies updates only while the report is in one of the
// from statuses. It reports whether a row changed.
func (s *Service) TransitionReport(ctx context.Context, id string, from []string, updates map[string]any) (bool, error) {
	res := s.db(ctx).Model(&models.Report{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error, "update report")
	}
	return res.RowsAffected > 0, nil
}

// ListReports returns reports by priority, oldest first within a priority.
// An empty status lists every report.
func (s *Service) ListReports(ctx context.Context, status string, limit int) ([]models.Report, error) {
	q := s.db(ctx).Order("priority DESC, created_at ASC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Report
	err := q.Find(&out).Error
	return out, translate(err, "reports")
}
