package storage

import (
	"context"
	"errors"
	"time"

	"rando/backend/internal/errorx"
	"rando/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindFriendEdge returns any row between a and b in either direction, or nil.
func (s *Service) FindFriendEdge(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	var r models.FriendRequest
	err := s.db(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Order("created_at ASC").
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "friend lookup")
	}
	return &r, nil
}

// CreateFriendRequest inserts a pending request. Unique indexes turn racing
// duplicates in either direction into Conflict.
func (s *Service) CreateFriendRequest(ctx context.Context, r *models.FriendRequest) error {
	r.CreatedAt = truncate(r.CreatedAt)
	r.UpdatedAt = r.CreatedAt
	return translate(s.db(ctx).Create(r).Error, "friend request")
}

func (s *Service) GetFriendRequest(ctx context.Context, id string) (*models.FriendRequest, error) {
	var r models.FriendRequest
	if err := s.db(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err, "friend request")
	}
	return &r, nil
}

// AcceptFriendRequest flips the request to accepted and materializes the
// reverse edge in one transaction. An already present reverse edge is fine.
func (s *Service) AcceptFriendRequest(ctx context.Context, r *models.FriendRequest, now time.Time) error {
	now = truncate(now)
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.FriendRequest{}).
			Where("id = ? AND status = ?", r.ID, models.FriendPending).
			Updates(map[string]any{"status": models.FriendAccepted, "updated_at": now})
		if res.Error != nil {
			return translate(res.Error, "accept friend request")
		}
		if res.RowsAffected == 0 {
			return errorx.Newf(errorx.CodeInvalidState, "friend request %s is not pending", r.ID)
		}

		reverse := &models.FriendRequest{
			UserID:    r.FriendID,
			FriendID:  r.UserID,
			Status:    models.FriendAccepted,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "friend_id"}},
			DoUpdates: clause.Assignments(map[string]any{"status": models.FriendAccepted, "updated_at": now}),
		}).Create(reverse).Error
		return translate(err, "reverse friend edge")
	})
}

// DeletePendingFriendRequest removes a request that is still pending.
func (s *Service) DeletePendingFriendRequest(ctx context.Context, id string) (bool, error) {
	res := s.db(ctx).Where("id = ? AND status = ?", id, models.FriendPending).Delete(&models.FriendRequest{})
	if res.Error != nil {
		return false, translate(res.Error, "reject friend request")
	}
	return res.RowsAffected > 0, nil
}

// DeleteFriendship removes every edge between a and b, both directions.
func (s *Service) DeleteFriendship(ctx context.Context, a, b string) (int64, error) {
	res := s.db(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Delete(&models.FriendRequest{})
	if res.Error != nil {
		return 0, translate(res.Error, "unfriend")
	}
	return res.RowsAffected, nil
}

// ListAcceptedEdges returns accepted rows where userID appears in either column.
func (s *Service) ListAcceptedEdges(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	err := s.db(ctx).
		Where("(user_id = ? OR friend_id = ?) AND status = ?", userID, userID, models.FriendAccepted).
		Order("updated_at ASC").
		Find(&out).Error
	return out, translate(err, "friends")
}

func (s *Service) ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	err := s.db(ctx).
		Where("friend_id = ? AND status = ?", userID, models.FriendPending).
		Order("created_at ASC").
		Find(&out).Error
	return out, translate(err, "pending friend requests")
}
