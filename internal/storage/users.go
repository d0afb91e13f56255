package storage

import (
	"context"
	"errors"
	"time"

	"rando/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (s *Service) GetUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err, "users")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// EnsureUser inserts u unless a user with the same id exists and returns the
// stored row either way.
func (s *Service) EnsureUser(ctx context.Context, u *models.User) (*models.User, error) {
	if err := s.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error; err != nil {
		return nil, translate(err, "user")
	}
	return s.GetUserByID(ctx, u.ID)
}

func (s *Service) UpdateUserDisplayName(ctx context.Context, id, name string) error {
	res := s.db(ctx).Model(&models.User{}).Where("id = ?", id).Update("display_name", name)
	if res.Error != nil {
		return translate(res.Error, "user")
	}
	return nil
}

// UpdateUserBan stores the ban and mirrors it into Redis when configured.
// A nil until with permanent=false lifts the ban.
func (s *Service) UpdateUserBan(ctx context.Context, id string, until *time.Time, permanent bool) error {
	res := s.db(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"banned_until":       until,
		"banned_permanently": permanent,
	})
	if res.Error != nil {
		return translate(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "user")
	}

	if s.Redis == nil {
		return nil
	}
	key := banKey(id)
	var err error
	switch {
	case permanent:
		err = s.Redis.Set(ctx, key, "permanent", 0).Err()
	case until != nil && time.Until(*until) > 0:
		err = s.Redis.Set(ctx, key, until.UTC().Format(time.RFC3339), time.Until(*until)).Err()
	default:
		err = s.Redis.Del(ctx, key).Err()
	}
	if err != nil {
		// the database row is authoritative
		zap.L().Warn("failed to mirror ban into redis", zap.String("user_id", id), zap.Error(err))
	}
	return nil
}

// IsUserBanned checks Redis first (fast path) and falls back to the database.
func (s *Service) IsUserBanned(ctx context.Context, id string, now time.Time) (bool, error) {
	if s.Redis != nil {
		status, err := s.Redis.Get(ctx, banKey(id)).Result()
		switch {
		case err == nil && status != "":
			return true, nil
		case err != nil && !errors.Is(err, redis.Nil):
			zap.L().Warn("ban cache lookup failed", zap.String("user_id", id), zap.Error(err))
		}
	}

	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsBanned(now), nil
}

func banKey(id string) string { return "ban:" + id }
