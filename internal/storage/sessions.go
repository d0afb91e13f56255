package storage

import (
	"context"
	"errors"
	"time"

	"rando/backend/internal/errorx"
	"rando/backend/internal/models"

	"gorm.io/gorm"
)

func activePair(tx *gorm.DB, a, b string) (*models.Session, error) {
	var sess models.Session
	err := tx.Where("pair_key = ? AND status = ?", models.PairKey(a, b), models.SessionActive).Take(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "session lookup")
	}
	return &sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.db(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, translate(err, "session")
	}
	return &sess, nil
}

func (s *Service) CreateSession(ctx context.Context, sess *models.Session) error {
	sess.StartedAt = truncate(sess.StartedAt)
	return translate(s.db(ctx).Create(sess).Error, "session")
}

// FindActiveSessionForPair returns the active session of the unordered pair, or nil.
func (s *Service) FindActiveSessionForPair(ctx context.Context, a, b string) (*models.Session, error) {
	return activePair(s.db(ctx), a, b)
}

func (s *Service) FindActiveSessionsForUser(ctx context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	err := s.db(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, models.SessionActive).
		Order("started_at ASC").
		Find(&out).Error
	return out, translate(err, "active sessions")
}

func (s *Service) ListSessionsForUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	var out []models.Session
	err := s.db(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, translate(err, "session history")
}

// EndSession moves an active session to ended. changed is false when the
// session had already ended; the stored row is returned untouched then.
func (s *Service) EndSession(ctx context.Context, id, by string, now time.Time) (*models.Session, bool, error) {
	res := s.db(ctx).Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.SessionActive).
		Updates(map[string]any{
			"status":   models.SessionEnded,
			"ended_at": truncate(now),
			"ended_by": by,
		})
	if res.Error != nil {
		return nil, false, translate(res.Error, "end session")
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, res.RowsAffected > 0, nil
}

// RateSession stores userID's rating on an ended session.
func (s *Service) RateSession(ctx context.Context, sess *models.Session, userID string, stars int) error {
	column := "user1_rating"
	if sess.User2ID == userID {
		column = "user2_rating"
	}
	res := s.db(ctx).Model(&models.Session{}).
		Where("id = ? AND status = ?", sess.ID, models.SessionEnded).
		Update(column, stars)
	if res.Error != nil {
		return translate(res.Error, "rate session")
	}
	if res.RowsAffected == 0 {
		return errorx.Newf(errorx.CodeInvalidState, "session %s is not ended", sess.ID)
	}
	return nil
}

// CountSessionsSince counts random sessions of a mood started after since.
func (s *Service) CountSessionsSince(ctx context.Context, mood string, since time.Time) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.Session{}).
		Where("session_type = ? AND mood = ? AND started_at >= ?", models.SessionTypeRandom, mood, truncate(since)).
		Count(&n).Error
	return n, translate(err, "count sessions")
}

func (s *Service) SaveMessage(ctx context.Context, m *models.Message) error {
	m.CreatedAt = truncate(m.CreatedAt)
	return translate(s.db(ctx).Create(m).Error, "message")
}

// ListMessages returns the newest limit messages in chronological order.
func (s *Service) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	var out []models.Message
	err := s.db(ctx).Where("session_id = ?", sessionID).Order("id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, translate(err, "messages")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Service) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.Message{}).Where("session_id = ? AND type = ?", sessionID, models.MessageText).Count(&n).Error
	return n, translate(err, "count messages")
}

// CreateBlock records blockerID blocking blockedID; repeating it is a no-op.
func (s *Service) CreateBlock(ctx context.Context, blockerID, blockedID string, now time.Time) error {
	b := &models.Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: truncate(now)}
	err := s.db(ctx).Create(b).Error
	if err != nil && isDuplicate(err) {
		return nil
	}
	return translate(err, "block")
}

func (s *Service) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := s.db(ctx).Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return false, translate(err, "block lookup")
	}
	return n > 0, nil
}
