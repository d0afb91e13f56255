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

const unclaimed = "matched_with IS NULL"

// UpsertQueueEntry inserts the entry or refreshes an existing unclaimed one.
// A row that was already claimed is left alone so the owner can consume it.
func (s *Service) UpsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	e.JoinedAt = truncate(e.JoinedAt)
	err := s.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "looking_for", "is_guest", "joined_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "queue_entries.matched_with IS NULL"},
		}},
	}).Create(e).Error
	return translate(err, "queue entry")
}

func (s *Service) GetQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	if err := s.db(ctx).First(&e, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err, "queue entry")
	}
	return &e, nil
}

// FindCandidate returns the oldest unclaimed, unexpired entry in the same mode
// that is not self and not blocked in either direction, or nil.
func (s *Service) FindCandidate(ctx context.Context, self *models.QueueEntry, notBefore time.Time) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := s.db(ctx).
		Where("looking_for = ? AND user_id <> ? AND "+unclaimed+" AND joined_at >= ?",
			self.LookingFor, self.UserID, truncate(notBefore)).
		Where(`NOT EXISTS (SELECT 1 FROM blocks b
			WHERE (b.blocker_id = ? AND b.blocked_id = queue_entries.user_id)
			   OR (b.blocked_id = ? AND b.blocker_id = queue_entries.user_id))`, self.UserID, self.UserID).
		Order("joined_at ASC, user_id ASC").
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "queue scan")
	}
	return &e, nil
}

// ClaimPair pairs claimer with target in one transaction:
//  1. the claimer's own row is removed only if nobody claimed it first;
//  2. the target row is claimed only if still unclaimed;
//  3. the pair's active session is reused or created, user1 being the target;
//  4. the session id is stamped on the target row for its owner to read.
//
// A lost race on step 1 is InvalidState (the claimer was itself paired or left),
// on step 2 Conflict. Either way nothing is written.
func (s *Service) ClaimPair(ctx context.Context, claimer, target *models.QueueEntry, now time.Time) (*models.Session, error) {
	now = truncate(now)
	var session *models.Session

	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND "+unclaimed, claimer.UserID).Delete(&models.QueueEntry{})
		if res.Error != nil {
			return translate(res.Error, "claim own entry")
		}
		if res.RowsAffected == 0 {
			return errorx.Newf(errorx.CodeInvalidState, "queue entry of %s is no longer waiting", claimer.UserID)
		}

		res = tx.Model(&models.QueueEntry{}).
			Where("user_id = ? AND "+unclaimed, target.UserID).
			Updates(map[string]any{"matched_with": claimer.UserID, "matched_at": now})
		if res.Error != nil {
			return translate(res.Error, "claim target entry")
		}
		if res.RowsAffected == 0 {
			return errorx.Newf(errorx.CodeConflict, "queue entry of %s was claimed by someone else", target.UserID)
		}

		var waiter models.QueueEntry
		if err := tx.First(&waiter, "user_id = ?", target.UserID).Error; err != nil {
			return translate(err, "claimed entry")
		}

		existing, err := activePair(tx, claimer.UserID, waiter.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			session = existing
		} else {
			session = &models.Session{
				User1ID:          waiter.UserID,
				User2ID:          claimer.UserID,
				User1DisplayName: waiter.DisplayName,
				User2DisplayName: claimer.DisplayName,
				IsGuest1:         waiter.IsGuest,
				IsGuest2:         claimer.IsGuest,
				SessionType:      models.SessionTypeRandom,
				Mood:             waiter.LookingFor,
				Status:           models.SessionActive,
				StartedAt:        now,
			}
			if err := tx.Create(session).Error; err != nil {
				return translate(err, "session")
			}
		}

		return translate(tx.Model(&models.QueueEntry{}).
			Where("user_id = ?", waiter.UserID).
			Update("session_id", session.ID).Error, "stamp session")
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ConsumeMatchedEntry deletes the caller's claimed row and returns it as it was.
func (s *Service) ConsumeMatchedEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&e, "user_id = ? AND matched_with IS NOT NULL", userID).Error; err != nil {
			return translate(err, "matched queue entry")
		}
		return translate(tx.Where("user_id = ? AND matched_with IS NOT NULL", userID).
			Delete(&models.QueueEntry{}).Error, "consume queue entry")
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteUnmatchedEntry removes the row only while nobody has claimed it.
func (s *Service) DeleteUnmatchedEntry(ctx context.Context, userID string) (bool, error) {
	res := s.db(ctx).Where("user_id = ? AND "+unclaimed, userID).Delete(&models.QueueEntry{})
	if res.Error != nil {
		return false, translate(res.Error, "leave queue")
	}
	return res.RowsAffected > 0, nil
}

// DeleteExpiredEntries purges unclaimed rows that joined before the cutoff
// and claimed rows nobody consumed since before the cutoff. A claimed row
// ages from matched_at so its owner always gets a full TTL to read it.
func (s *Service) DeleteExpiredEntries(ctx context.Context, before time.Time) (int64, error) {
	cutoff := truncate(before)
	res := s.db(ctx).
		Where("("+unclaimed+" AND joined_at < ?) OR (matched_with IS NOT NULL AND matched_at < ?)", cutoff, cutoff).
		Delete(&models.QueueEntry{})
	if res.Error != nil {
		return 0, translate(res.Error, "sweep queue")
	}
	return res.RowsAffected, nil
}

// CountWaiting counts unclaimed, unexpired rows; an empty mode counts all modes.
func (s *Service) CountWaiting(ctx context.Context, lookingFor string, notBefore time.Time) (int64, error) {
	q := s.db(ctx).Model(&models.QueueEntry{}).Where(unclaimed+" AND joined_at >= ?", truncate(notBefore))
	if lookingFor != "" {
		q = q.Where("looking_for = ?", lookingFor)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, translate(err, "count queue")
	}
	return n, nil
}

// QueuePosition is the 1-based FIFO position of e among waiters of its mode.
func (s *Service) QueuePosition(ctx context.Context, e *models.QueueEntry, notBefore time.Time) (int, error) {
	var ahead int64
	joined := truncate(e.JoinedAt)
	err := s.db(ctx).Model(&models.QueueEntry{}).
		Where("looking_for = ? AND "+unclaimed+" AND joined_at >= ?", e.LookingFor, truncate(notBefore)).
		Where("joined_at < ? OR (joined_at = ? AND user_id < ?)", joined, joined, e.UserID).
		Count(&ahead).Error
	if err != nil {
		return 0, translate(err, "queue position")
	}
	return int(ahead) + 1, nil
}
