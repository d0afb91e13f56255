package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rando/backend/internal/errorx"
	"rando/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the single source of truth for queue, sessions, the friend graph
// and reports. Every multi-row invariant is enforced inside one method here.
type Storage interface {
	// Users
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	EnsureUser(ctx context.Context, u *models.User) (*models.User, error)
	UpdateUserDisplayName(ctx context.Context, id, name string) error
	UpdateUserBan(ctx context.Context, id string, until *time.Time, permanent bool) error
	IsUserBanned(ctx context.Context, id string, now time.Time) (bool, error)

	// Queue
	UpsertQueueEntry(ctx context.Context, e *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error)
	FindCandidate(ctx context.Context, self *models.QueueEntry, notBefore time.Time) (*models.QueueEntry, error)
	ClaimPair(ctx context.Context, claimer, target *models.QueueEntry, now time.Time) (*models.Session, error)
	ConsumeMatchedEntry(ctx context.Context, userID string) (*models.QueueEntry, error)
	DeleteUnmatchedEntry(ctx context.Context, userID string) (bool, error)
	DeleteExpiredEntries(ctx context.Context, before time.Time) (int64, error)
	CountWaiting(ctx context.Context, lookingFor string, notBefore time.Time) (int64, error)
	QueuePosition(ctx context.Context, e *models.QueueEntry, notBefore time.Time) (int, error)

	// Sessions
	GetSession(ctx context.Context, id string) (*models.Session, error)
	CreateSession(ctx context.Context, s *models.Session) error
	FindActiveSessionForPair(ctx context.Context, a, b string) (*models.Session, error)
	FindActiveSessionsForUser(ctx context.Context, userID string) ([]models.Session, error)
	ListSessionsForUser(ctx context.Context, userID string, limit int) ([]models.Session, error)
	EndSession(ctx context.Context, id, by string, now time.Time) (*models.Session, bool, error)
	RateSession(ctx context.Context, s *models.Session, userID string, stars int) error
	CountSessionsSince(ctx context.Context, mood string, since time.Time) (int64, error)
	SaveMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context, sessionID string) (int64, error)

	// Blocks
	CreateBlock(ctx context.Context, blockerID, blockedID string, now time.Time) error
	IsBlocked(ctx context.Context, a, b string) (bool, error)

	// Friend graph
	FindFriendEdge(ctx context.Context, a, b string) (*models.FriendRequest, error)
	CreateFriendRequest(ctx context.Context, r *models.FriendRequest) error
	GetFriendRequest(ctx context.Context, id string) (*models.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, r *models.FriendRequest, now time.Time) error
	DeletePendingFriendRequest(ctx context.Context, id string) (bool, error)
	DeleteFriendship(ctx context.Context, a, b string) (int64, error)
	ListAcceptedEdges(ctx context.Context, userID string) ([]models.FriendRequest, error)
	ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error)

	// Reports
	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	TransitionReport(ctx context.Context, id string, from []string, updates map[string]any) (bool, error)
	ListReports(ctx context.Context, status string, limit int) ([]models.Report, error)
}

// Service implements Storage on gorm. Redis is optional and only caches bans.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

var _ Storage = (*Service)(nil)

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// translate maps driver errors onto the errorx taxonomy.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errorx.Wrapf(err, errorx.CodeNotFound, "%s not found", what)
	case isDuplicate(err):
		return errorx.Wrapf(err, errorx.CodeConflict, "%s already exists", what)
	case isDeadlock(err):
		return errorx.Wrapf(err, errorx.CodeConflict, "%s: concurrent update", what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func isDeadlock(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "SQLSTATE 40P01") ||
		strings.Contains(msg, "SQLSTATE 40001")
}

// truncate keeps timestamps at the precision postgres stores.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
