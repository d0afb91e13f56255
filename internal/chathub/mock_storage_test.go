package chathub_test

import (
	"context"
	"time"

	"rando/backend/internal/models"
	"rando/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *MockStorage) GetUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	args := m.Called(ctx, ids)
	users, _ := args.Get(0).(map[string]models.User)
	return users, args.Error(1)
}

func (m *MockStorage) EnsureUser(ctx context.Context, u *models.User) (*models.User, error) {
	args := m.Called(ctx, u)
	out, _ := args.Get(0).(*models.User)
	return out, args.Error(1)
}

func (m *MockStorage) UpdateUserDisplayName(ctx context.Context, id, name string) error {
	return m.Called(ctx, id, name).Error(0)
}

func (m *MockStorage) UpdateUserBan(ctx context.Context, id string, until *time.Time, permanent bool) error {
	return m.Called(ctx, id, until, permanent).Error(0)
}

func (m *MockStorage) IsUserBanned(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) UpsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStorage) GetQueueEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).(*models.QueueEntry)
	return e, args.Error(1)
}

func (m *MockStorage) FindCandidate(ctx context.Context, self *models.QueueEntry, notBefore time.Time) (*models.QueueEntry, error) {
	args := m.Called(ctx, self, notBefore)
	e, _ := args.Get(0).(*models.QueueEntry)
	return e, args.Error(1)
}

func (m *MockStorage) ClaimPair(ctx context.Context, claimer, target *models.QueueEntry, now time.Time) (*models.Session, error) {
	args := m.Called(ctx, claimer, target, now)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *MockStorage) ConsumeMatchedEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).(*models.QueueEntry)
	return e, args.Error(1)
}

func (m *MockStorage) DeleteUnmatchedEntry(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) DeleteExpiredEntries(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) CountWaiting(ctx context.Context, lookingFor string, notBefore time.Time) (int64, error) {
	args := m.Called(ctx, lookingFor, notBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) QueuePosition(ctx context.Context, e *models.QueueEntry, notBefore time.Time) (int, error) {
	args := m.Called(ctx, e, notBefore)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *MockStorage) CreateSession(ctx context.Context, s *models.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStorage) FindActiveSessionForPair(ctx context.Context, a, b string) (*models.Session, error) {
	args := m.Called(ctx, a, b)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Error(1)
}

func (m *MockStorage) FindActiveSessionsForUser(ctx context.Context, userID string) ([]models.Session, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.Session)
	return out, args.Error(1)
}

func (m *MockStorage) ListSessionsForUser(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	args := m.Called(ctx, userID, limit)
	out, _ := args.Get(0).([]models.Session)
	return out, args.Error(1)
}

func (m *MockStorage) EndSession(ctx context.Context, id, by string, now time.Time) (*models.Session, bool, error) {
	args := m.Called(ctx, id, by, now)
	s, _ := args.Get(0).(*models.Session)
	return s, args.Bool(1), args.Error(2)
}

func (m *MockStorage) RateSession(ctx context.Context, s *models.Session, userID string, stars int) error {
	return m.Called(ctx, s, userID, stars).Error(0)
}

func (m *MockStorage) CountSessionsSince(ctx context.Context, mood string, since time.Time) (int64, error) {
	args := m.Called(ctx, mood, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockStorage) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, sessionID, limit)
	out, _ := args.Get(0).([]models.Message)
	return out, args.Error(1)
}

func (m *MockStorage) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) CreateBlock(ctx context.Context, blockerID, blockedID string, now time.Time) error {
	return m.Called(ctx, blockerID, blockedID, now).Error(0)
}

func (m *MockStorage) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) FindFriendEdge(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	args := m.Called(ctx, a, b)
	r, _ := args.Get(0).(*models.FriendRequest)
	return r, args.Error(1)
}

func (m *MockStorage) CreateFriendRequest(ctx context.Context, r *models.FriendRequest) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStorage) GetFriendRequest(ctx context.Context, id string) (*models.FriendRequest, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.FriendRequest)
	return r, args.Error(1)
}

func (m *MockStorage) AcceptFriendRequest(ctx context.Context, r *models.FriendRequest, now time.Time) error {
	return m.Called(ctx, r, now).Error(0)
}

func (m *MockStorage) DeletePendingFriendRequest(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) DeleteFriendship(ctx context.Context, a, b string) (int64, error) {
	args := m.Called(ctx, a, b)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) ListAcceptedEdges(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.FriendRequest)
	return out, args.Error(1)
}

func (m *MockStorage) ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.FriendRequest)
	return out, args.Error(1)
}

func (m *MockStorage) CreateReport(ctx context.Context, r *models.Report) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStorage) GetReport(ctx context.Context, id string) (*models.Report, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

func (m *MockStorage) TransitionReport(ctx context.Context, id string, from []string, updates map[string]any) (bool, error) {
	args := m.Called(ctx, id, from, updates)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) ListReports(ctx context.Context, status string, limit int) ([]models.Report, error) {
	args := m.Called(ctx, status, limit)
	out, _ := args.Get(0).([]models.Report)
	return out, args.Error(1)
}
