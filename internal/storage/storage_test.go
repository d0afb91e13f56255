package storage_test

import (
	"context"
	"testing"
	"time"

	"rando/backend/internal/errorx"
	"rando/backend/internal/models"
	"rando/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(id, mood string, joined time.Time) *models.QueueEntry {
	return &models.QueueEntry{UserID: id, DisplayName: "name-" + id, LookingFor: mood, JoinedAt: joined}
}

func TestUpsertQueueEntry_IdempotentAndRefreshes(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertQueueEntry(ctx, entry("a", "chat", t0)))
	require.NoError(t, s.UpsertQueueEntry(ctx, entry("a", "chat", t0.Add(time.Minute))))

	n, err := s.CountWaiting(ctx, "", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetQueueEntry(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.JoinedAt.Equal(t0.Add(time.Minute)), "re-join refreshes joined_at")
	assert.False(t, got.IsMatched())
}

func TestFindCandidate_FIFOAndFilters(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertQueueEntry(ctx, entry("old", "chat", t0)))
	require.NoError(t, s.UpsertQueueEntry(ctx, entry("new", "chat", t0.Add(2*time.Second))))
	require.NoError(t, s.UpsertQueueEntry(ctx, entry("vent", "vent", t0.Add(-time.Second))))
	require.NoError(t, s.UpsertQueueEntry(ctx, entry("stale", "chat", t0.Add(-10*time.Minute))))
	self := entry("me", "chat", t0.Add(3*time.Second))
	require.NoError(t, s.UpsertQueueEntry(ctx, self))

	notBefore := t0.Add(-5 * time.Minute)
	got, err := s.FindCandidate(ctx, self, notBefore)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old", got.UserID)

	// a block in either direction hides the candidate
	require.NoError(t, s.CreateBlock(ctx, "old", "me", t0))
	got, err = s.FindCandidate(ctx, self, notBefore)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.UserID)

	require.NoError(t, s.CreateBlock(ctx, "me", "new", t0))
	got, err = s.FindCandidate(ctx, self, notBefore)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindCandidate_NeverSelf(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()
	self := entry("solo", "chat", t0)
	require.NoError(t, s.UpsertQueueEntry(ctx, self))

	got, err := s.FindCandidate(ctx, self, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClaimPair_CreatesSessionAndConsumesRows(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	waiter := entry("a", "chat", t0)
	waiter.IsGuest = true
	claimer := entry("b", "chat", t0.Add(time.Second))
	require.NoError(t, s.UpsertQueueEntry(ctx, waiter))
	require.NoError(t, s.UpsertQueueEntry(ctx, claimer))

	sess, err := s.ClaimPair(ctx, claimer, waiter, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "a", sess.User1ID)
	assert.Equal(t, "b", sess.User2ID)
	assert.True(t, sess.IsGuest1)
	assert.False(t, sess.IsGuest2)
	assert.Equal(t, models.SessionActive, sess.Status)
	assert.Equal(t, "chat", sess.Mood)

	_, err = s.GetQueueEntry(ctx, "b")
	assert.ErrorIs(t, err, errorx.ErrNotFound, "claimer row is removed")

	claimed, err := s.GetQueueEntry(ctx, "a")
	require.NoError(t, err)
	require.True(t, claimed.IsMatched())
	assert.Equal(t, "b", *claimed.MatchedWith)
	assert.Equal(t, sess.ID, *claimed.SessionID)

	// a claimed row is invisible to scans and cannot be left
	n, err := s.CountWaiting(ctx, "chat", t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
	left, err := s.DeleteUnmatchedEntry(ctx, "a")
	require.NoError(t, err)
	assert.False(t, left)

	consumed, err := s.ConsumeMatchedEntry(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, *consumed.SessionID)
	_, err = s.GetQueueEntry(ctx, "a")
	assert.ErrorIs(t, err, errorx.ErrNotFound)
}

func TestClaimPair_LostRaceWritesNothing(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	a := entry("a", "chat", t0)
	b := entry("b", "chat", t0.Add(time.Second))
	c := entry("c", "chat", t0.Add(2*time.Second))
	for _, e := range []*models.QueueEntry{a, b, c} {
		require.NoError(t, s.UpsertQueueEntry(ctx, e))
	}

	_, err := s.ClaimPair(ctx, b, a, t0.Add(3*time.Second))
	require.NoError(t, err)

	// c saw a in its scan before b claimed it
	_, err = s.ClaimPair(ctx, c, a, t0.Add(4*time.Second))
	assert.ErrorIs(t, err, errorx.ErrConflict)

	still, err := s.GetQueueEntry(ctx, "c")
	require.NoError(t, err, "the loser keeps its own row")
	assert.False(t, still.IsMatched())

	// b was consumed by its own claim, so it cannot claim again
	_, err = s.ClaimPair(ctx, b, c, t0.Add(5*time.Second))
	assert.ErrorIs(t, err, errorx.ErrInvalidState)
}

func TestClaimPair_ReusesActiveSession(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	existing := &models.Session{User1ID: "b", User2ID: "a", Status: models.SessionActive,
		SessionType: models.SessionTypeFriend, StartedAt: t0}
	require.NoError(t, s.CreateSession(ctx, existing))

	a := entry("a", "chat", t0)
	b := entry("b", "chat", t0.Add(time.Second))
	require.NoError(t, s.UpsertQueueEntry(ctx, a))
	require.NoError(t, s.UpsertQueueEntry(ctx, b))

	sess, err := s.ClaimPair(ctx, b, a, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, sess.ID)
}

func TestActiveSessionUniquePerPair(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	first := &models.Session{User1ID: "a", User2ID: "b", Status: models.SessionActive, SessionType: models.SessionTypeRandom, StartedAt: t0}
	require.NoError(t, s.CreateSession(ctx, first))

	dup := &models.Session{User1ID: "b", User2ID: "a", Status: models.SessionActive, SessionType: models.SessionTypeRandom, StartedAt: t0}
	assert.ErrorIs(t, s.CreateSession(ctx, dup), errorx.ErrConflict)

	_, changed, err := s.EndSession(ctx, first.ID, "a", t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, changed)

	again := &models.Session{User1ID: "b", User2ID: "a", Status: models.SessionActive, SessionType: models.SessionTypeRandom, StartedAt: t0}
	assert.NoError(t, s.CreateSession(ctx, again), "ended sessions do not block a new one")
}

func TestEndSession_Idempotent(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	sess := &models.Session{User1ID: "a", User2ID: "b", Status: models.SessionActive, SessionType: models.SessionTypeRandom, StartedAt: t0}
	require.NoError(t, s.CreateSession(ctx, sess))

	ended, changed, err := s.EndSession(ctx, sess.ID, "a", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.SessionEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	again, changed, err := s.EndSession(ctx, sess.ID, "b", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, again.EndedAt.Equal(*ended.EndedAt), "ended_at is not rewritten")
	assert.Equal(t, "a", *again.EndedBy)

	_, _, err = s.EndSession(ctx, "missing", "a", t0)
	assert.ErrorIs(t, err, errorx.ErrNotFound)
}

func TestRateSession(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	sess := &models.Session{User1ID: "a", User2ID: "b", Status: models.SessionActive, SessionType: models.SessionTypeRandom, StartedAt: t0}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.ErrorIs(t, s.RateSession(ctx, sess, "a", 5), errorx.ErrInvalidState)

	_, _, err := s.EndSession(ctx, sess.ID, "a", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.RateSession(ctx, sess, "b", 4))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got.User1Rating)
	require.NotNil(t, got.User2Rating)
	assert.Equal(t, 4, *got.User2Rating)
}

func TestMessages(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	for i, txt := range []string{"hi", "hello", "bye"} {
		require.NoError(t, s.SaveMessage(ctx, &models.Message{SessionID: "s1", SenderID: "a", Content: txt,
			Type: models.MessageText, CreatedAt: t0.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, s.SaveMessage(ctx, &models.Message{SessionID: "s1", SenderID: "system", Content: "ended",
		Type: models.MessageSystem, CreatedAt: t0.Add(time.Minute)}))

	n, err := s.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	last, err := s.ListMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "bye", last[0].Content)
	assert.Equal(t, "ended", last[1].Content)
}

func TestSweepAndPosition(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertQueueEntry(ctx, entry("a", "chat", t0)))
	require.NoError(t, s.UpsertQueueEntry(ctx, entry("b", "chat", t0.Add(time.Second))))
	c := entry("c", "chat", t0.Add(time.Second))
	require.NoError(t, s.UpsertQueueEntry(ctx, c))

	pos, err := s.QueuePosition(ctx, c, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, pos, "ties are broken by user id")

	removed, err := s.DeleteExpiredEntries(ctx, t0.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	pos, err = s.QueuePosition(ctx, c, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestDeleteExpiredEntries_ClaimedRowsAgeFromMatchedAt(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	a := entry("a", "chat", t0)
	require.NoError(t, s.UpsertQueueEntry(ctx, a))
	b := entry("b", "chat", t0.Add(4*time.Minute))
	require.NoError(t, s.UpsertQueueEntry(ctx, b))
	_, err := s.ClaimPair(ctx, b, a, t0.Add(4*time.Minute))
	require.NoError(t, err)

	removed, err := s.DeleteExpiredEntries(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.DeleteExpiredEntries(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestFriendGraph(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	req := &models.FriendRequest{UserID: "a", FriendID: "b", Status: models.FriendPending, CreatedAt: t0}
	require.NoError(t, s.CreateFriendRequest(ctx, req))

	// reverse direction collides on the pending pair index
	rev := &models.FriendRequest{UserID: "b", FriendID: "a", Status: models.FriendPending, CreatedAt: t0}
	assert.ErrorIs(t, s.CreateFriendRequest(ctx, rev), errorx.ErrConflict)

	edge, err := s.FindFriendEdge(ctx, "b", "a")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, req.ID, edge.ID)

	pending, err := s.ListPendingFor(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, s.AcceptFriendRequest(ctx, req, t0.Add(time.Minute)))
	assert.ErrorIs(t, s.AcceptFriendRequest(ctx, req, t0.Add(time.Minute)), errorx.ErrInvalidState)

	for _, id := range []string{"a", "b"} {
		edges, err := s.ListAcceptedEdges(ctx, id)
		require.NoError(t, err)
		assert.Len(t, edges, 2, "both directions are materialized")
	}

	removed, err := s.DeleteFriendship(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	edge, err = s.FindFriendEdge(ctx, "a", "b")
	require.NoError(t, err)
	assert.Nil(t, edge)
}

func TestAcceptFriendRequest_ToleratesExistingReverseEdge(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	reverse := &models.FriendRequest{UserID: "b", FriendID: "a", Status: models.FriendAccepted, CreatedAt: t0}
	require.NoError(t, s.CreateFriendRequest(ctx, reverse))
	req := &models.FriendRequest{UserID: "a", FriendID: "b", Status: models.FriendPending, CreatedAt: t0}
	require.NoError(t, s.CreateFriendRequest(ctx, req))

	require.NoError(t, s.AcceptFriendRequest(ctx, req, t0.Add(time.Minute)))

	edges, err := s.ListAcceptedEdges(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestDeletePendingFriendRequest(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	req := &models.FriendRequest{UserID: "a", FriendID: "b", Status: models.FriendPending, CreatedAt: t0}
	require.NoError(t, s.CreateFriendRequest(ctx, req))

	ok, err := s.DeletePendingFriendRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeletePendingFriendRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetFriendRequest(ctx, req.ID)
	assert.ErrorIs(t, err, errorx.ErrNotFound)
}

func TestReports(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	low := &models.Report{ReporterID: "a", ReportedUserID: "b", Reason: "spam", Category: "spam",
		Status: models.ReportPending, Priority: 1, CreatedAt: t0}
	high := &models.Report{ReporterID: "c", ReportedUserID: "b", Reason: "threat", Category: "threat",
		Status: models.ReportPending, Priority: 5, CreatedAt: t0.Add(time.Second)}
	require.NoError(t, s.CreateReport(ctx, low))
	require.NoError(t, s.CreateReport(ctx, high))

	list, err := s.ListReports(ctx, models.ReportPending, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, high.ID, list[0].ID)
	assert.Nil(t, list[0].ActionTaken)

	ok, err := s.TransitionReport(ctx, low.ID, []string{models.ReportPending},
		map[string]any{"status": models.ReportDismissed})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionReport(ctx, low.ID, []string{models.ReportPending},
		map[string]any{"status": models.ReportResolved})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsersAndBans(t *testing.T) {
	s := storagetest.New(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, &models.User{ID: "u1", DisplayName: "Neon Viper", IsGuest: true})
	require.NoError(t, err)
	assert.Equal(t, "Neon Viper", u.DisplayName)

	u, err = s.EnsureUser(ctx, &models.User{ID: "u1", DisplayName: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "Neon Viper", u.DisplayName, "existing user is kept")

	banned, err := s.IsUserBanned(ctx, "u1", t0)
	require.NoError(t, err)
	assert.False(t, banned)

	until := t0.Add(time.Hour)
	require.NoError(t, s.UpdateUserBan(ctx, "u1", &until, false))
	banned, err = s.IsUserBanned(ctx, "u1", t0)
	require.NoError(t, err)
	assert.True(t, banned)
	banned, err = s.IsUserBanned(ctx, "u1", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, banned)

	assert.ErrorIs(t, s.UpdateUserBan(ctx, "ghost", nil, true), errorx.ErrNotFound)

	byID, err := s.GetUsersByIDs(ctx, []string{"u1", "ghost"})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
}
