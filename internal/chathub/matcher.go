package chathub

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"rando/backend/internal/config"
	"rando/backend/internal/errorx"
	"rando/backend/internal/metrics"
	"rando/backend/internal/models"
	"rando/backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// rateWindow is how far back the wait estimate looks for created sessions.
const rateWindow = 10 * time.Minute

// JoinRequest asks for a place in the queue.
type JoinRequest struct {
	UserID      string
	DisplayName string
	Mood        string
	IsGuest     bool
}

// MatcherService відповідає за алгоритм пошуку співрозмовників.
// The store is the only shared state: any number of MatcherService instances
// may run against the same database.
type MatcherService struct {
	Storage  storage.Storage
	Notifier Notifier
	Sessions *SessionService
	Clock    clockwork.Clock

	cfg config.MatchmakingConfig
}

// NewMatcherService створює новий Matcher.
func NewMatcherService(s storage.Storage, n Notifier, sessions *SessionService, cfg config.MatchmakingConfig, clock clockwork.Clock) *MatcherService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.ClaimAttempts < 1 {
		cfg.ClaimAttempts = config.DefaultClaimAttempts
	}
	return &MatcherService{Storage: s, Notifier: n, Sessions: sessions, Clock: clock, cfg: cfg}
}

func (m *MatcherService) now() time.Time { return m.Clock.Now().UTC() }

func (m *MatcherService) notBefore() time.Time { return m.now().Add(-m.cfg.QueueTTL) }

// EnsureUser returns the stored user, creating it on first sight. Guests
// without a name get a generated alias; a new non-empty name replaces the old.
func (m *MatcherService) EnsureUser(ctx context.Context, id, displayName string, isGuest bool) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errorx.Wrap(errorx.ErrInvalidParam, errorx.CodeInvalidParam, "user id is required")
	}
	displayName = strings.TrimSpace(displayName)

	u, err := m.Storage.GetUserByID(ctx, id)
	if errors.Is(err, errorx.ErrNotFound) {
		name := displayName
		if name == "" {
			name = GamerAlias()
		}
		return m.Storage.EnsureUser(ctx, &models.User{ID: id, DisplayName: name, IsGuest: isGuest})
	}
	if err != nil {
		return nil, err
	}
	if displayName != "" && displayName != u.DisplayName {
		if err := m.Storage.UpdateUserDisplayName(ctx, id, displayName); err != nil {
			return nil, err
		}
		u.DisplayName = displayName
	}
	return u, nil
}

// Join puts the user in the queue, or refreshes joined_at when already
// waiting. Joining abandons any session the user still has active.
func (m *MatcherService) Join(ctx context.Context, req JoinRequest) (*models.QueueEntry, error) {
	mood := strings.ToLower(strings.TrimSpace(req.Mood))
	if mood == "" {
		mood = config.DefaultMood
	}
	if !slices.Contains(config.Moods, mood) {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "unknown mood %q", req.Mood)
	}

	user, err := m.EnsureUser(ctx, req.UserID, req.DisplayName, req.IsGuest)
	if err != nil {
		return nil, err
	}
	banned, err := m.Storage.IsUserBanned(ctx, user.ID, m.now())
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, errorx.Newf(errorx.CodeForbidden, "user %s is banned", user.ID)
	}

	if own, err := m.Storage.GetQueueEntry(ctx, user.ID); err == nil && own.IsMatched() {
		// claimed while away; the next TryMatch hands over the session
		return own, nil
	} else if err != nil && !errors.Is(err, errorx.ErrNotFound) {
		return nil, err
	}

	if m.Sessions != nil {
		if err := m.Sessions.abandonActive(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	entry := &models.QueueEntry{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		LookingFor:  mood,
		IsGuest:     user.IsGuest,
		JoinedAt:    m.now(),
	}
	if err := m.Storage.UpsertQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	metrics.QueueJoins.WithLabelValues(mood).Inc()
	zap.L().Info("queue join", zap.String("user_id", user.ID), zap.String("mood", mood))
	m.publishQueueCount(ctx)
	return entry, nil
}

// TryMatch makes one pairing attempt for userID. It returns the session when
// the user is paired (by claiming a partner or by having been claimed) and
// (nil, nil) when nobody suitable is waiting. Lost claim races are retried
// here and never returned.
func (m *MatcherService) TryMatch(ctx context.Context, userID string) (*models.Session, error) {
	for attempt := 0; attempt < m.cfg.ClaimAttempts; attempt++ {
		self, err := m.Storage.GetQueueEntry(ctx, userID)
		if err != nil {
			if errors.Is(err, errorx.ErrNotFound) {
				return nil, errorx.Wrapf(err, errorx.CodeNotFound, "user %s is not in the queue", userID)
			}
			return nil, err
		}
		if self.IsMatched() {
			return m.consume(ctx, userID)
		}

		candidate, err := m.Storage.FindCandidate(ctx, self, m.notBefore())
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}

		session, err := m.Storage.ClaimPair(ctx, self, candidate, m.now())
		switch {
		case err == nil:
			m.announce(ctx, session)
			return session, nil
		case errors.Is(err, errorx.ErrConflict):
			metrics.ClaimConflicts.Inc()
			zap.L().Debug("claim lost, rescanning",
				zap.String("user_id", userID), zap.String("target", candidate.UserID), zap.Int("attempt", attempt))
		case errors.Is(err, errorx.ErrInvalidState):
			// we were claimed or left meanwhile; re-read our own row
		default:
			return nil, err
		}
	}
	return nil, nil
}

// consume hands the session of a claimed entry to its owner.
func (m *MatcherService) consume(ctx context.Context, userID string) (*models.Session, error) {
	entry, err := m.Storage.ConsumeMatchedEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entry.SessionID == nil {
		return nil, errorx.Newf(errorx.CodeInvalidState, "claimed entry of %s has no session", userID)
	}
	return m.Storage.GetSession(ctx, *entry.SessionID)
}

func (m *MatcherService) announce(ctx context.Context, s *models.Session) {
	metrics.Matches.WithLabelValues(s.Mood).Inc()
	zap.L().Info("match found",
		zap.String("session_id", s.ID), zap.String("user1", s.User1ID), zap.String("user2", s.User2ID))

	for _, uid := range []string{s.User1ID, s.User2ID} {
		ev := models.Event{Type: models.EventMatched, SessionID: s.ID, Session: s, At: m.now()}
		if err := m.Notifier.Publish(ctx, models.UserTopic(uid), ev); err != nil {
			zap.L().Warn("failed to publish match", zap.String("user_id", uid), zap.Error(err))
		}
	}
	m.publishQueueCount(ctx)
}

// Leave removes an unclaimed entry. cancelled is false when there was nothing
// to remove or a partner's claim landed first; the claim wins.
func (m *MatcherService) Leave(ctx context.Context, userID string) (bool, error) {
	cancelled, err := m.Storage.DeleteUnmatchedEntry(ctx, userID)
	if err != nil {
		return false, err
	}
	if cancelled {
		zap.L().Info("queue leave", zap.String("user_id", userID))
		m.publishQueueCount(ctx)
	}
	return cancelled, nil
}

// Sweep purges entries older than the queue TTL.
func (m *MatcherService) Sweep(ctx context.Context) (int64, error) {
	removed, err := m.Storage.DeleteExpiredEntries(ctx, m.notBefore())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.QueueSwept.Add(float64(removed))
		zap.L().Info("queue sweep", zap.Int64("removed", removed))
		m.publishQueueCount(ctx)
	}
	return removed, nil
}

// Search joins the queue and waits for a partner. It wakes up on a matched
// push and on every reconcile tick, and gives up after the search timeout.
// On timeout the entry is withdrawn; if a claim won the race with the
// withdrawal the session is returned anyway.
func (m *MatcherService) Search(ctx context.Context, req JoinRequest) (*models.Session, error) {
	wake := make(chan struct{}, 1)
	unsubscribe := m.Notifier.Subscribe(models.UserTopic(req.UserID), func(ev models.Event) {
		if ev.Type != models.EventMatched {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if _, err := m.Join(ctx, req); err != nil {
		return nil, err
	}

	timeout := m.Clock.NewTimer(m.cfg.SearchTimeout)
	defer timeout.Stop()
	ticker := m.Clock.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		session, err := m.TryMatch(ctx, req.UserID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, m.abandon(ctx, req.UserID)
			}
			return nil, err
		}
		if session != nil {
			return session, nil
		}

		select {
		case <-wake:
		case <-ticker.Chan():
		case <-timeout.Chan():
			return m.giveUp(ctx, req.UserID)
		case <-ctx.Done():
			return nil, m.abandon(ctx, req.UserID)
		}
	}
}

// abandon withdraws the entry of a caller that went away. A claim that
// already landed stays; the session is picked up on reconnect.
func (m *MatcherService) abandon(ctx context.Context, userID string) error {
	if _, err := m.Leave(context.WithoutCancel(ctx), userID); err != nil {
		zap.L().Warn("failed to leave queue after cancel", zap.String("user_id", userID), zap.Error(err))
	}
	return ctx.Err()
}

func (m *MatcherService) giveUp(ctx context.Context, userID string) (*models.Session, error) {
	cancelled, err := m.Leave(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		// the entry was claimed (or swept) before we could withdraw it
		if entry, err := m.Storage.GetQueueEntry(ctx, userID); err == nil && entry.IsMatched() {
			return m.consume(ctx, userID)
		}
	}

	metrics.SearchTimeouts.Inc()
	ev := models.Event{Type: models.EventSearchTimeout, At: m.now()}
	if err := m.Notifier.Publish(ctx, models.UserTopic(userID), ev); err != nil {
		zap.L().Warn("failed to publish search timeout", zap.String("user_id", userID), zap.Error(err))
	}
	return nil, errorx.Newf(errorx.CodeTimeout, "no partner found within %s", m.cfg.SearchTimeout)
}

// Status describes the caller's place in the queue.
func (m *MatcherService) Status(ctx context.Context, userID string) (*models.QueueStatus, error) {
	entry, err := m.Storage.GetQueueEntry(ctx, userID)
	if errors.Is(err, errorx.ErrNotFound) {
		total, err := m.Storage.CountWaiting(ctx, "", m.notBefore())
		if err != nil {
			return nil, err
		}
		return &models.QueueStatus{UsersInQueue: total}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &models.QueueStatus{
		InQueue:    true,
		LookingFor: entry.LookingFor,
		WaitingFor: m.now().Sub(entry.JoinedAt),
	}
	if entry.IsMatched() {
		st.Matched = true
		if entry.SessionID != nil {
			st.SessionID = *entry.SessionID
		}
		return st, nil
	}

	if st.Position, err = m.Storage.QueuePosition(ctx, entry, m.notBefore()); err != nil {
		return nil, err
	}
	if st.UsersInQueue, err = m.Storage.CountWaiting(ctx, entry.LookingFor, m.notBefore()); err != nil {
		return nil, err
	}
	recent, err := m.Storage.CountSessionsSince(ctx, entry.LookingFor, m.now().Add(-rateWindow))
	if err != nil {
		return nil, err
	}
	st.EstimatedWait = m.estimateWait(st.Position, recent)
	return st, nil
}

// estimateWait spreads the recent pairing rate over the users ahead. Each
// session consumes two waiters. With no recent sessions the search timeout
// is reported.
func (m *MatcherService) estimateWait(position int, recentSessions int64) time.Duration {
	if recentSessions == 0 {
		return m.cfg.SearchTimeout
	}
	perUser := rateWindow / time.Duration(2*recentSessions)
	wait := time.Duration(position) * perUser
	return min(wait, m.cfg.SearchTimeout)
}

func (m *MatcherService) publishQueueCount(ctx context.Context) {
	n, err := m.Storage.CountWaiting(ctx, "", m.notBefore())
	if err != nil {
		zap.L().Warn("failed to count queue", zap.Error(err))
		return
	}
	ev := models.Event{Type: models.EventQueueCount, Count: n, At: m.now()}
	if err := m.Notifier.Publish(ctx, models.TopicQueue, ev); err != nil {
		zap.L().Warn("failed to publish queue count", zap.Error(err))
	}
}

