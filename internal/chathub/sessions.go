package chathub

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"rando/backend/internal/errorx"
	"rando/backend/internal/localization"
	"rando/backend/internal/metrics"
	"rando/backend/internal/models"
	"rando/backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	MaxMessageLength   = 2000
	DefaultHistorySize = 50
	MaxHistorySize     = 200

	systemSender = "system"
	systemLang   = "en"
)

// Reasons a session ends, used as a metrics label.
const (
	EndLeft      = "left"
	EndBlocked   = "blocked"
	EndAbandoned = "abandoned"
)

// ReportFiler accepts complaints raised from inside a session.
type ReportFiler interface {
	Submit(ctx context.Context, r *models.Report) (*models.Report, error)
}

// FriendChecker answers whether two users are friends.
type FriendChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// SessionService owns the life of a chat session once it exists.
type SessionService struct {
	Storage   storage.Storage
	Notifier  Notifier
	Clock     clockwork.Clock
	Localizer *localization.Localizer

	Reports ReportFiler
	Friends FriendChecker
}

func NewSessionService(s storage.Storage, n Notifier, loc *localization.Localizer, clock clockwork.Clock) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = localization.Default()
	}
	return &SessionService{Storage: s, Notifier: n, Clock: clock, Localizer: loc}
}

func (s *SessionService) now() time.Time { return s.Clock.Now().UTC() }

// Get returns the session if userID takes part in it.
func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	sess, err := s.Storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(userID) {
		return nil, errorx.Newf(errorx.CodeForbidden, "user %s is not in session %s", userID, sessionID)
	}
	return sess, nil
}

// End closes the session on behalf of one participant. Ending an ended
// session returns it untouched.
func (s *SessionService) End(ctx context.Context, sessionID, by string) (*models.Session, error) {
	if _, err := s.Get(ctx, sessionID, by); err != nil {
		return nil, err
	}
	return s.end(ctx, sessionID, by, EndLeft)
}

func (s *SessionService) end(ctx context.Context, sessionID, by, reason string) (*models.Session, error) {
	sess, changed, err := s.Storage.EndSession(ctx, sessionID, by, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return sess, nil
	}

	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	zap.L().Info("session ended",
		zap.String("session_id", sess.ID), zap.String("by", by), zap.String("reason", reason))

	key := "system.partner_left"
	if reason == EndBlocked {
		key = "system.blocked"
	}
	note := &models.Message{
		SessionID: sess.ID,
		SenderID:  systemSender,
		Content:   s.Localizer.Format(systemLang, key, displayNameOf(sess, by)),
		Type:      models.MessageSystem,
		CreatedAt: s.now(),
	}
	if err := s.Storage.SaveMessage(ctx, note); err != nil {
		zap.L().Warn("failed to save system message", zap.String("session_id", sess.ID), zap.Error(err))
	}

	ev := models.Event{Type: models.EventSessionEnded, SessionID: sess.ID, ActorID: by, Session: sess, At: s.now()}
	s.publish(ctx, models.SessionTopic(sess.ID), ev)
	if partnerID, _, _, ok := sess.Partner(by); ok {
		s.publish(ctx, models.UserTopic(partnerID), ev)
	}
	return sess, nil
}

// abandonActive ends every active session of userID, e.g. before a new search.
func (s *SessionService) abandonActive(ctx context.Context, userID string) error {
	active, err := s.Storage.FindActiveSessionsForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, sess := range active {
		if _, err := s.end(ctx, sess.ID, userID, EndAbandoned); err != nil {
			return err
		}
	}
	return nil
}

// SendMessage stores a chat line and pushes it to the session topic.
func (s *SessionService) SendMessage(ctx context.Context, sessionID, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "message is empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "message is longer than %d characters", MaxMessageLength)
	}

	sess, err := s.Get(ctx, sessionID, senderID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive() {
		return nil, errorx.Newf(errorx.CodeInvalidState, "session %s has ended", sessionID)
	}

	msg := &models.Message{
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		Type:      models.MessageText,
		CreatedAt: s.now(),
	}
	if err := s.Storage.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	s.publish(ctx, models.SessionTopic(sessionID), models.Event{
		Type:      models.EventMessage,
		SessionID: sessionID,
		ActorID:   senderID,
		Content:   content,
		Message:   msg,
		At:        msg.CreatedAt,
	})
	return msg, nil
}

// Messages returns the latest messages of the session, oldest first.
func (s *SessionService) Messages(ctx context.Context, sessionID, userID string, limit int) ([]models.Message, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.Storage.ListMessages(ctx, sessionID, clampLimit(limit))
}

func (s *SessionService) Summary(ctx context.Context, sessionID, userID string) (*models.SessionSummary, error) {
	sess, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	n, err := s.Storage.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionSummary{Session: sess, MessageCount: n, Duration: sess.Duration(s.now())}, nil
}

// History lists the user's sessions, newest first.
func (s *SessionService) History(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	return s.Storage.ListSessionsForUser(ctx, userID, clampLimit(limit))
}

// Rate stores the caller's 1..5 rating of an ended session.
func (s *SessionService) Rate(ctx context.Context, sessionID, userID string, stars int) error {
	if stars < 1 || stars > 5 {
		return errorx.Newf(errorx.CodeInvalidParam, "rating must be between 1 and 5, got %d", stars)
	}
	sess, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if sess.IsActive() {
		return errorx.Newf(errorx.CodeInvalidState, "session %s is still active", sessionID)
	}
	return s.Storage.RateSession(ctx, sess, userID, stars)
}

// ReportInput describes a complaint about the partner of a session.
type ReportInput struct {
	Reason   string
	Category string
	Evidence string
}

// Report files a complaint about the caller's partner. The session stays open.
func (s *SessionService) Report(ctx context.Context, sessionID, reporterID string, in ReportInput) (*models.Report, error) {
	if s.Reports == nil {
		return nil, errorx.New(errorx.CodeInternal, "reports are not configured")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "reason is required")
	}
	sess, err := s.Get(ctx, sessionID, reporterID)
	if err != nil {
		return nil, err
	}

	partnerID, _, partnerGuest, _ := sess.Partner(reporterID)
	_, _, reporterGuest, _ := sess.Partner(partnerID)

	r := &models.Report{
		ReporterID:          reporterID,
		ReporterIsGuest:     reporterGuest,
		ReportedUserID:      partnerID,
		ReportedUserIsGuest: partnerGuest,
		SessionID:           &sess.ID,
		Reason:              strings.TrimSpace(in.Reason),
		Category:            in.Category,
	}
	if ev := strings.TrimSpace(in.Evidence); ev != "" {
		r.Evidence = &ev
	}
	return s.Reports.Submit(ctx, r)
}

// Block stops the pair from being matched again and closes the session.
func (s *SessionService) Block(ctx context.Context, sessionID, blockerID string) (*models.Session, error) {
	sess, err := s.Get(ctx, sessionID, blockerID)
	if err != nil {
		return nil, err
	}
	partnerID, _, _, _ := sess.Partner(blockerID)
	if err := s.Storage.CreateBlock(ctx, blockerID, partnerID, s.now()); err != nil {
		return nil, err
	}
	zap.L().Info("user blocked", zap.String("blocker", blockerID), zap.String("blocked", partnerID))
	return s.end(ctx, sessionID, blockerID, EndBlocked)
}

// StartDirectChat opens (or reuses) a session between two friends.
func (s *SessionService) StartDirectChat(ctx context.Context, userID, friendID string) (*models.Session, error) {
	if userID == "" || friendID == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "both user ids are required")
	}
	if userID == friendID {
		return nil, errorx.New(errorx.CodeInvalidParam, "cannot chat with yourself")
	}
	if s.Friends == nil {
		return nil, errorx.New(errorx.CodeInternal, "friends are not configured")
	}
	ok, err := s.Friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorx.Newf(errorx.CodeForbidden, "%s and %s are not friends", userID, friendID)
	}

	if existing, err := s.Storage.FindActiveSessionForPair(ctx, userID, friendID); err != nil || existing != nil {
		return existing, err
	}

	users, err := s.Storage.GetUsersByIDs(ctx, []string{userID, friendID})
	if err != nil {
		return nil, err
	}
	me, friend := users[userID], users[friendID]

	sess := &models.Session{
		User1ID:          userID,
		User2ID:          friendID,
		User1DisplayName: me.DisplayName,
		User2DisplayName: friend.DisplayName,
		IsGuest1:         me.IsGuest,
		IsGuest2:         friend.IsGuest,
		SessionType:      models.SessionTypeFriend,
		Status:           models.SessionActive,
		StartedAt:        s.now(),
	}
	if err := s.Storage.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, errorx.ErrConflict) {
			// the friend opened it at the same moment
			return s.Storage.FindActiveSessionForPair(ctx, userID, friendID)
		}
		return nil, err
	}

	zap.L().Info("direct chat started", zap.String("session_id", sess.ID))
	for _, uid := range []string{userID, friendID} {
		s.publish(ctx, models.UserTopic(uid), models.Event{
			Type: models.EventMatched, SessionID: sess.ID, Session: sess, At: s.now(),
		})
	}
	return sess, nil
}

func (s *SessionService) publish(ctx context.Context, topic string, ev models.Event) {
	if err := s.Notifier.Publish(ctx, topic, ev); err != nil {
		zap.L().Warn("publish failed", zap.String("topic", topic), zap.String("type", ev.Type), zap.Error(err))
	}
}

func displayNameOf(sess *models.Session, userID string) string {
	if userID == sess.User2ID {
		return sess.User2DisplayName
	}
	return sess.User1DisplayName
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistorySize
	}
	return min(limit, MaxHistorySize)
}
