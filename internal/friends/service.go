// Package friends keeps the friend graph: requests, acceptance and the
// friends list derived from accepted edges.
package friends

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"rando/backend/internal/errorx"
	"rando/backend/internal/metrics"
	"rando/backend/internal/models"
	"rando/backend/internal/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Publisher pushes friend events to users.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev models.Event) error
}

type Service struct {
	Storage   storage.Storage
	Publisher Publisher
	Clock     clockwork.Clock
}

func NewService(s storage.Storage, pub Publisher, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{Storage: s, Publisher: pub, Clock: clock}
}

func (s *Service) now() time.Time { return s.Clock.Now().UTC() }

// SendRequest creates a pending request from -> to. Any existing row between
// the two, in either direction, is a Conflict.
func (s *Service) SendRequest(ctx context.Context, from, to string) (*models.FriendRequest, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "both user ids are required")
	}
	if from == to {
		return nil, errorx.New(errorx.CodeInvalidParam, "cannot befriend yourself")
	}
	if _, err := s.Storage.GetUserByID(ctx, to); err != nil {
		return nil, err
	}

	existing, err := s.Storage.FindFriendEdge(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.FriendAccepted {
			return nil, errorx.Newf(errorx.CodeConflict, "%s and %s are already friends", from, to)
		}
		return nil, errorx.Newf(errorx.CodeConflict, "a request between %s and %s is already pending", from, to)
	}

	r := &models.FriendRequest{UserID: from, FriendID: to, Status: models.FriendPending, CreatedAt: s.now()}
	if err := s.Storage.CreateFriendRequest(ctx, r); err != nil {
		return nil, err
	}

	metrics.FriendRequests.WithLabelValues("sent").Inc()
	zap.L().Info("friend request sent", zap.String("from", from), zap.String("to", to))
	s.publish(ctx, to, models.Event{Type: models.EventFriendRequest, ActorID: from, Request: r, At: s.now()})
	return r, nil
}

// Accept lets the target of a pending request accept it.
func (s *Service) Accept(ctx context.Context, requestID, by string) (*models.FriendRequest, error) {
	r, err := s.pendingFor(ctx, requestID, by)
	if err != nil {
		return nil, err
	}
	if err := s.Storage.AcceptFriendRequest(ctx, r, s.now()); err != nil {
		return nil, err
	}
	r.Status = models.FriendAccepted

	metrics.FriendRequests.WithLabelValues("accepted").Inc()
	zap.L().Info("friend request accepted", zap.String("request_id", r.ID))
	s.publish(ctx, r.UserID, models.Event{Type: models.EventFriendAccepted, ActorID: by, Request: r, At: s.now()})
	return r, nil
}

// Reject drops a pending request; only its target may do so.
func (s *Service) Reject(ctx context.Context, requestID, by string) error {
	r, err := s.pendingFor(ctx, requestID, by)
	if err != nil {
		return err
	}
	deleted, err := s.Storage.DeletePendingFriendRequest(ctx, r.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return errorx.Newf(errorx.CodeInvalidState, "friend request %s is no longer pending", r.ID)
	}
	metrics.FriendRequests.WithLabelValues("rejected").Inc()
	return nil
}

func (s *Service) pendingFor(ctx context.Context, requestID, by string) (*models.FriendRequest, error) {
	r, err := s.Storage.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.FriendID != by {
		return nil, errorx.Newf(errorx.CodeForbidden, "friend request %s is not addressed to %s", requestID, by)
	}
	if r.Status != models.FriendPending {
		return nil, errorx.Newf(errorx.CodeInvalidState, "friend request %s is %s", requestID, r.Status)
	}
	return r, nil
}

// Unfriend removes the friendship in both directions.
func (s *Service) Unfriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return errorx.New(errorx.CodeInvalidParam, "cannot unfriend yourself")
	}
	n, err := s.Storage.DeleteFriendship(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errorx.Newf(errorx.CodeNotFound, "%s and %s are not connected", userID, friendID)
	}
	metrics.FriendRequests.WithLabelValues("removed").Inc()
	return nil
}

// FriendsOf lists the user's friends, oldest friendship first. Edges are
// read from both columns and deduplicated.
func (s *Service) FriendsOf(ctx context.Context, userID string) ([]models.Friend, error) {
	edges, err := s.Storage.ListAcceptedEdges(ctx, userID)
	if err != nil {
		return nil, err
	}

	since := make(map[string]time.Time, len(edges))
	for _, e := range edges {
		other := e.FriendID
		if other == userID {
			other = e.UserID
		}
		if other == userID {
			continue
		}
		if t, ok := since[other]; !ok || e.UpdatedAt.Before(t) {
			since[other] = e.UpdatedAt
		}
	}
	if len(since) == 0 {
		return []models.Friend{}, nil
	}

	ids := make([]string, 0, len(since))
	for id := range since {
		ids = append(ids, id)
	}
	users, err := s.Storage.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.Friend, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Friend{UserID: id, DisplayName: users[id].DisplayName, Since: since[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// PendingFor lists requests waiting for the user's answer.
func (s *Service) PendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return s.Storage.ListPendingFor(ctx, userID)
}

// AreFriends reports whether an accepted edge links a and b.
func (s *Service) AreFriends(ctx context.Context, a, b string) (bool, error) {
	edge, err := s.Storage.FindFriendEdge(ctx, a, b)
	if err != nil && !errors.Is(err, errorx.ErrNotFound) {
		return false, err
	}
	return edge != nil && edge.Status == models.FriendAccepted, nil
}

func (s *Service) publish(ctx context.Context, userID string, ev models.Event) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, models.UserTopic(userID), ev); err != nil {
		zap.L().Warn("failed to publish friend event", zap.String("user_id", userID), zap.Error(err))
	}
}
