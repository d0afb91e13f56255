package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rando/backend/internal/api/handler"
	"rando/backend/internal/api/middleware"
	"rando/backend/internal/chathub"
	"rando/backend/internal/config"
	"rando/backend/internal/friends"
	"rando/backend/internal/localization"
	"rando/backend/internal/models"
	"rando/backend/internal/moderation"
	"rando/backend/internal/storage"
	"rando/backend/internal/storage/storagetest"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type api struct {
	t      *testing.T
	store  *storage.Service
	broker *chathub.Broker
	hub    *chathub.ManagerService
	router *gin.Engine
}

func testConfig() *config.Config {
	return &config.Config{
		Mode: "test",
		HTTP: config.HTTPConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:  config.JWTConfig{Secret: "handler-test-secret-0123", Issuer: "rando-test", TTL: time.Hour},
		Matchmaking: config.MatchmakingConfig{
			QueueTTL:          time.Minute,
			SearchTimeout:     300 * time.Millisecond,
			ReconcileInterval: 50 * time.Millisecond,
			SweepInterval:     time.Minute,
			ClaimAttempts:     config.DefaultClaimAttempts,
		},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := testConfig()
	store := storagetest.New(t)
	broker := chathub.NewBroker()

	sessions := chathub.NewSessionService(store, broker, localization.Default(), nil)
	matcher := chathub.NewMatcherService(store, broker, sessions, cfg.Matchmaking, nil)
	fr := friends.NewService(store, broker, nil)
	sessions.Reports = moderation.NewService(store, nil, nil)
	sessions.Friends = fr
	hub := chathub.NewManagerService(broker, matcher, sessions)

	h := handler.NewHandler(hub, matcher, sessions, fr, middleware.NewTokenIssuer(cfg.JWT), localization.Default())
	return &api{t: t, store: store, broker: broker, hub: hub, router: handler.NewRouter(h, cfg)}
}

type guest struct {
	ID    string
	Name  string
	Token string
}

func (a *api) guest(name string) guest {
	a.t.Helper()
	w := a.do(http.MethodGet, "/anonid?name="+name, "", nil)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Token       string `json:"token"`
		AnonID      string `json:"anon_id"`
		DisplayName string `json:"display_name"`
	}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &body))
	return guest{ID: body.AnonID, Name: body.DisplayName, Token: body.Token}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// matched pairs a and b through the HTTP queue endpoints.
func (a *api) matched(x, y guest) *models.Session {
	a.t.Helper()
	require.Equal(a.t, http.StatusOK, a.do(http.MethodPost, "/queue/join", x.Token, map[string]string{"mood": "chat"}).Code)
	require.Equal(a.t, http.StatusOK, a.do(http.MethodPost, "/queue/join", y.Token, map[string]string{"mood": "chat"}).Code)

	w := a.do(http.MethodPost, "/queue/poll", y.Token, nil)
	require.Equal(a.t, http.StatusOK, w.Code)
	poll := decode[struct {
		Matched bool            `json:"matched"`
		Session *models.Session `json:"session"`
	}](a.t, w)
	require.True(a.t, poll.Matched)
	return poll.Session
}

func TestAnonID(t *testing.T) {
	a := newAPI(t)

	named := a.guest("Alice")
	assert.Equal(t, "Alice", named.Name)
	assert.NotEmpty(t, named.Token)

	anon := a.guest("")
	assert.NotEmpty(t, anon.Name, "guests without a name get an alias")

	u, err := a.store.GetUserByID(context.Background(), anon.ID)
	require.NoError(t, err)
	assert.True(t, u.IsGuest)
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/queue/status", "/sessions", "/friends"} {
		w := a.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "unauthorized", decode[errBody](t, w).Error)
	}
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/queue/status", "garbage", nil).Code)
}

func TestQueue_JoinPollLeave(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.guest("Alice"), a.guest("Bob")

	w := a.do(http.MethodPost, "/queue/join", alice.Token, map[string]string{"mood": "nope"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_param", decode[errBody](t, w).Error)

	w = a.do(http.MethodPost, "/queue/join", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entry := decode[models.QueueEntry](t, w)
	assert.Equal(t, config.DefaultMood, entry.LookingFor)
	assert.True(t, entry.IsGuest)

	w = a.do(http.MethodGet, "/queue/status", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[models.QueueStatus](t, w)
	assert.True(t, st.InQueue)
	assert.Equal(t, 1, st.Position)

	w = a.do(http.MethodPost, "/queue/poll", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]any](t, w)["matched"].(bool))

	w = a.do(http.MethodPost, "/queue/leave", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["left"])

	sess := a.matched(alice, bob)
	assert.Equal(t, alice.ID, sess.User1ID, "the waiter is user1")
	assert.Equal(t, bob.ID, sess.User2ID)

	// alice was claimed while waiting; her poll hands over the same session
	w = a.do(http.MethodPost, "/queue/poll", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Session *models.Session `json:"session"`
	}](t, w)
	require.NotNil(t, got.Session)
	assert.Equal(t, sess.ID, got.Session.ID)
}

func TestQueue_SearchTimesOut(t *testing.T) {
	a := newAPI(t)
	alice := a.guest("Alice")

	w := a.do(http.MethodPost, "/queue/search", alice.Token, map[string]string{"mood": "vent"})
	require.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Equal(t, "timeout", decode[errBody](t, w).Error)

	_, err := a.store.GetQueueEntry(context.Background(), alice.ID)
	assert.Error(t, err, "a timed out search leaves the queue")
}

func TestSessions_Flow(t *testing.T) {
	a := newAPI(t)
	alice, bob, eve := a.guest("Alice"), a.guest("Bob"), a.guest("Eve")
	sess := a.matched(alice, bob)
	base := "/sessions/" + sess.ID

	w := a.do(http.MethodGet, base, eve.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, base+"/messages", alice.Token, map[string]string{"content": "hi bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "hi bob", decode[models.Message](t, w).Content)

	w = a.do(http.MethodPost, base+"/messages", alice.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, base+"/messages?limit=10", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[struct {
		Messages []models.Message `json:"messages"`
	}](t, w)
	require.Len(t, msgs.Messages, 1)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, base+"/messages?limit=x", bob.Token, nil).Code)

	w = a.do(http.MethodPost, base+"/rate", alice.Token, map[string]int{"stars": 5})
	assert.Equal(t, http.StatusConflict, w.Code, "active sessions cannot be rated")

	w = a.do(http.MethodPost, base+"/report", bob.Token, map[string]string{"reason": "rude", "category": "harassment"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ReportPending, decode[map[string]any](t, w)["status"])

	w = a.do(http.MethodPost, base+"/end", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SessionEnded, decode[models.Session](t, w).Status)

	w = a.do(http.MethodPost, base+"/end", alice.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, "ending twice is fine")

	w = a.do(http.MethodPost, base+"/messages", alice.Token, map[string]string{"content": "still there?"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decode[errBody](t, w).Error)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, base+"/rate", alice.Token, map[string]int{"stars": 4}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/rate", alice.Token, map[string]int{"stars": 9}).Code)

	w = a.do(http.MethodGet, base+"/summary", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[models.SessionSummary](t, w)
	assert.GreaterOrEqual(t, sum.MessageCount, int64(1))

	w = a.do(http.MethodGet, "/sessions", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[struct {
		Sessions []models.Session `json:"sessions"`
	}](t, w)
	require.Len(t, hist.Sessions, 1)
	assert.Equal(t, sess.ID, hist.Sessions[0].ID)
}

func TestSessions_BlockPreventsRematch(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.guest("Alice"), a.guest("Bob")
	sess := a.matched(alice, bob)

	w := a.do(http.MethodPost, "/sessions/"+sess.ID+"/block", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SessionEnded, decode[models.Session](t, w).Status)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/queue/join", alice.Token, nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/queue/join", bob.Token, nil).Code)
	w = a.do(http.MethodPost, "/queue/poll", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]any](t, w)["matched"].(bool))
}

func TestFriends_Flow(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.guest("Alice"), a.guest("Bob")

	w := a.do(http.MethodPost, "/sessions/direct", alice.Token, map[string]string{"friend_id": bob.ID})
	assert.Equal(t, http.StatusForbidden, w.Code, "strangers cannot start a direct chat")

	w = a.do(http.MethodPost, "/friends/requests", alice.Token, map[string]string{"user_id": alice.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/friends/requests", alice.Token, map[string]string{"user_id": bob.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	req := decode[models.FriendRequest](t, w)

	w = a.do(http.MethodPost, "/friends/requests", bob.Token, map[string]string{"user_id": alice.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodGet, "/friends/requests", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[struct {
		Requests []models.FriendRequest `json:"requests"`
	}](t, w)
	require.Len(t, pending.Requests, 1)
	assert.Equal(t, req.ID, pending.Requests[0].ID)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/friends/requests/"+req.ID+"/accept", alice.Token, nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/friends/requests/"+req.ID+"/accept", bob.Token, nil).Code)

	for _, g := range []guest{alice, bob} {
		w = a.do(http.MethodGet, "/friends", g.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[struct {
			Friends []models.Friend `json:"friends"`
		}](t, w)
		require.Len(t, list.Friends, 1)
	}

	w = a.do(http.MethodPost, "/sessions/direct", alice.Token, map[string]string{"friend_id": bob.ID})
	require.Equal(t, http.StatusOK, w.Code)
	direct := decode[models.Session](t, w)
	assert.Equal(t, models.SessionTypeFriend, direct.SessionType)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/friends/"+bob.ID, alice.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/friends/"+bob.ID, alice.Token, nil).Code)
}

func TestFriends_Reject(t *testing.T) {
	a := newAPI(t)
	alice, bob := a.guest("Alice"), a.guest("Bob")

	w := a.do(http.MethodPost, "/friends/requests", alice.Token, map[string]string{"user_id": bob.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	req := decode[models.FriendRequest](t, w)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/friends/requests/"+req.ID+"/reject", bob.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/friends/requests/"+req.ID+"/accept", bob.Token, nil).Code)
}

func TestPublicEndpoints(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])

	w = a.do(http.MethodGet, "/starters?lang=en", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[struct {
		Starters []string `json:"starters"`
	}](t, w)
	assert.NotEmpty(t, st.Starters)

	w = a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rando_http_requests_total")

	req := httptest.NewRequest(http.MethodGet, "/starters", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

func TestValidationMessages(t *testing.T) {
	a := newAPI(t)
	alice := a.guest("alice")

	w := a.do(http.MethodPost, "/friends/requests", alice.Token, map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errBody](t, w)
	assert.Equal(t, "invalid_param", body.Error)
	assert.Equal(t, "user_id is a required field", body.Message)

	req := httptest.NewRequest(http.MethodPost, "/friends/requests", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decode[errBody](t, w).Message)
}

func TestWebSocket_ReceivesMatch(t *testing.T) {
	a := newAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- a.hub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-hubDone
	})

	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	alice, bob := a.guest("Alice"), a.guest("Bob")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + alice.Token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return a.broker.Subscribers(models.UserTopic(alice.ID)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	sess := a.matched(alice, bob)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == models.EventMatched {
			require.NotNil(t, ev.Session)
			assert.Equal(t, sess.ID, ev.Session.ID)
			return
		}
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	a := newAPI(t)
	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
