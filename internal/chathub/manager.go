package chathub

import (
	"context"
	"errors"
	"sync"

	"rando/backend/internal/errorx"
	"rando/backend/internal/metrics"
	"rando/backend/internal/models"

	"go.uber.org/zap"
)

// Client commands.
const (
	CmdSearch  = "search"
	CmdLeave   = "leave"
	CmdMessage = "message"
	CmdEnd     = "end"
)

// ManagerService is the hub between push connections and the services. It
// owns the client registry and wires each client to its topics: the user's
// private topic, the queue counter and the sessions the user is in.
type ManagerService struct {
	Notifier Notifier
	Matcher  *MatcherService
	Sessions *SessionService

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Command

	clients map[Client]*clientState
	done    chan struct{}
	once    sync.Once
}

func NewManagerService(n Notifier, matcher *MatcherService, sessions *SessionService) *ManagerService {
	return &ManagerService{
		Notifier:     n,
		Matcher:      matcher,
		Sessions:     sessions,
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Command),
		clients:      make(map[Client]*clientState),
		done:         make(chan struct{}),
	}
}

// Register hands a new connection to the hub. It returns false once the hub
// has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Dispatch queues a command from a client. It returns false once the hub has stopped.
func (m *ManagerService) Dispatch(cmd Command) bool {
	select {
	case m.IncomingCh <- cmd:
		return true
	case <-m.done:
		return false
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.done) })
	zap.L().Info("chat hub started")

	for {
		select {
		case c := <-m.RegisterCh:
			m.register(ctx, c)
		case c := <-m.UnregisterCh:
			m.unregister(c)
		case cmd := <-m.IncomingCh:
			st, ok := m.clients[cmd.Client]
			if !ok {
				continue
			}
			m.handle(st, cmd.ClientCommand)
		case <-ctx.Done():
			for c := range m.clients {
				m.unregister(c)
			}
			zap.L().Info("chat hub stopped")
			return nil
		}
	}
}

func (m *ManagerService) register(ctx context.Context, c Client) {
	if _, ok := m.clients[c]; ok {
		return
	}
	st := newClientState(ctx, c)
	m.clients[c] = st
	metrics.ConnectedClients.Inc()

	userID := c.GetUserID()
	st.add(models.UserTopic(userID), m.Notifier.Subscribe(models.UserTopic(userID), func(ev models.Event) {
		m.onUserEvent(st, ev)
	}))
	st.add(models.TopicQueue, m.Notifier.Subscribe(models.TopicQueue, st.deliver))

	// a reconnecting user picks up the chats it is still in
	if m.Sessions != nil {
		active, err := m.Sessions.Storage.FindActiveSessionsForUser(ctx, userID)
		if err != nil {
			zap.L().Warn("failed to restore sessions", zap.String("user_id", userID), zap.Error(err))
		}
		for _, s := range active {
			m.follow(st, s.ID)
		}
	}

	c.Run()
	zap.L().Info("client registered", zap.String("user_id", userID), zap.Int("clients", len(m.clients)))
}

func (m *ManagerService) unregister(c Client) {
	st, ok := m.clients[c]
	if !ok {
		return
	}
	delete(m.clients, c)
	st.close()
	metrics.ConnectedClients.Dec()
	zap.L().Info("client unregistered", zap.String("user_id", c.GetUserID()))
}

func (m *ManagerService) onUserEvent(st *clientState, ev models.Event) {
	switch ev.Type {
	case models.EventMatched:
		m.follow(st, ev.SessionID)
	case models.EventSessionEnded:
		// already delivered through the session topic
		if st.seen(ev.SessionID) {
			return
		}
	}
	st.deliver(ev)
}

func (m *ManagerService) follow(st *clientState, sessionID string) {
	if sessionID == "" {
		return
	}
	topic := models.SessionTopic(sessionID)
	st.add(topic, m.Notifier.Subscribe(topic, func(ev models.Event) {
		st.deliver(ev)
		if ev.Type == models.EventSessionEnded {
			st.drop(topic, sessionID)
		}
	}))
}

// handle runs on the hub goroutine; anything that can block runs on its own.
func (m *ManagerService) handle(st *clientState, cmd models.ClientCommand) {
	userID := st.client.GetUserID()
	ctx := st.ctx

	switch cmd.Type {
	case CmdSearch:
		go func() {
			_, err := m.Matcher.Search(ctx, JoinRequest{UserID: userID, Mood: cmd.Mood})
			if err != nil && !errors.Is(err, errorx.ErrTimeout) && ctx.Err() == nil {
				st.fail(err)
			}
		}()
	case CmdLeave:
		go func() {
			if _, err := m.Matcher.Leave(ctx, userID); err != nil {
				st.fail(err)
			}
		}()
	case CmdMessage:
		go func() {
			if _, err := m.Sessions.SendMessage(ctx, cmd.SessionID, userID, cmd.Content); err != nil {
				st.fail(err)
			}
		}()
	case CmdEnd:
		go func() {
			if _, err := m.Sessions.End(ctx, cmd.SessionID, userID); err != nil {
				st.fail(err)
			}
		}()
	default:
		st.fail(errorx.Newf(errorx.CodeInvalidParam, "unknown command %q", cmd.Type))
	}
}

// clientState is the per-connection bookkeeping shared by the hub goroutine
// and the notifier handlers.
type clientState struct {
	client Client
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	unsubs map[string]func()
	ended  map[string]struct{}
}

func newClientState(parent context.Context, c Client) *clientState {
	ctx, cancel := context.WithCancel(parent)
	return &clientState{
		client: c,
		ctx:    ctx,
		cancel: cancel,
		unsubs: make(map[string]func()),
		ended:  make(map[string]struct{}),
	}
}

func (s *clientState) add(topic string, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.unsubs[topic]; dup || s.closed {
		unsubscribe()
		return
	}
	s.unsubs[topic] = unsubscribe
}

func (s *clientState) drop(topic, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unsubscribe, ok := s.unsubs[topic]; ok {
		unsubscribe()
		delete(s.unsubs, topic)
	}
	s.ended[sessionID] = struct{}{}
}

// seen reports whether the session topic of sessionID is (or was) followed.
func (s *clientState) seen(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, following := s.unsubs[models.SessionTopic(sessionID)]
	_, ended := s.ended[sessionID]
	return following || ended
}

// deliver never blocks; a slow client loses events and reconciles by polling.
func (s *clientState) deliver(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.client.GetSendChannel() <- ev:
	default:
		zap.L().Warn("client send buffer full, dropping event",
			zap.String("user_id", s.client.GetUserID()), zap.String("type", ev.Type))
	}
}

func (s *clientState) fail(err error) {
	s.deliver(models.Event{Type: models.EventError, Content: errorx.Slug(err) + ": " + err.Error()})
}

func (s *clientState) close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for topic, unsubscribe := range s.unsubs {
		unsubscribe()
		delete(s.unsubs, topic)
	}
	s.client.Close()
}
