package chathub_test

import (
	"sync"
	"testing"
	"time"

	"rando/backend/internal/models"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.Event

	mu      sync.Mutex
	running bool
	closed  bool
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.Event, 32),
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }

func (c *MockClient) Run() {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// waitFor reads events until one of type typ arrives.
func (c *MockClient) waitFor(t *testing.T, typ string) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.RecvChannel:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("client %s did not receive %q", c.userID, typ)
			return models.Event{}
		}
	}
}
