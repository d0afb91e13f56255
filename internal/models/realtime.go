package models

import "time"

// Event types pushed to subscribers.
const (
	EventQueueCount     = "queue_count"
	EventMatched        = "matched"
	EventSearchTimeout  = "search_timeout"
	EventMessage        = "message"
	EventSessionEnded   = "session_ended"
	EventFriendRequest  = "friend_request"
	EventFriendAccepted = "friend_accepted"
	EventError          = "error"
)

const TopicQueue = "queue"

// UserTopic is the topic private to one user.
func UserTopic(userID string) string { return "user:" + userID }

// SessionTopic carries messages and lifecycle events of one session.
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// Event is the payload published on a topic and written to websocket clients.
type Event struct {
	Type      string         `json:"type"`
	Topic     string         `json:"topic,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Count     int64          `json:"count,omitempty"`
	Session   *Session       `json:"session,omitempty"`
	Message   *Message       `json:"message,omitempty"`
	Request   *FriendRequest `json:"request,omitempty"`
	At        time.Time      `json:"at"`
}

// ClientCommand is what a websocket client sends to the server.
type ClientCommand struct {
	Type      string `json:"type"` // "search", "leave", "message", "end"
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Mood      string `json:"mood,omitempty"`
}
