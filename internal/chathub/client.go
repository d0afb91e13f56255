package chathub

import "rando/backend/internal/models"

// Client is one live push connection of a user (a websocket today). The hub
// talks to it only through its send channel.
type Client interface {
	// GetUserID returns the user the connection was authenticated as.
	GetUserID() string

	// GetSendChannel returns the channel the hub writes events to. The hub
	// never blocks on it; a full channel drops the event.
	GetSendChannel() chan<- models.Event

	// Run starts the read and write pumps.
	Run()
	// Close shuts the outgoing side down. Called by the hub only.
	Close()
}

// Command is a ClientCommand together with the connection it came from.
type Command struct {
	Client Client
	models.ClientCommand
}
