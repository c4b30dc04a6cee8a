package websocket

import (
	"sync"

	"github.com/bidlane/auction-server/internal/auth"
	"github.com/bidlane/auction-server/internal/hub"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Client struct {
	ConnID      string        // Connection id, unique per upgrade
	Identity    auth.Identity // Authenticated caller
	Conn        *websocket.Conn
	Send        chan []byte   // Channel for outgoing messages
	RateLimiter *rate.Limiter // Rate limiter to prevent spamming
	closed      bool          // Flag to check if the connection is closed
	mu          sync.Mutex    // Mutex to protect the closed flag
}

// ID implements hub.Subscriber.
func (c *Client) ID() string {
	return c.ConnID
}

// Enqueue implements hub.Subscriber. It never blocks: a full send buffer
// reports failure and lets the hub drop this client.
func (c *Client) Enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// ReadMessages listens for incoming messages from the client.
func (c *Client) ReadMessages(registry *hub.Hub, handleMessage func(*Client, []byte)) {
	defer func() {
		c.Disconnect(registry) // Ensure cleanup
		log.Debugf("Connection closed for client %s", c.ConnID)
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			log.Debugf("Error reading message from client %s: %v", c.ConnID, err)
			break
		}
		handleMessage(c, message)
	}
}

// WriteMessages sends outgoing messages to the client.
func (c *Client) WriteMessages() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Debugf("Error sending message to client %s: %v", c.ConnID, err)
			return
		}
	}
}

// Disconnect cleans up client resources and detaches the client from every
// channel it subscribed to.
func (c *Client) Disconnect(registry *hub.Hub) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	c.mu.Unlock()

	if registry != nil {
		registry.Unsubscribe(c)
	}

	c.Conn.Close()
	log.Debugf("Client %s cleanup completed", c.ConnID)
}
