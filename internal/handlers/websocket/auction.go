package websocket

import (
	"net/http"

	"github.com/bidlane/auction-server/configs"
	"github.com/bidlane/auction-server/internal/auth"
	"github.com/bidlane/auction-server/internal/hub"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type AuctionHandler struct {
	hub    *hub.Hub // Injected dependency
	secret []byte
	cfg    *configs.Config
}

func NewAuctionHandler(registry *hub.Hub, cfg *configs.Config) *AuctionHandler {
	return &AuctionHandler{
		hub:    registry,
		secret: []byte(cfg.Auth.SecretKey),
		cfg:    cfg,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleAuctionWebSocket authenticates the request and upgrades it to a
// websocket connection attached to the notification hub.
func (h *AuctionHandler) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := auth.TokenFromRequest(r)
	if err != nil {
		log.Debug("Websocket upgrade without token", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	identity, err := auth.ParseToken(h.secret, raw)
	if err != nil {
		log.Debug("Websocket upgrade with invalid token", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ConnID:      uuid.NewString(),
		Identity:    identity,
		Conn:        conn,
		Send:        make(chan []byte, h.cfg.WebSocket.SendBufferSize),
		RateLimiter: rate.NewLimiter(1, h.cfg.WebSocket.RateLimitBurst),
	}

	log.Debugf("Client %s connected as %s (%s)", client.ConnID, identity.Subject, identity.Role)

	// Start handling the client
	go client.ReadMessages(h.hub, h.HandleMessage)
	go client.WriteMessages()
}
