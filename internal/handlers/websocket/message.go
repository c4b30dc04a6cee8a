package websocket

import (
	"encoding/json"

	"github.com/bidlane/auction-server/internal/auth"
	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/charmbracelet/log"
)

type Message struct {
	Type string          `json:"type"` // Type of the message (e.g., "join-auction")
	Data json.RawMessage `json:"data"` // Payload of the message
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HandleMessage routes the message based on its type.
func (h *AuctionHandler) HandleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ConnID)
		client.Enqueue(apperrors.New(apperrors.ErrValidation, "Rate limit exceeded").ToJSON())
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ConnID, err)
		client.Enqueue(apperrors.New(apperrors.ErrBadMessageFormat, "Invalid message format").ToJSON())
		return
	}

	switch msg.Type {
	case "join-auction":
		h.handleJoinAuction(client, msg.Data)
	case "leave-auction":
		h.handleLeaveAuction(client, msg.Data)
	case "register-supplier":
		h.handleRegisterSupplier(client, msg.Data)
	default:
		log.Debugf("Unknown message type from client %s: %s", client.ConnID, msg.Type)
		client.Enqueue(apperrors.New(apperrors.ErrUnknownMessageType, "Unknown message type").ToJSON())
	}
}

type auctionRef struct {
	AuctionID string `json:"auctionId"`
}

type supplierRef struct {
	SupplierID string `json:"supplierId"`
}

func (h *AuctionHandler) handleJoinAuction(client *Client, data json.RawMessage) {
	var ref auctionRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.AuctionID == "" {
		client.Enqueue(apperrors.New(apperrors.ErrBadMessageFormat, "Invalid join-auction message").ToJSON())
		return
	}
	h.hub.JoinAuction(ref.AuctionID, client)
}

func (h *AuctionHandler) handleLeaveAuction(client *Client, data json.RawMessage) {
	var ref auctionRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.AuctionID == "" {
		client.Enqueue(apperrors.New(apperrors.ErrBadMessageFormat, "Invalid leave-auction message").ToJSON())
		return
	}
	h.hub.LeaveAuction(ref.AuctionID, client)
}

// handleRegisterSupplier attaches the connection to a supplier's private rank
// channel. The connection may only register as the supplier it authenticated
// as; anything else would leak competitor ranks.
func (h *AuctionHandler) handleRegisterSupplier(client *Client, data json.RawMessage) {
	var ref supplierRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.SupplierID == "" {
		client.Enqueue(apperrors.New(apperrors.ErrBadMessageFormat, "Invalid register-supplier message").ToJSON())
		return
	}
	if client.Identity.Role != auth.RoleSupplier || client.Identity.Subject != ref.SupplierID {
		log.Warnf("Client %s attempted to register foreign supplier channel %s", client.ConnID, ref.SupplierID)
		client.Enqueue(apperrors.New(apperrors.ErrInvalidToken, "Cannot register as another supplier").ToJSON())
		return
	}
	h.hub.RegisterSupplier(ref.SupplierID, client)
}
