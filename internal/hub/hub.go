// Package hub is the publish/subscribe registry for real-time notifications.
// Channels come in two flavors: one public channel per auction (existence,
// open/closed and data-changed events, visible to everyone watching the
// auction) and one private channel per supplier (that supplier's own rank and
// total, visible to nobody else).
//
// The hub is constructed once at process start and injected wherever events
// originate; Close is the explicit shutdown path.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/bidlane/auction-server/pkg/types"
	"github.com/charmbracelet/log"
)

// Subscriber is a live connection handle. Enqueue must not block; it reports
// false when the subscriber can no longer accept messages, at which point the
// hub detaches it.
type Subscriber interface {
	ID() string
	Enqueue(message []byte) bool
}

// Event is the wire envelope for every fan-out message.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type rankChangedData struct {
	AuctionID  string `json:"auctionId"`
	SupplierID string `json:"supplierId"`
	Rank       int    `json:"rank"`
	Label      string `json:"label"`
	Total      string `json:"total"`
}

type auctionData struct {
	AuctionID string `json:"auctionId"`
}

type Hub struct {
	mu        sync.RWMutex
	auctions  map[string]map[Subscriber]bool // public channels, keyed by auction id
	suppliers map[string]map[Subscriber]bool // private channels, keyed by supplier id
	closed    bool
}

func New() *Hub {
	return &Hub{
		auctions:  make(map[string]map[Subscriber]bool),
		suppliers: make(map[string]map[Subscriber]bool),
	}
}

// JoinAuction subscribes sub to an auction's public channel.
func (h *Hub) JoinAuction(auctionID string, sub Subscriber) {
	h.subscribe(h.auctions, auctionID, sub)
	log.Debugf("Subscriber %s joined auction channel %s", sub.ID(), auctionID)
}

// LeaveAuction removes sub from an auction's public channel.
func (h *Hub) LeaveAuction(auctionID string, sub Subscriber) {
	h.unsubscribe(h.auctions, auctionID, sub)
	log.Debugf("Subscriber %s left auction channel %s", sub.ID(), auctionID)
}

// RegisterSupplier subscribes sub to a supplier's private channel. Callers
// must only register a connection for the supplier it authenticated as.
func (h *Hub) RegisterSupplier(supplierID string, sub Subscriber) {
	h.subscribe(h.suppliers, supplierID, sub)
	log.Debugf("Subscriber %s registered supplier channel %s", sub.ID(), supplierID)
}

// Unsubscribe detaches sub from every channel. Tied to connection teardown.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, subs := range h.auctions {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.auctions, key)
		}
	}
	for key, subs := range h.suppliers {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.suppliers, key)
		}
	}
}

func (h *Hub) subscribe(channels map[string]map[Subscriber]bool, key string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	subs, ok := channels[key]
	if !ok {
		subs = make(map[Subscriber]bool)
		channels[key] = subs
	}
	subs[sub] = true
}

func (h *Hub) unsubscribe(channels map[string]map[Subscriber]bool, key string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := channels[key]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(channels, key)
	}
}

// PublishRank delivers a supplier's own rank and total on their private
// channel. The payload never mentions any other supplier.
func (h *Hub) PublishRank(auctionID string, entry types.RankEntry) {
	h.publish(h.suppliers, entry.SupplierID, "rank-changed", rankChangedData{
		AuctionID:  auctionID,
		SupplierID: entry.SupplierID,
		Rank:       entry.Rank,
		Label:      entry.Label,
		Total:      entry.Total.String(),
	})
}

// PublishAuctionChanged announces on the public channel that the auction's
// data changed, without any rank payload. Listeners re-pull their own view.
func (h *Hub) PublishAuctionChanged(auctionID string) {
	h.publish(h.auctions, auctionID, "auction-changed", auctionData{AuctionID: auctionID})
}

// PublishAuctionClosed announces the terminal transition on the public channel.
func (h *Hub) PublishAuctionClosed(auctionID string) {
	h.publish(h.auctions, auctionID, "auction-closed", auctionData{AuctionID: auctionID})
}

func (h *Hub) publish(channels map[string]map[Subscriber]bool, key, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error("Failed to marshal event payload", "type", eventType, "error", err)
		return
	}
	message, err := json.Marshal(Event{Type: eventType, Data: raw})
	if err != nil {
		log.Error("Failed to marshal event", "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs := channels[key]
	for sub := range subs {
		if !sub.Enqueue(message) {
			// Slow or dead subscriber: drop it rather than block the writer.
			// It is expected to reconcile by re-fetching on reconnect.
			delete(subs, sub)
			log.Warnf("Dropping unresponsive subscriber %s from channel %s", sub.ID(), key)
		}
	}
	if len(subs) == 0 {
		delete(channels, key)
	}
}

// Close detaches every subscriber and rejects new subscriptions. Part of the
// graceful shutdown path.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.auctions = make(map[string]map[Subscriber]bool)
	h.suppliers = make(map[string]map[Subscriber]bool)
	log.Info("Notification hub closed")
}
