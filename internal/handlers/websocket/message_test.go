package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bidlane/auction-server/configs"
	"github.com/bidlane/auction-server/internal/auth"
	"github.com/bidlane/auction-server/internal/hub"
	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testClient(identity auth.Identity) *Client {
	return &Client{
		ConnID:      "conn-" + identity.Subject,
		Identity:    identity,
		Send:        make(chan []byte, 8),
		RateLimiter: rate.NewLimiter(rate.Every(time.Microsecond), 100),
	}
}

func newTestHandler() (*AuctionHandler, *hub.Hub) {
	cfg := &configs.Config{}
	cfg.WebSocket.SendBufferSize = 8
	cfg.WebSocket.RateLimitBurst = 3
	registry := hub.New()
	return NewAuctionHandler(registry, cfg), registry
}

func recv(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case message := <-client.Send:
		return message
	default:
		t.Fatal("expected a queued message")
		return nil
	}
}

func recvErrorCode(t *testing.T, client *Client) int {
	t.Helper()
	var frame struct {
		Type string `json:"type"`
		Code int    `json:"code"`
	}
	require.NoError(t, json.Unmarshal(recv(t, client), &frame))
	require.Equal(t, "error", frame.Type)
	return frame.Code
}

func TestHandleMessage_BadFormat(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})

	h.HandleMessage(client, []byte("{not json"))
	require.Equal(t, apperrors.ErrBadMessageFormat, recvErrorCode(t, client))
}

func TestHandleMessage_UnknownType(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})

	h.HandleMessage(client, []byte(`{"type":"ping"}`))
	require.Equal(t, apperrors.ErrUnknownMessageType, recvErrorCode(t, client))
}

func TestHandleMessage_JoinAndLeaveAuction(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})

	h.HandleMessage(client, []byte(`{"type":"join-auction","data":{"auctionId":"a1"}}`))
	registry.PublishAuctionChanged("a1")

	var event hub.Event
	require.NoError(t, json.Unmarshal(recv(t, client), &event))
	require.Equal(t, "auction-changed", event.Type)

	h.HandleMessage(client, []byte(`{"type":"leave-auction","data":{"auctionId":"a1"}}`))
	registry.PublishAuctionChanged("a1")
	require.Empty(t, client.Send)
}

func TestHandleMessage_RegisterOwnSupplierChannel(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})

	h.HandleMessage(client, []byte(`{"type":"register-supplier","data":{"supplierId":"s1"}}`))
	registry.PublishRank("a1", types.RankEntry{
		SupplierID: "s1",
		Rank:       1,
		Label:      "L1",
		Total:      decimal.NewFromInt(130),
	})

	var event hub.Event
	require.NoError(t, json.Unmarshal(recv(t, client), &event))
	require.Equal(t, "rank-changed", event.Type)
}

func TestHandleMessage_RegisterForeignSupplierRejected(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})

	h.HandleMessage(client, []byte(`{"type":"register-supplier","data":{"supplierId":"s2"}}`))
	require.Equal(t, apperrors.ErrInvalidToken, recvErrorCode(t, client))

	// The foreign channel stayed private.
	registry.PublishRank("a1", types.RankEntry{SupplierID: "s2", Rank: 1, Label: "L1", Total: decimal.NewFromInt(99)})
	require.Empty(t, client.Send)
}

func TestHandleMessage_BuyerCannotRegisterSupplierChannel(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleBuyer})

	h.HandleMessage(client, []byte(`{"type":"register-supplier","data":{"supplierId":"s1"}}`))
	require.Equal(t, apperrors.ErrInvalidToken, recvErrorCode(t, client))

	registry.PublishRank("a1", types.RankEntry{SupplierID: "s1", Rank: 1, Label: "L1", Total: decimal.NewFromInt(99)})
	require.Empty(t, client.Send)
}

func TestHandleMessage_RateLimited(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})
	client.RateLimiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	h.HandleMessage(client, []byte(`{"type":"join-auction","data":{"auctionId":"a1"}}`))
	require.Empty(t, client.Send)

	h.HandleMessage(client, []byte(`{"type":"join-auction","data":{"auctionId":"a1"}}`))
	require.Equal(t, apperrors.ErrValidation, recvErrorCode(t, client))
}

func TestEnqueue_DoesNotBlockWhenFull(t *testing.T) {
	t.Parallel()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})
	client.Send = make(chan []byte, 1)

	require.True(t, client.Enqueue([]byte("one")))
	require.False(t, client.Enqueue([]byte("two")))
}

func TestHandleMessage_DisconnectedClientDropped(t *testing.T) {
	t.Parallel()
	_, registry := newTestHandler()
	client := testClient(auth.Identity{Subject: "s1", Role: auth.RoleSupplier})

	registry.JoinAuction("a1", client)

	client.mu.Lock()
	client.closed = true
	client.mu.Unlock()

	// Publishing to a closed client detaches it instead of blocking.
	registry.PublishAuctionChanged("a1")
	registry.PublishAuctionChanged("a1")
	require.Empty(t, client.Send)
}
