package rest

import (
	"net/http"
	"time"

	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createAuctionRequest struct {
	Title           string          `json:"title" binding:"required"`
	Description     string          `json:"description"`
	BidDecrement    decimal.Decimal `json:"bidDecrement"`
	DurationMinutes int             `json:"durationMinutes" binding:"required,gt=0"`
	Items           []struct {
		Name     string `json:"name" binding:"required"`
		Quantity int    `json:"quantity" binding:"required,gt=0"`
		UOM      string `json:"uom"`
	} `json:"items" binding:"required,min=1"`
}

type submitBidsRequest struct {
	Bids []types.BidEntry `json:"bids" binding:"required,min=1"`
}

func (h *Handler) CreateAuction(c *gin.Context) {
	identity, _ := callerIdentity(c)

	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.WrapCode(apperrors.ErrValidation, err, "invalid auction payload"))
		return
	}

	auction := types.Auction{
		Title:           req.Title,
		Description:     req.Description,
		BuyerID:         identity.Subject,
		BidDecrement:    req.BidDecrement,
		DurationMinutes: req.DurationMinutes,
		EndsAt:          time.Now().Add(time.Duration(req.DurationMinutes) * time.Minute),
	}
	for _, item := range req.Items {
		auction.Items = append(auction.Items, types.AuctionItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			UOM:      item.UOM,
		})
	}

	created, err := h.db.CreateAuction(c.Request.Context(), auction)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Auction created", "auction": created})
}

// ListAuctions returns the open auctions. Every listing read also runs the
// expiry sweep, so deadlines take effect without a dedicated timer.
func (h *Handler) ListAuctions(c *gin.Context) {
	if closed, err := h.engine.SweepExpired(c.Request.Context()); err != nil {
		log.Error("Expiry sweep failed", "error", err)
	} else if closed > 0 {
		log.Infof("Expiry sweep closed %d auctions", closed)
	}

	auctions, err := h.db.ListActiveAuctions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctions": auctions})
}

func (h *Handler) CloseAuction(c *gin.Context) {
	if err := h.engine.CloseAuction(c.Request.Context(), c.Param("id"), true); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// SubmitBids applies a supplier's bid batch. The supplier is always the
// authenticated caller; there is no way to bid on someone else's behalf.
func (h *Handler) SubmitBids(c *gin.Context) {
	identity, _ := callerIdentity(c)

	var req submitBidsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.WrapCode(apperrors.ErrValidation, err, "invalid bid payload"))
		return
	}

	err := h.engine.SubmitBatch(c.Request.Context(), c.Param("id"), identity.Subject, req.Bids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (h *Handler) Summary(c *gin.Context) {
	rows, err := h.engine.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctionId": c.Param("id"), "summary": rows})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.db.Health())
}
