package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Buyer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	CompanyName string    `json:"companyName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Password    string    `json:"-"`
	CompanyName string    `json:"companyName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Auction struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	BuyerID         string          `json:"buyerId"`
	BidDecrement    decimal.Decimal `json:"bidDecrement"`
	DurationMinutes int             `json:"durationMinutes"`
	EndsAt          time.Time       `json:"endsAt"`
	IsActive        bool            `json:"isActive"`
	ClosedManually  bool            `json:"closedManually"`
	Items           []AuctionItem   `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type AuctionItem struct {
	ID        string `json:"id"`
	AuctionID string `json:"auctionId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UOM       string `json:"uom"`
}

// Bid is the live price of one supplier for one item. There is at most one
// row per (SupplierID, AuctionItemID); resubmission overwrites value and
// timestamp instead of appending.
type Bid struct {
	SupplierID    string          `json:"supplierId"`
	AuctionID     string          `json:"auctionId"`
	AuctionItemID string          `json:"auctionItemId"`
	Value         decimal.Decimal `json:"value"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// BidEntry is a single line of a bid batch as submitted by a supplier.
type BidEntry struct {
	ItemID string          `json:"itemId"`
	Value  decimal.Decimal `json:"value"`
}

// RankEntry is derived from the live bid set and never persisted.
type RankEntry struct {
	SupplierID string          `json:"supplierId"`
	Rank       int             `json:"rank"`
	Label      string          `json:"label"`
	Total      decimal.Decimal `json:"total"`
	LastBidAt  time.Time       `json:"lastBidAt"`
}

// SummaryRow is one line of the buyer-facing reporting view. Unlike the
// private rank channel it names every supplier, since it is meant for
// closed/aggregate reporting.
type SummaryRow struct {
	Rank         int             `json:"rank"`
	SupplierName string          `json:"supplierName"`
	Total        decimal.Decimal `json:"total"`
}
