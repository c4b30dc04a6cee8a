package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bidlane/auction-server/configs"
	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// ACCOUNT METHODS
	CreateBuyer(ctx context.Context, buyer types.Buyer) (types.Buyer, error)
	GetBuyerByEmail(ctx context.Context, email string) (types.Buyer, error)
	CreateSupplier(ctx context.Context, supplier types.Supplier) (types.Supplier, error)
	GetSupplierByEmail(ctx context.Context, email string) (types.Supplier, error)
	GetSupplierByID(ctx context.Context, id string) (types.Supplier, error)
	ListSuppliersByIDs(ctx context.Context, ids []string) (map[string]types.Supplier, error)

	// AUCTION METHODS
	CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error)
	GetAuction(ctx context.Context, id string) (types.Auction, error)
	ListActiveAuctions(ctx context.Context) ([]types.Auction, error)
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]types.Auction, error)
	ListItems(ctx context.Context, auctionID string) ([]types.AuctionItem, error)

	// BID METHODS
	ListBids(ctx context.Context, auctionID string) ([]types.Bid, error)
	UpsertBidBatch(ctx context.Context, auctionID, supplierID string, entries []types.BidEntry, ts time.Time) error

	// SetAuctionActive flips the auction's active flag. It reports whether the
	// row actually transitioned, so concurrent closers can tell who won.
	SetAuctionActive(ctx context.Context, id string, active, manual bool) (bool, error)
}

type service struct {
	db *sql.DB
}

func New(cfg *configs.Config) (Service, error) {
	dbConfig := cfg.Database
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	return &service{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests and the ops console.
func NewWithDB(db *sql.DB) Service {
	return &service{db: db}
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	// Ping the database
	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Errorf("db down: %v", err)
		return stats
	}

	// Database is up, add more statistics
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats (like open connections, in use, idle, etc.)
	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Info("Disconnected from database")
	return s.db.Close()
}

func (s *service) CreateBuyer(ctx context.Context, buyer types.Buyer) (types.Buyer, error) {
	buyer.ID = uuid.NewString()
	query := `INSERT INTO buyers (id, name, email, password, company_name)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query, buyer.ID, buyer.Name, buyer.Email, buyer.Password, buyer.CompanyName).
		Scan(&buyer.CreatedAt)
	if err != nil {
		return types.Buyer{}, fmt.Errorf("error creating buyer: %w", err)
	}
	return buyer, nil
}

func (s *service) GetBuyerByEmail(ctx context.Context, email string) (types.Buyer, error) {
	var buyer types.Buyer
	query := `SELECT id, name, email, password, company_name, created_at FROM buyers WHERE email = $1`
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&buyer.ID, &buyer.Name, &buyer.Email, &buyer.Password, &buyer.CompanyName, &buyer.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Buyer{}, apperrors.New(apperrors.ErrNotFound, "buyer not found")
	}
	if err != nil {
		return types.Buyer{}, fmt.Errorf("error getting buyer by email: %w", err)
	}
	return buyer, nil
}

func (s *service) CreateSupplier(ctx context.Context, supplier types.Supplier) (types.Supplier, error) {
	supplier.ID = uuid.NewString()
	query := `INSERT INTO suppliers (id, name, email, password, company_name)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query, supplier.ID, supplier.Name, supplier.Email, supplier.Password, supplier.CompanyName).
		Scan(&supplier.CreatedAt)
	if err != nil {
		return types.Supplier{}, fmt.Errorf("error creating supplier: %w", err)
	}
	return supplier, nil
}

func (s *service) GetSupplierByEmail(ctx context.Context, email string) (types.Supplier, error) {
	return s.getSupplier(ctx, `SELECT id, name, email, password, company_name, created_at FROM suppliers WHERE email = $1`, email)
}

func (s *service) GetSupplierByID(ctx context.Context, id string) (types.Supplier, error) {
	return s.getSupplier(ctx, `SELECT id, name, email, password, company_name, created_at FROM suppliers WHERE id = $1`, id)
}

func (s *service) getSupplier(ctx context.Context, query, arg string) (types.Supplier, error) {
	var supplier types.Supplier
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&supplier.ID, &supplier.Name, &supplier.Email, &supplier.Password, &supplier.CompanyName, &supplier.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Supplier{}, apperrors.New(apperrors.ErrNotFound, "supplier not found")
	}
	if err != nil {
		return types.Supplier{}, fmt.Errorf("error getting supplier: %w", err)
	}
	return supplier, nil
}

func (s *service) ListSuppliersByIDs(ctx context.Context, ids []string) (map[string]types.Supplier, error) {
	suppliers := make(map[string]types.Supplier, len(ids))
	if len(ids) == 0 {
		return suppliers, nil
	}

	query := `SELECT id, name, email, password, company_name, created_at FROM suppliers WHERE id = ANY($1::uuid[])`
	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("error listing suppliers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var supplier types.Supplier
		err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Email, &supplier.Password, &supplier.CompanyName, &supplier.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning supplier: %w", err)
		}
		suppliers[supplier.ID] = supplier
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over suppliers: %w", err)
	}
	return suppliers, nil
}

func (s *service) CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Auction{}, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	auction.ID = uuid.NewString()
	query := `INSERT INTO auctions (id, title, description, buyer_id, bid_decrement, duration_minutes, ends_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING is_active, closed_manually, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		auction.ID,
		auction.Title,
		auction.Description,
		auction.BuyerID,
		auction.BidDecrement,
		auction.DurationMinutes,
		auction.EndsAt,
	).Scan(&auction.IsActive, &auction.ClosedManually, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return types.Auction{}, fmt.Errorf("error creating auction: %w", err)
	}

	itemQuery := `INSERT INTO auction_items (id, auction_id, name, quantity, uom) VALUES ($1, $2, $3, $4, $5)`
	for i := range auction.Items {
		item := &auction.Items[i]
		item.ID = uuid.NewString()
		item.AuctionID = auction.ID
		if _, err := tx.ExecContext(ctx, itemQuery, item.ID, item.AuctionID, item.Name, item.Quantity, item.UOM); err != nil {
			return types.Auction{}, fmt.Errorf("error creating auction item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Auction{}, fmt.Errorf("error committing auction: %w", err)
	}

	log.Debugf("Auction %s created with %d items", auction.ID, len(auction.Items))
	return auction, nil
}

func (s *service) GetAuction(ctx context.Context, id string) (types.Auction, error) {
	var auction types.Auction
	query := `
        SELECT id, title, description, buyer_id, bid_decrement, duration_minutes,
               ends_at, is_active, closed_manually, created_at, updated_at
        FROM auctions
        WHERE id = $1
    `
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&auction.ID,
		&auction.Title,
		&auction.Description,
		&auction.BuyerID,
		&auction.BidDecrement,
		&auction.DurationMinutes,
		&auction.EndsAt,
		&auction.IsActive,
		&auction.ClosedManually,
		&auction.CreatedAt,
		&auction.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Auction{}, apperrors.New(apperrors.ErrNotFound, "auction not found")
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error getting auction by id: %w", err)
	}
	return auction, nil
}

func (s *service) ListActiveAuctions(ctx context.Context) ([]types.Auction, error) {
	query := `
        SELECT id, title, description, buyer_id, bid_decrement, duration_minutes,
               ends_at, is_active, closed_manually, created_at, updated_at
        FROM auctions
        WHERE is_active
        ORDER BY created_at DESC
    `
	auctions, err := s.queryAuctions(ctx, query)
	if err != nil {
		return nil, err
	}

	for i := range auctions {
		items, err := s.ListItems(ctx, auctions[i].ID)
		if err != nil {
			return nil, err
		}
		auctions[i].Items = items
	}
	return auctions, nil
}

func (s *service) ListExpiredAuctions(ctx context.Context, now time.Time) ([]types.Auction, error) {
	query := `
        SELECT id, title, description, buyer_id, bid_decrement, duration_minutes,
               ends_at, is_active, closed_manually, created_at, updated_at
        FROM auctions
        WHERE is_active AND ends_at < $1
    `
	return s.queryAuctions(ctx, query, now)
}

func (s *service) queryAuctions(ctx context.Context, query string, args ...any) ([]types.Auction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		var auction types.Auction
		err := rows.Scan(
			&auction.ID,
			&auction.Title,
			&auction.Description,
			&auction.BuyerID,
			&auction.BidDecrement,
			&auction.DurationMinutes,
			&auction.EndsAt,
			&auction.IsActive,
			&auction.ClosedManually,
			&auction.CreatedAt,
			&auction.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

func (s *service) ListItems(ctx context.Context, auctionID string) ([]types.AuctionItem, error) {
	query := `SELECT id, auction_id, name, quantity, uom FROM auction_items WHERE auction_id = $1`
	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error listing auction items: %w", err)
	}
	defer rows.Close()

	var items []types.AuctionItem
	for rows.Next() {
		var item types.AuctionItem
		if err := rows.Scan(&item.ID, &item.AuctionID, &item.Name, &item.Quantity, &item.UOM); err != nil {
			return nil, fmt.Errorf("error scanning auction item: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auction items: %w", err)
	}
	return items, nil
}

func (s *service) ListBids(ctx context.Context, auctionID string) ([]types.Bid, error) {
	query := `SELECT supplier_id, auction_id, auction_item_id, value, updated_at FROM bids WHERE auction_id = $1`
	rows, err := s.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("error listing bids: %w", err)
	}
	defer rows.Close()

	var bids []types.Bid
	for rows.Next() {
		var bid types.Bid
		if err := rows.Scan(&bid.SupplierID, &bid.AuctionID, &bid.AuctionItemID, &bid.Value, &bid.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bids: %w", err)
	}
	return bids, nil
}

// UpsertBidBatch applies all entries of a bid batch in one transaction.
// A conflict on (supplier_id, auction_item_id) overwrites value and timestamp.
func (s *service) UpsertBidBatch(ctx context.Context, auctionID, supplierID string, entries []types.BidEntry, ts time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO bids (supplier_id, auction_id, auction_item_id, value, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (supplier_id, auction_item_id)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
    `
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, supplierID, auctionID, entry.ItemID, entry.Value, ts); err != nil {
			return fmt.Errorf("error upserting bid for item %s: %w", entry.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing bid batch: %w", err)
	}

	log.Debugf("Applied bid batch of %d entries for supplier %s on auction %s", len(entries), supplierID, auctionID)
	return nil
}

func (s *service) SetAuctionActive(ctx context.Context, id string, active, manual bool) (bool, error) {
	query := `
        UPDATE auctions
        SET is_active = $2, closed_manually = $3, updated_at = now()
        WHERE id = $1 AND is_active <> $2
    `
	res, err := s.db.ExecContext(ctx, query, id, active, manual)
	if err != nil {
		return false, fmt.Errorf("error updating auction state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return affected == 1, nil
}
