package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a throwaway database with the schema applied.
func startPostgres(t *testing.T) Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:16-alpine",
		pgcontainer.WithDatabase("auctions_test"),
		pgcontainer.WithUsername("postgres"),
		pgcontainer.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migration, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, migration.Up())

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewWithDB(db)
}

func seedSupplier(t *testing.T, svc Service, name, email string) types.Supplier {
	t.Helper()
	supplier, err := svc.CreateSupplier(context.Background(), types.Supplier{
		Name:     name,
		Email:    email,
		Password: "hashed",
	})
	require.NoError(t, err)
	return supplier
}

func seedAuction(t *testing.T, svc Service, endsAt time.Time) types.Auction {
	t.Helper()
	ctx := context.Background()
	buyer, err := svc.CreateBuyer(ctx, types.Buyer{
		Name:     "Buyer Inc",
		Email:    "buyer-" + endsAt.Format("150405.000000") + "@example.com",
		Password: "hashed",
	})
	require.NoError(t, err)

	auction, err := svc.CreateAuction(ctx, types.Auction{
		Title:           "Steel beams Q3",
		BuyerID:         buyer.ID,
		BidDecrement:    decimal.NewFromInt(5),
		DurationMinutes: 60,
		EndsAt:          endsAt,
		Items: []types.AuctionItem{
			{Name: "Beam 12m", Quantity: 40, UOM: "pcs"},
			{Name: "Beam 6m", Quantity: 80, UOM: "pcs"},
		},
	})
	require.NoError(t, err)
	require.Len(t, auction.Items, 2)
	return auction
}

func TestDatabase_Postgres(t *testing.T) {
	svc := startPostgres(t)
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		require.Equal(t, "up", svc.Health()["status"])
	})

	t.Run("accounts", func(t *testing.T) {
		supplier := seedSupplier(t, svc, "Acme Metals", "acme@example.com")
		require.NotEmpty(t, supplier.ID)

		fetched, err := svc.GetSupplierByEmail(ctx, "acme@example.com")
		require.NoError(t, err)
		require.Equal(t, supplier.ID, fetched.ID)
		require.Equal(t, "hashed", fetched.Password)

		byID, err := svc.GetSupplierByID(ctx, supplier.ID)
		require.NoError(t, err)
		require.Equal(t, "Acme Metals", byID.Name)

		_, err = svc.GetSupplierByEmail(ctx, "nobody@example.com")
		require.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))

		named, err := svc.ListSuppliersByIDs(ctx, []string{supplier.ID})
		require.NoError(t, err)
		require.Equal(t, "Acme Metals", named[supplier.ID].Name)
	})

	t.Run("auction round trip", func(t *testing.T) {
		auction := seedAuction(t, svc, time.Now().Add(time.Hour))

		fetched, err := svc.GetAuction(ctx, auction.ID)
		require.NoError(t, err)
		require.True(t, fetched.IsActive)
		require.Equal(t, "Steel beams Q3", fetched.Title)

		items, err := svc.ListItems(ctx, auction.ID)
		require.NoError(t, err)
		require.Len(t, items, 2)

		active, err := svc.ListActiveAuctions(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, active)

		_, err = svc.GetAuction(ctx, "00000000-0000-0000-0000-000000000000")
		require.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
	})

	t.Run("bid upsert is idempotent per supplier and item", func(t *testing.T) {
		auction := seedAuction(t, svc, time.Now().Add(time.Hour))
		supplier := seedSupplier(t, svc, "Bolt & Co", "bolt@example.com")
		itemID := auction.Items[0].ID

		first := time.Now().UTC().Truncate(time.Microsecond)
		err := svc.UpsertBidBatch(ctx, auction.ID, supplier.ID,
			[]types.BidEntry{{ItemID: itemID, Value: decimal.NewFromInt(100)}}, first)
		require.NoError(t, err)

		// Resubmission overwrites in place instead of appending.
		second := first.Add(time.Minute)
		err = svc.UpsertBidBatch(ctx, auction.ID, supplier.ID,
			[]types.BidEntry{{ItemID: itemID, Value: decimal.NewFromInt(80)}}, second)
		require.NoError(t, err)

		bids, err := svc.ListBids(ctx, auction.ID)
		require.NoError(t, err)
		require.Len(t, bids, 1)
		require.True(t, bids[0].Value.Equal(decimal.NewFromInt(80)))
		require.Equal(t, second.Unix(), bids[0].UpdatedAt.Unix())
	})

	t.Run("batch is atomic", func(t *testing.T) {
		auction := seedAuction(t, svc, time.Now().Add(time.Hour))
		supplier := seedSupplier(t, svc, "Crux Steel", "crux@example.com")

		// Second entry violates the items foreign key; the first must roll back.
		err := svc.UpsertBidBatch(ctx, auction.ID, supplier.ID, []types.BidEntry{
			{ItemID: auction.Items[0].ID, Value: decimal.NewFromInt(100)},
			{ItemID: "00000000-0000-0000-0000-000000000000", Value: decimal.NewFromInt(50)},
		}, time.Now())
		require.Error(t, err)

		bids, err := svc.ListBids(ctx, auction.ID)
		require.NoError(t, err)
		require.Empty(t, bids)
	})

	t.Run("close transitions exactly once", func(t *testing.T) {
		auction := seedAuction(t, svc, time.Now().Add(time.Hour))

		transitioned, err := svc.SetAuctionActive(ctx, auction.ID, false, true)
		require.NoError(t, err)
		require.True(t, transitioned)

		transitioned, err = svc.SetAuctionActive(ctx, auction.ID, false, true)
		require.NoError(t, err)
		require.False(t, transitioned)

		fetched, err := svc.GetAuction(ctx, auction.ID)
		require.NoError(t, err)
		require.False(t, fetched.IsActive)
		require.True(t, fetched.ClosedManually)
	})

	t.Run("expired listing", func(t *testing.T) {
		expired := seedAuction(t, svc, time.Now().Add(-time.Minute))
		live := seedAuction(t, svc, time.Now().Add(time.Hour))

		rows, err := svc.ListExpiredAuctions(ctx, time.Now())
		require.NoError(t, err)

		ids := make(map[string]bool)
		for _, auction := range rows {
			ids[auction.ID] = true
		}
		require.True(t, ids[expired.ID])
		require.False(t, ids[live.ID])
	})
}
