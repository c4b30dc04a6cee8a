package rest

import (
	"context"
	"errors"
	"time"

	"github.com/bidlane/auction-server/configs"
	"github.com/bidlane/auction-server/internal/auth"
	"github.com/bidlane/auction-server/internal/database"
	ws "github.com/bidlane/auction-server/internal/handlers/websocket"
	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// AuctionEngine is the slice of the engine the REST layer calls into.
type AuctionEngine interface {
	SubmitBatch(ctx context.Context, auctionID, supplierID string, entries []types.BidEntry) error
	CloseAuction(ctx context.Context, auctionID string, manual bool) error
	SweepExpired(ctx context.Context) (int, error)
	Summary(ctx context.Context, auctionID string) ([]types.SummaryRow, error)
}

type Handler struct {
	db     database.Service
	engine AuctionEngine
	secret []byte
}

func NewHandler(db database.Service, engine AuctionEngine, cfg *configs.Config) *Handler {
	return &Handler{
		db:     db,
		engine: engine,
		secret: []byte(cfg.Auth.SecretKey),
	}
}

// NewRouter wires every route of the thin API layer.
func NewRouter(h *Handler, wsHandler *ws.AuctionHandler, cfg *configs.Config) *gin.Engine {
	if cfg.Server.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", h.Health)
	router.GET("/ws/auction", func(c *gin.Context) {
		wsHandler.HandleAuctionWebSocket(c.Writer, c.Request)
	})

	api := router.Group("/api")
	{
		api.POST("/auth/signup", h.Signup)
		api.POST("/auth/login", h.Login)

		auctions := api.Group("/auctions")
		auctions.GET("", h.ListAuctions)
		auctions.GET("/:id/summary", h.Summary)

		authed := auctions.Group("", h.requireAuth())
		authed.POST("", h.requireRole(auth.RoleBuyer), h.CreateAuction)
		authed.POST("/:id/close", h.requireRole(auth.RoleBuyer), h.CloseAuction)
		authed.POST("/:id/bids", h.requireRole(auth.RoleSupplier), h.SubmitBids)
	}

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

const identityKey = "identity"

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.TokenFromRequest(c.Request)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		identity, err := auth.ParseToken(h.secret, raw)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func (h *Handler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := callerIdentity(c)
		if !ok || identity.Role != role {
			respondError(c, apperrors.New(apperrors.ErrInvalidToken, "insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func callerIdentity(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func respondError(c *gin.Context, err error) {
	message := "internal server error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else {
		log.Error("Unhandled error in request", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": message})
}
