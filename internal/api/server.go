package api

import (
	"errors"
	"net/http"

	"brasserie/internal/inventory"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// Server represents the main API handler for the restaurant backend
type Server struct {
	Router    *gin.Engine
	db        *gorm.DB
	processor *inventory.Processor
	checker   *inventory.Checker
	ledger    *inventory.Ledger
}

// NewServer creates a new API server instance
func NewServer(db *gorm.DB) *Server {
	s := &Server{
		Router:    gin.Default(),
		db:        db,
		processor: inventory.NewProcessor(db),
		checker:   inventory.NewChecker(db),
		ledger:    inventory.NewLedger(db),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.Router.Group("/api/v1")
	{
		// Menu and availability
		v1.POST("/menu", s.CreateMenuItem)
		v1.GET("/menu", s.ListMenu)
		v1.GET("/menu/:id", s.GetMenuItem)
		v1.GET("/menu/:id/availability", s.GetAvailability)
		v1.POST("/menu/reconcile", s.ReconcileMenu)

		// Orders
		v1.POST("/orders", s.CreateOrder)
		v1.GET("/orders", s.ListOrders)
		v1.GET("/orders/:id", s.GetOrder)
		v1.POST("/orders/:id/fulfill", s.FulfillOrder)

		// Inventory
		v1.POST("/inventory", s.CreateIngredient)
		v1.GET("/inventory", s.ListIngredients)
		v1.GET("/inventory/low-stock", s.ListLowStock)
		v1.GET("/inventory/audit", s.AuditLedger)
		v1.GET("/inventory/:id/ledger", s.GetLedgerHistory)
		v1.POST("/inventory/:id/receive", s.ReceivePurchase)
		v1.POST("/inventory/:id/adjust", s.AdjustStock)
		v1.POST("/inventory/:id/waste", s.RecordWaste)
	}
}

func isConflict(err error) bool {
	return errors.Is(err, inventory.ErrConcurrencyConflict)
}

// renderError maps core error types to HTTP status codes.
func renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, inventory.ErrInvalidRecipeData),
		errors.Is(err, inventory.ErrInvalidOrderData),
		errors.Is(err, inventory.ErrInvalidQuantity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case inventory.IsInsufficientStock(err):
		var ise *inventory.InsufficientStockError
		errors.As(err, &ise)
		c.JSON(http.StatusConflict, gin.H{
			"error":                    "insufficient stock",
			"insufficient_ingredients": ise.Shortages,
		})
	case errors.Is(err, inventory.ErrConcurrencyConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
