package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"brasserie/internal/inventory"
	"brasserie/internal/models"
	"brasserie/internal/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// Menu handlers

// CreateMenuItem adds a new dish with its recipe links. The recipe rows are
// validated for positive quantities before anything is written.
func (s *Server) CreateMenuItem(c *gin.Context) {
	var item models.MenuItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := models.ValidateMenuItem(&item); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	item.IsAvailable = true
	if err := s.db.Create(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Derive the availability flag from current stock right away.
	if result, err := s.checker.CheckAvailability(item.ID); err == nil {
		item.IsAvailable = result.Available
	}
	c.JSON(http.StatusCreated, item)
}

// ListMenu retrieves all menu items with their recipes
func (s *Server) ListMenu(c *gin.Context) {
	var items []models.MenuItem
	if err := s.db.Preload("Recipe").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if category := c.Query("category"); category != "" {
		filtered := make([]models.MenuItem, 0, len(items))
		for _, item := range items {
			if item.IsInCategory(models.MenuCategory(category)) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	c.JSON(http.StatusOK, items)
}

// GetMenuItem retrieves a single menu item by ID
func (s *Server) GetMenuItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var item models.MenuItem
	if err := s.db.Preload("Recipe").Preload("Recipe.Ingredient").First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Menu item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetAvailability checks whether a menu item can currently be prepared from
// stock. Persists the flag when the answer changed since the last check.
func (s *Server) GetAvailability(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := s.checker.CheckAvailability(id)
	if err != nil {
		renderError(c, err)
		return
	}
	if result.Changed {
		monitoring.AvailabilityFlips.Inc()
	}
	c.JSON(http.StatusOK, result)
}

// ReconcileMenu runs the batch availability check over the full menu.
// Per-item failures are reported alongside the successful results.
func (s *Server) ReconcileMenu(c *gin.Context) {
	batch, err := s.checker.CheckAll()
	if err != nil {
		renderError(c, err)
		return
	}
	if n := len(batch.Flipped); n > 0 {
		monitoring.AvailabilityFlips.Add(float64(n))
	}
	c.JSON(http.StatusOK, batch)
}

// Order handlers

// CreateOrder records a new customer order. Line prices are captured from the
// current menu and the total is computed server-side.
func (s *Server) CreateOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := models.ValidateOrder(&order); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	total := decimal.Zero
	for i := range order.Items {
		var item models.MenuItem
		if err := s.db.First(&item, order.Items[i].MenuItemID).Error; err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": fmt.Sprintf("menu item %d not found", order.Items[i].MenuItemID),
			})
			return
		}
		order.Items[i].Price = item.Price
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(order.Items[i].Quantity))))
	}
	order.Status = string(models.OrderStatusPending)
	order.TotalAmount = total
	order.TimeReceived = time.Now()

	if err := s.db.Create(&order).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ListOrders retrieves all orders with their items
func (s *Server) ListOrders(c *gin.Context) {
	var orders []models.Order
	if err := s.db.Preload("Items").Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder retrieves a specific order by ID
func (s *Server) GetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var order models.Order
	if err := s.db.Preload("Items").First(&order, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// FulfillOrder marks an order served and consumes the ingredient stock its
// recipes require, all-or-nothing. A second fulfillment of the same order is
// rejected rather than deducting stock twice.
func (s *Server) FulfillOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var order models.Order
	if err := s.db.First(&order, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	// Claim the order with a conditional transition before touching stock,
	// so concurrent fulfill requests cannot both pass a status check and
	// deduct twice. Exactly one request flips the row; the rest see zero
	// rows affected.
	now := time.Now()
	claim := s.db.Model(&models.Order{}).
		Where("id = ? AND status NOT IN (?)", id, []string{
			string(models.OrderStatusServed),
			string(models.OrderStatusCompleted),
		}).
		Updates(map[string]interface{}{
			"status":         string(models.OrderStatusServed),
			"time_completed": &now,
		})
	if claim.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": claim.Error.Error()})
		return
	}
	if claim.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "order already fulfilled"})
		return
	}

	result, err := s.processor.ConsumeForOrder(c.Request.Context(), id)
	if err != nil {
		// Nothing was deducted; release the claim so the order can be
		// retried once the underlying problem is resolved.
		revertErr := s.db.Model(&models.Order{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":         order.Status,
				"time_completed": nil,
			}).Error
		if revertErr != nil {
			log.Printf("releasing fulfillment claim on order %d failed: %v", id, revertErr)
		}

		switch {
		case inventory.IsInsufficientStock(err):
			monitoring.ConsumptionsTotal.WithLabelValues(monitoring.OutcomeInsufficient).Inc()
		case isConflict(err):
			monitoring.ConsumptionsTotal.WithLabelValues(monitoring.OutcomeConflict).Inc()
		default:
			monitoring.ConsumptionsTotal.WithLabelValues(monitoring.OutcomeError).Inc()
		}
		renderError(c, err)
		return
	}
	monitoring.ConsumptionsTotal.WithLabelValues(monitoring.OutcomeOK).Inc()
	cost, _ := result.TotalCost.Float64()
	monitoring.ConsumptionCost.Observe(cost)

	c.JSON(http.StatusOK, result)
}

// Inventory handlers

// CreateIngredient registers a new ingredient with zero stock. Opening stock
// is booked through the purchase endpoint so the ledger stays balanced.
func (s *Server) CreateIngredient(c *gin.Context) {
	var ing models.Ingredient
	if err := c.ShouldBindJSON(&ing); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ing.Name == "" || ing.Unit == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "ingredient name and unit are required"})
		return
	}

	ing.CurrentStock = decimal.Zero
	if err := s.db.Create(&ing).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ing)
}

// ListIngredients retrieves all ingredients with current stock levels
func (s *Server) ListIngredients(c *gin.Context) {
	var ingredients []models.Ingredient
	if err := s.db.Order("id asc").Find(&ingredients).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ingredients)
}

// ListLowStock retrieves ingredients at or below their minimum stock level
func (s *Server) ListLowStock(c *gin.Context) {
	ingredients, err := s.ledger.LowStock()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, ingredients)
}

// AuditLedger verifies the stock ledger balance invariant for every ingredient
func (s *Server) AuditLedger(c *gin.Context) {
	entries, err := s.ledger.AuditBalances()
	if err != nil {
		renderError(c, err)
		return
	}
	imbalanced := 0
	for _, e := range entries {
		if !e.Balanced {
			imbalanced++
		}
	}
	monitoring.LedgerImbalances.Set(float64(imbalanced))
	c.JSON(http.StatusOK, gin.H{"entries": entries, "imbalanced": imbalanced})
}

// GetLedgerHistory retrieves the stock ledger rows for one ingredient
func (s *Server) GetLedgerHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	txns, err := s.ledger.History(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

type stockMovementRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Delta    decimal.Decimal `json:"delta"`
	UserID   *uint           `json:"user_id"`
	Note     string          `json:"note"`
}

// ReceivePurchase records received stock and blends the purchase price into
// the ingredient's weighted-average unit cost
func (s *Server) ReceivePurchase(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req stockMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txn, err := s.ledger.ReceivePurchase(id, req.Quantity, req.UnitCost, req.UserID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// AdjustStock applies a signed manual stock correction
func (s *Server) AdjustStock(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req stockMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txn, err := s.ledger.Adjust(id, req.Delta, req.UserID, req.Note)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// RecordWaste writes off spoiled or discarded stock
func (s *Server) RecordWaste(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req stockMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txn, err := s.ledger.RecordWaste(id, req.Quantity, req.UserID, req.Note)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}
