package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"brasserie/internal/models"

	"github.com/jinzhu/gorm"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	maxConsumeAttempts = 3
	retryBackoff       = 50 * time.Millisecond
)

// Deduction records one ingredient-level stock decrement applied for an order.
type Deduction struct {
	IngredientID uint            `json:"ingredient_id"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// ConsumptionResult is the outcome of a successful ConsumeForOrder call.
type ConsumptionResult struct {
	OrderID    uint            `json:"order_id"`
	Deductions []Deduction     `json:"deductions"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// Processor deducts ingredient stock for fulfilled orders. It is the only
// writer allowed to decrement Ingredient.CurrentStock, and every decrement is
// paired with a ledger row inside the same transaction.
type Processor struct {
	db      *gorm.DB
	checker *Checker
}

// NewProcessor creates a new consumption processor backed by db
func NewProcessor(db *gorm.DB) *Processor {
	return &Processor{db: db, checker: NewChecker(db)}
}

// ConsumeForOrder walks the order's line items, aggregates the ingredient
// quantities their recipes require, and deducts them from stock as one
// all-or-nothing transaction. On success it appends one InventoryTransaction
// per touched ingredient plus one IngredientUsage row per (order item,
// recipe ingredient) pair, then re-checks availability of every menu item
// depending on a deducted ingredient.
//
// Serialization conflicts are retried a bounded number of times before
// surfacing ErrConcurrencyConflict.
func (p *Processor) ConsumeForOrder(ctx context.Context, orderID uint) (*ConsumptionResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxConsumeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("consume order %d: %w: %v", orderID, ErrConcurrencyConflict, err)
		}

		result, err := p.consumeOnce(orderID)
		if err == nil {
			p.refreshAvailability(result)
			return result, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}

		lastErr = err
		log.Printf("consume order %d: attempt %d conflicted, retrying: %v", orderID, attempt, err)
		time.Sleep(time.Duration(attempt) * retryBackoff)
	}
	return nil, fmt.Errorf("consume order %d: %w: %v", orderID, ErrConcurrencyConflict, lastErr)
}

// consumeOnce runs one transactional attempt.
func (p *Processor) consumeOnce(orderID uint) (*ConsumptionResult, error) {
	tx := p.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin: %w: %v", ErrPersistenceFailure, tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	result, err := p.consumeInTx(tx, orderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyStoreError("commit", err)
	}
	return result, nil
}

// classifyStoreError keeps retryable driver errors unwrapped so the caller's
// serialization check still sees them; everything else is a persistence failure.
func classifyStoreError(op string, err error) error {
	if isSerializationFailure(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceFailure, err)
}

func (p *Processor) consumeInTx(tx *gorm.DB, orderID uint) (*ConsumptionResult, error) {
	var order models.Order
	err := tx.Preload("Items").Preload("Items.MenuItem").Preload("Items.MenuItem.Recipe").
		First(&order, orderID).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading order %d: %w: %v", orderID, ErrPersistenceFailure, err)
	}

	required, usages, err := aggregateRequirements(&order)
	if err != nil {
		return nil, err
	}

	result := &ConsumptionResult{OrderID: order.ID, TotalCost: decimal.Zero}
	if len(required) == 0 {
		// No recipes modeled anywhere in the order; nothing to deduct.
		return result, nil
	}

	ingredients, err := lockIngredients(tx, keysAscending(required))
	if err != nil {
		return nil, err
	}

	var shortages []Shortage
	for _, ing := range ingredients {
		need := required[ing.ID]
		if ing.CurrentStock.LessThan(need) {
			shortages = append(shortages, Shortage{
				IngredientID: ing.ID,
				Name:         ing.Name,
				Required:     need,
				Have:         ing.CurrentStock,
				Unit:         ing.Unit,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}

	for _, ing := range ingredients {
		need := required[ing.ID]
		newStock := ing.CurrentStock.Sub(need)

		err = tx.Model(&models.Ingredient{}).Where("id = ?", ing.ID).
			Update("current_stock", newStock).Error
		if err != nil {
			return nil, classifyStoreError(fmt.Sprintf("deducting ingredient %d", ing.ID), err)
		}

		ledger := models.InventoryTransaction{
			IngredientID:   ing.ID,
			Delta:          need.Neg(),
			Reason:         models.ReasonConsumption,
			ResultingStock: newStock,
			OrderID:        &order.ID,
		}
		if err := tx.Create(&ledger).Error; err != nil {
			return nil, classifyStoreError(fmt.Sprintf("recording ledger for ingredient %d", ing.ID), err)
		}

		result.Deductions = append(result.Deductions, Deduction{
			IngredientID: ing.ID,
			Name:         ing.Name,
			Quantity:     need,
			UnitCost:     ing.CostPerUnit,
		})
		result.TotalCost = result.TotalCost.Add(need.Mul(ing.CostPerUnit))
	}

	costByIngredient := make(map[uint]decimal.Decimal, len(ingredients))
	for _, ing := range ingredients {
		costByIngredient[ing.ID] = ing.CostPerUnit
	}
	for i := range usages {
		usages[i].CostAtConsumption = costByIngredient[usages[i].IngredientID]
		if err := tx.Create(&usages[i]).Error; err != nil {
			return nil, classifyStoreError(fmt.Sprintf("recording usage for order item %d", usages[i].OrderItemID), err)
		}
	}
	return result, nil
}

// aggregateRequirements validates the order and sums recipe quantities per
// ingredient across all line items. It also pre-builds the usage audit rows
// (without cost, which is snapshotted after the ingredient rows are locked).
func aggregateRequirements(order *models.Order) (map[uint]decimal.Decimal, []models.IngredientUsage, error) {
	required := map[uint]decimal.Decimal{}
	var usages []models.IngredientUsage

	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("order item %d quantity %d: %w", item.ID, item.Quantity, ErrInvalidOrderData)
		}
		if item.MenuItem.ID == 0 {
			return nil, nil, fmt.Errorf("order item %d references missing menu item %d: %w", item.ID, item.MenuItemID, ErrInvalidOrderData)
		}

		servings := decimal.NewFromInt(int64(item.Quantity))
		for _, ri := range item.MenuItem.Recipe {
			if !ri.Quantity.IsPositive() {
				return nil, nil, fmt.Errorf("menu item %d ingredient %d quantity %s: %w", item.MenuItemID, ri.IngredientID, ri.Quantity, ErrInvalidRecipeData)
			}

			qty := servings.Mul(ri.Quantity)
			required[ri.IngredientID] = required[ri.IngredientID].Add(qty)
			usages = append(usages, models.IngredientUsage{
				OrderID:            order.ID,
				OrderItemID:        item.ID,
				MenuItemID:         item.MenuItemID,
				IngredientID:       ri.IngredientID,
				RecipeIngredientID: ri.ID,
				QuantityConsumed:   qty,
			})
		}
	}
	return required, usages, nil
}

// lockIngredients loads the referenced ingredient rows under a row lock,
// always in ascending id order so overlapping orders acquire locks in the
// same sequence. Missing ids are a data-integrity error.
func lockIngredients(tx *gorm.DB, ids []uint) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	q := tx
	if tx.Dialect().GetName() == "postgres" {
		q = q.Set("gorm:query_option", "FOR UPDATE")
	}
	err := q.Where("id IN (?)", ids).Order("id asc").Find(&ingredients).Error
	if err != nil {
		return nil, classifyStoreError("locking ingredients", err)
	}
	if len(ingredients) != len(ids) {
		found := make(map[uint]bool, len(ingredients))
		for _, ing := range ingredients {
			found[ing.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("ingredient %d: %w", id, ErrNotFound)
			}
		}
	}
	return ingredients, nil
}

func keysAscending(m map[uint]decimal.Decimal) []uint {
	ids := make([]uint, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// refreshAvailability re-checks menu items depending on the ingredients just
// deducted. Runs outside the consumption transaction; a stale flag for a few
// moments is acceptable, a failed refresh is only logged.
func (p *Processor) refreshAvailability(result *ConsumptionResult) {
	ids := make([]uint, len(result.Deductions))
	for i, d := range result.Deductions {
		ids[i] = d.IngredientID
	}
	if _, err := p.checker.RefreshForIngredients(ids); err != nil {
		log.Printf("availability refresh after order %d failed: %v", result.OrderID, err)
	}
}

// isSerializationFailure classifies driver errors that are safe to retry:
// Postgres serialization/deadlock/lock-timeout states and the SQLite busy
// errors its driver reports as plain strings.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
