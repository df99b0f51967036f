package inventory

import (
	"fmt"

	"brasserie/internal/models"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Ledger applies non-consumption stock movements (purchase receipts, manual
// adjustments, waste write-offs) through the same discipline the consumption
// processor uses: one transaction, stock write paired with exactly one
// InventoryTransaction row, stock never driven negative.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a new ledger writer backed by db
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// ReceivePurchase adds received stock for an ingredient and folds the
// purchase price into a weighted-average CostPerUnit over the blended stock.
func (l *Ledger) ReceivePurchase(ingredientID uint, quantity, unitCost decimal.Decimal, userID *uint) (*models.InventoryTransaction, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("purchase quantity %s: %w", quantity, ErrInvalidQuantity)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("purchase unit cost %s: %w", unitCost, ErrInvalidQuantity)
	}

	var txn *models.InventoryTransaction
	err := l.withIngredient(ingredientID, func(tx *gorm.DB, ing *models.Ingredient) error {
		newStock := ing.CurrentStock.Add(quantity)

		// Blend old and new cost, weighted by quantity. First purchase into
		// empty stock takes the purchase price outright.
		newCost := unitCost
		if ing.CurrentStock.IsPositive() {
			oldValue := ing.CurrentStock.Mul(ing.CostPerUnit)
			newValue := quantity.Mul(unitCost)
			newCost = oldValue.Add(newValue).Div(newStock).Round(2)
		}

		err := tx.Model(&models.Ingredient{}).Where("id = ?", ing.ID).
			Updates(map[string]interface{}{
				"current_stock": newStock,
				"cost_per_unit": newCost,
			}).Error
		if err != nil {
			return classifyStoreError("receiving purchase", err)
		}

		txn = &models.InventoryTransaction{
			IngredientID:   ing.ID,
			Delta:          quantity,
			Reason:         models.ReasonPurchase,
			ResultingStock: newStock,
			UserID:         userID,
		}
		return createTxn(tx, txn)
	})
	return txn, err
}

// Adjust applies a signed manual correction (stock count, spillage found
// late, etc). The resulting stock may not go negative.
func (l *Ledger) Adjust(ingredientID uint, delta decimal.Decimal, userID *uint, note string) (*models.InventoryTransaction, error) {
	return l.applyDelta(ingredientID, delta, models.ReasonAdjustment, userID, note)
}

// RecordWaste writes off spoiled or discarded stock. Quantity is positive;
// the ledger row carries the negative delta.
func (l *Ledger) RecordWaste(ingredientID uint, quantity decimal.Decimal, userID *uint, note string) (*models.InventoryTransaction, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("waste quantity %s: %w", quantity, ErrInvalidQuantity)
	}
	return l.applyDelta(ingredientID, quantity.Neg(), models.ReasonWaste, userID, note)
}

func (l *Ledger) applyDelta(ingredientID uint, delta decimal.Decimal, reason models.TransactionReason, userID *uint, note string) (*models.InventoryTransaction, error) {
	if delta.IsZero() {
		return nil, fmt.Errorf("zero stock delta: %w", ErrInvalidQuantity)
	}

	var txn *models.InventoryTransaction
	err := l.withIngredient(ingredientID, func(tx *gorm.DB, ing *models.Ingredient) error {
		newStock := ing.CurrentStock.Add(delta)
		if newStock.IsNegative() {
			return &InsufficientStockError{Shortages: []Shortage{{
				IngredientID: ing.ID,
				Name:         ing.Name,
				Required:     delta.Abs(),
				Have:         ing.CurrentStock,
				Unit:         ing.Unit,
			}}}
		}

		err := tx.Model(&models.Ingredient{}).Where("id = ?", ing.ID).
			Update("current_stock", newStock).Error
		if err != nil {
			return classifyStoreError("applying stock delta", err)
		}

		txn = &models.InventoryTransaction{
			IngredientID:   ing.ID,
			Delta:          delta,
			Reason:         reason,
			ResultingStock: newStock,
			UserID:         userID,
			Note:           note,
		}
		return createTxn(tx, txn)
	})
	return txn, err
}

// withIngredient runs fn inside a transaction with the ingredient row locked.
func (l *Ledger) withIngredient(ingredientID uint, fn func(tx *gorm.DB, ing *models.Ingredient) error) error {
	tx := l.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin: %w: %v", ErrPersistenceFailure, tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	ingredients, err := lockIngredients(tx, []uint{ingredientID})
	if err != nil {
		tx.Rollback()
		return asConcurrencyConflict(err)
	}

	if err := fn(tx, &ingredients[0]); err != nil {
		tx.Rollback()
		return asConcurrencyConflict(err)
	}
	if err := tx.Commit().Error; err != nil {
		return asConcurrencyConflict(classifyStoreError("commit", err))
	}
	return nil
}

// asConcurrencyConflict classifies serialization failures that will not be
// retried here, so callers treat them as retryable contention rather than a
// generic storage fault. Other errors pass through unchanged.
func asConcurrencyConflict(err error) error {
	if err != nil && isSerializationFailure(err) {
		return fmt.Errorf("ledger write contention: %w: %v", ErrConcurrencyConflict, err)
	}
	return err
}

func createTxn(tx *gorm.DB, txn *models.InventoryTransaction) error {
	if err := tx.Create(txn).Error; err != nil {
		return classifyStoreError("recording ledger row", err)
	}
	return nil
}

// AuditEntry compares one ingredient's stored stock against the sum of its
// ledger deltas.
type AuditEntry struct {
	IngredientID uint            `json:"ingredient_id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	LedgerSum    decimal.Decimal `json:"ledger_sum"`
	Balanced     bool            `json:"balanced"`
}

// AuditBalances verifies the ledger invariant for every ingredient: the sum
// of InventoryTransaction deltas must equal CurrentStock. Non-zero opening
// stock without a ledger trail shows up here as an imbalance.
func (l *Ledger) AuditBalances() ([]AuditEntry, error) {
	var ingredients []models.Ingredient
	if err := l.db.Order("id asc").Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("loading ingredients: %w: %v", ErrPersistenceFailure, err)
	}

	entries := make([]AuditEntry, 0, len(ingredients))
	for _, ing := range ingredients {
		var txns []models.InventoryTransaction
		err := l.db.Where("ingredient_id = ?", ing.ID).Find(&txns).Error
		if err != nil {
			return nil, fmt.Errorf("loading ledger for ingredient %d: %w: %v", ing.ID, ErrPersistenceFailure, err)
		}

		sum := decimal.Zero
		for _, t := range txns {
			sum = sum.Add(t.Delta)
		}
		entries = append(entries, AuditEntry{
			IngredientID: ing.ID,
			Name:         ing.Name,
			CurrentStock: ing.CurrentStock,
			LedgerSum:    sum,
			Balanced:     ing.CurrentStock.Equal(sum),
		})
	}
	return entries, nil
}

// LowStock returns every ingredient at or below its minimum stock level.
func (l *Ledger) LowStock() ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	if err := l.db.Order("id asc").Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("loading low stock: %w: %v", ErrPersistenceFailure, err)
	}
	low := make([]models.Ingredient, 0, len(ingredients))
	for _, ing := range ingredients {
		if ing.IsLow() {
			low = append(low, ing)
		}
	}
	return low, nil
}

// History returns the ledger rows for one ingredient, newest first.
func (l *Ledger) History(ingredientID uint) ([]models.InventoryTransaction, error) {
	if _, err := loadIngredient(l.db, ingredientID); err != nil {
		return nil, err
	}
	var txns []models.InventoryTransaction
	err := l.db.Where("ingredient_id = ?", ingredientID).Order("id desc").Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("loading ledger history: %w: %v", ErrPersistenceFailure, err)
	}
	return txns, nil
}

func loadIngredient(db *gorm.DB, id uint) (*models.Ingredient, error) {
	var ing models.Ingredient
	if err := db.First(&ing, id).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("ingredient %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading ingredient %d: %w: %v", id, ErrPersistenceFailure, err)
	}
	return &ing, nil
}
