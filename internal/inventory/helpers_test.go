package inventory

import (
	"testing"

	"brasserie/internal/database"
	"brasserie/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Keep the pool on a single connection so every query sees the same
	// in-memory database.
	db.DB().SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() { db.Close() })
	return db
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

// seedIngredient creates an ingredient and books its opening stock through
// the ledger, so the balance audit holds from the start.
func seedIngredient(t *testing.T, db *gorm.DB, name, unit, stock, minLevel, cost string) *models.Ingredient {
	t.Helper()

	ing := &models.Ingredient{
		Name:          name,
		Unit:          unit,
		MinStockLevel: dec(t, minLevel),
		CurrentStock:  decimal.Zero,
		CostPerUnit:   decimal.Zero,
	}
	require.NoError(t, db.Create(ing).Error)

	opening := dec(t, stock)
	if opening.IsPositive() {
		_, err := NewLedger(db).ReceivePurchase(ing.ID, opening, dec(t, cost), nil)
		require.NoError(t, err)
	}
	require.NoError(t, db.First(ing, ing.ID).Error)
	return ing
}

func seedMenuItem(t *testing.T, db *gorm.DB, name, price string, recipe map[uint]string) *models.MenuItem {
	t.Helper()

	item := &models.MenuItem{
		Name:        name,
		Category:    string(models.MenuCategoryEntree),
		Price:       dec(t, price),
		IsAvailable: true,
	}
	require.NoError(t, db.Create(item).Error)

	for ingredientID, qty := range recipe {
		link := &models.RecipeIngredient{
			MenuItemID:   item.ID,
			IngredientID: ingredientID,
			Quantity:     dec(t, qty),
		}
		require.NoError(t, db.Create(link).Error)
	}
	return item
}

func seedOrder(t *testing.T, db *gorm.DB, lines map[uint]int) *models.Order {
	t.Helper()

	order := &models.Order{Status: string(models.OrderStatusPending)}
	require.NoError(t, db.Create(order).Error)

	for menuItemID, qty := range lines {
		var item models.MenuItem
		require.NoError(t, db.First(&item, menuItemID).Error)

		line := &models.OrderItem{
			OrderID:    order.ID,
			MenuItemID: menuItemID,
			Quantity:   qty,
			Price:      item.Price,
		}
		require.NoError(t, db.Create(line).Error)
	}
	require.NoError(t, db.Preload("Items").First(order, order.ID).Error)
	return order
}

func ledgerRows(t *testing.T, db *gorm.DB, ingredientID uint, reason models.TransactionReason) []models.InventoryTransaction {
	t.Helper()
	var txns []models.InventoryTransaction
	require.NoError(t, db.Where("ingredient_id = ? AND reason = ?", ingredientID, reason).Find(&txns).Error)
	return txns
}

func currentStock(t *testing.T, db *gorm.DB, ingredientID uint) decimal.Decimal {
	t.Helper()
	var ing models.Ingredient
	require.NoError(t, db.First(&ing, ingredientID).Error)
	return ing.CurrentStock
}
