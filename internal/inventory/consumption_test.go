package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"brasserie/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeForOrderDeductsStockAndWritesLedger(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "10", "2", "0.50")
	item := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "3"})
	order := seedOrder(t, db, map[uint]int{item.ID: 3})

	result, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)

	// 3 servings x 3 per serving = 9 of 10
	require.Len(t, result.Deductions, 1)
	assert.True(t, result.Deductions[0].Quantity.Equal(dec(t, "9")))
	assert.True(t, result.TotalCost.Equal(dec(t, "4.50")))
	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "1")))

	txns := ledgerRows(t, db, tomato.ID, models.ReasonConsumption)
	require.Len(t, txns, 1)
	assert.True(t, txns[0].Delta.Equal(dec(t, "-9")))
	assert.True(t, txns[0].ResultingStock.Equal(dec(t, "1")))
	require.NotNil(t, txns[0].OrderID)
	assert.Equal(t, order.ID, *txns[0].OrderID)
}

func TestConsumeForOrderInsufficientStockLeavesStateUntouched(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "1", "2", "0.50")
	item := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "3"})
	order := seedOrder(t, db, map[uint]int{item.ID: 1})

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, IsInsufficientStock(err))

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Len(t, ise.Shortages, 1)
	assert.True(t, ise.Shortages[0].Required.Equal(dec(t, "3")))
	assert.True(t, ise.Shortages[0].Have.Equal(dec(t, "1")))

	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "1")))
	assert.Empty(t, ledgerRows(t, db, tomato.ID, models.ReasonConsumption))

	var usages []models.IngredientUsage
	require.NoError(t, db.Find(&usages).Error)
	assert.Empty(t, usages)
}

func TestConsumeForOrderExactBoundary(t *testing.T) {
	db := setupDB(t)
	cream := seedIngredient(t, db, "Cream", "ml", "600", "100", "0.01")
	item := seedMenuItem(t, db, "Panna Cotta", "6.50", map[uint]string{cream.ID: "200"})

	// Exactly the available stock: succeeds and leaves zero.
	exact := seedOrder(t, db, map[uint]int{item.ID: 3})
	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), exact.ID)
	require.NoError(t, err)
	assert.True(t, currentStock(t, db, cream.ID).IsZero())

	// One more serving over zero: fails entirely.
	over := seedOrder(t, db, map[uint]int{item.ID: 1})
	_, err = NewProcessor(db).ConsumeForOrder(context.Background(), over.ID)
	assert.True(t, IsInsufficientStock(err))
	assert.True(t, currentStock(t, db, cream.ID).IsZero())
}

func TestConsumeForOrderFractionalShortage(t *testing.T) {
	db := setupDB(t)
	oil := seedIngredient(t, db, "Olive Oil", "ml", "50", "10", "0.02")
	item := seedMenuItem(t, db, "Dressing", "3.00", map[uint]string{oil.ID: "50.01"})
	order := seedOrder(t, db, map[uint]int{item.ID: 1})

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	assert.True(t, IsInsufficientStock(err), "one hundredth over stock must fail")
	assert.True(t, currentStock(t, db, oil.ID).Equal(dec(t, "50")))
}

func TestConsumeForOrderEmptyOrder(t *testing.T) {
	db := setupDB(t)
	order := seedOrder(t, db, nil)

	result, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Deductions)
	assert.True(t, result.TotalCost.IsZero())
}

func TestConsumeForOrderRecipelessItemContributesNothing(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "10", "2", "0.50")
	bruschetta := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "3"})
	espresso := seedMenuItem(t, db, "Espresso", "2.50", nil)
	order := seedOrder(t, db, map[uint]int{bruschetta.ID: 1, espresso.ID: 4})

	result, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)

	require.Len(t, result.Deductions, 1)
	assert.Equal(t, tomato.ID, result.Deductions[0].IngredientID)
	assert.True(t, result.Deductions[0].Quantity.Equal(dec(t, "3")))
}

func TestConsumeForOrderAggregatesAcrossItems(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "20", "2", "0.50")
	mozzarella := seedIngredient(t, db, "Mozzarella", "g", "500", "50", "0.01")

	caprese := seedMenuItem(t, db, "Caprese", "9.00", map[uint]string{
		tomato.ID:     "2",
		mozzarella.ID: "120",
	})
	soup := seedMenuItem(t, db, "Tomato Soup", "5.50", map[uint]string{tomato.ID: "4"})
	order := seedOrder(t, db, map[uint]int{caprese.ID: 2, soup.ID: 1})

	result, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)

	byIngredient := map[uint]decimal.Decimal{}
	for _, d := range result.Deductions {
		byIngredient[d.IngredientID] = d.Quantity
	}
	// 2x Caprese (2 tomato each) + 1x Soup (4 tomato) = 8
	assert.True(t, byIngredient[tomato.ID].Equal(dec(t, "8")))
	assert.True(t, byIngredient[mozzarella.ID].Equal(dec(t, "240")))

	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "12")))
	assert.True(t, currentStock(t, db, mozzarella.ID).Equal(dec(t, "260")))
}

func TestConsumeForOrderUsageRoundTrip(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "20", "2", "0.50")
	basil := seedIngredient(t, db, "Basil", "g", "100", "10", "0.10")
	item := seedMenuItem(t, db, "Margherita", "11.00", map[uint]string{
		tomato.ID: "3",
		basil.ID:  "5",
	})
	order := seedOrder(t, db, map[uint]int{item.ID: 2})

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)

	// One usage row per (order item x recipe ingredient); summed per
	// ingredient they must reproduce the aggregate requirement.
	var usages []models.IngredientUsage
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&usages).Error)
	require.Len(t, usages, 2)

	sums := map[uint]decimal.Decimal{}
	for _, u := range usages {
		sums[u.IngredientID] = sums[u.IngredientID].Add(u.QuantityConsumed)
		assert.NotZero(t, u.RecipeIngredientID)
		assert.NotZero(t, u.OrderItemID)
	}
	assert.True(t, sums[tomato.ID].Equal(dec(t, "6")))
	assert.True(t, sums[basil.ID].Equal(dec(t, "10")))

	// Cost snapshots taken from the ingredient at deduction time.
	for _, u := range usages {
		if u.IngredientID == tomato.ID {
			assert.True(t, u.CostAtConsumption.Equal(dec(t, "0.50")))
		}
	}
}

func TestConsumeForOrderLedgerStaysBalanced(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "20", "2", "0.50")
	item := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "3"})
	order := seedOrder(t, db, map[uint]int{item.ID: 4})

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)

	entries, err := NewLedger(db).AuditBalances()
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.Balanced, "ingredient %d: stock %s vs ledger %s", e.IngredientID, e.CurrentStock, e.LedgerSum)
	}
}

func TestConsumeForOrderSecondOrderRevalidates(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "10", "2", "0.50")
	item := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "6"})

	first := seedOrder(t, db, map[uint]int{item.ID: 1})
	second := seedOrder(t, db, map[uint]int{item.ID: 1})

	processor := NewProcessor(db)
	_, err := processor.ConsumeForOrder(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "4")))

	// The second order validates against post-commit stock, not its own
	// stale read: 6 > 4, so it must fail without overdrawing.
	_, err = processor.ConsumeForOrder(context.Background(), second.ID)
	assert.True(t, IsInsufficientStock(err))
	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "4")))
}

func TestConsumeForOrderConcurrentOrdersNeverOverdraw(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "10", "2", "0.50")
	item := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "6"})

	first := seedOrder(t, db, map[uint]int{item.ID: 1})
	second := seedOrder(t, db, map[uint]int{item.ID: 1})

	processor := NewProcessor(db)
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, orderID := range []uint{first.ID, second.ID} {
		wg.Add(1)
		go func(slot int, orderID uint) {
			defer wg.Done()
			_, results[slot] = processor.ConsumeForOrder(context.Background(), orderID)
		}(i, orderID)
	}
	wg.Wait()

	// Stock covers one order but not both, so whichever transaction lands
	// second must be turned away with a clean reason, never an overdraw.
	var served, refused int
	for _, err := range results {
		switch {
		case err == nil:
			served++
		case IsInsufficientStock(err) || errors.Is(err, ErrConcurrencyConflict):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, served)
	assert.Equal(t, 1, refused)
	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "4")))

	txns := ledgerRows(t, db, tomato.ID, models.ReasonConsumption)
	assert.Len(t, txns, 1)
}

func TestConsumeForOrderFlipsAvailabilityAfterCommit(t *testing.T) {
	db := setupDB(t)
	saffron := seedIngredient(t, db, "Saffron", "g", "4", "1", "12.00")
	paella := seedMenuItem(t, db, "Paella", "24.00", map[uint]string{saffron.ID: "2"})
	order := seedOrder(t, db, map[uint]int{paella.ID: 2})

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	require.NoError(t, err)

	// All saffron consumed; the post-commit refresh flips the dish off.
	var stored models.MenuItem
	require.NoError(t, db.First(&stored, paella.ID).Error)
	assert.False(t, stored.IsAvailable)
}

func TestConsumeForOrderRejectsInvalidOrderData(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "10", "2", "0.50")
	item := seedMenuItem(t, db, "Bruschetta", "8.50", map[uint]string{tomato.ID: "3"})

	order := &models.Order{Status: string(models.OrderStatusPending)}
	require.NoError(t, db.Create(order).Error)
	line := &models.OrderItem{OrderID: order.ID, MenuItemID: item.ID, Quantity: 0, Price: item.Price}
	require.NoError(t, db.Create(line).Error)

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrInvalidOrderData)
	assert.True(t, currentStock(t, db, tomato.ID).Equal(dec(t, "10")))
}

func TestConsumeForOrderRejectsInvalidRecipeData(t *testing.T) {
	db := setupDB(t)
	tomato := seedIngredient(t, db, "Tomato", "pc", "10", "2", "0.50")
	item := seedMenuItem(t, db, "Broken Dish", "5.00", nil)
	badLink := &models.RecipeIngredient{MenuItemID: item.ID, IngredientID: tomato.ID, Quantity: dec(t, "0")}
	require.NoError(t, db.Create(badLink).Error)
	order := seedOrder(t, db, map[uint]int{item.ID: 1})

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), order.ID)
	assert.ErrorIs(t, err, ErrInvalidRecipeData)
}

func TestConsumeForOrderUnknownOrder(t *testing.T) {
	db := setupDB(t)

	_, err := NewProcessor(db).ConsumeForOrder(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeForOrderCancelledContext(t *testing.T) {
	db := setupDB(t)
	order := seedOrder(t, db, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessor(db).ConsumeForOrder(ctx, order.ID)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}
