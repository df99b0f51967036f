package models

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Ingredient represents a raw material tracked in the kitchen inventory.
// CurrentStock is only ever written together with a matching
// InventoryTransaction row; it must never go negative.
type Ingredient struct {
	gorm.Model
	Name          string          `gorm:"not null;unique_index"`
	Category      string          `gorm:"index"`
	Unit          string          `gorm:"not null"`
	CurrentStock  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	MinStockLevel decimal.Decimal `gorm:"type:decimal(20,4)"`
	CostPerUnit   decimal.Decimal `gorm:"type:decimal(10,2)"`
}

// TableName sets the table name for Ingredient
func (Ingredient) TableName() string {
	return "ingredients"
}

// IsLow reports whether the ingredient is at or below its minimum stock level.
func (i *Ingredient) IsLow() bool {
	return i.CurrentStock.LessThanOrEqual(i.MinStockLevel)
}

// TransactionReason classifies a stock movement in the inventory ledger
type TransactionReason string

const (
	// Stock movement reasons
	ReasonPurchase    TransactionReason = "purchase"
	ReasonConsumption TransactionReason = "consumption"
	ReasonAdjustment  TransactionReason = "adjustment"
	ReasonWaste       TransactionReason = "waste"
)

// InventoryTransaction is one row of the append-only stock ledger. Every
// mutation of Ingredient.CurrentStock is paired with exactly one transaction
// row, so the sum of Delta per ingredient always equals its current stock.
type InventoryTransaction struct {
	ID             uint              `gorm:"primary_key"`
	IngredientID   uint              `gorm:"not null;index"`
	Delta          decimal.Decimal   `gorm:"type:decimal(20,4);not null"`
	Reason         TransactionReason `gorm:"type:varchar(20);not null;index"`
	ResultingStock decimal.Decimal   `gorm:"type:decimal(20,4);not null"`
	OrderID        *uint             `gorm:"index"`
	UserID         *uint
	Note           string
	CreatedAt      time.Time
}

// TableName sets the table name for InventoryTransaction
func (InventoryTransaction) TableName() string {
	return "inventory_transactions"
}

// IngredientUsage is an append-only audit record of one ingredient consumed
// for one order item. CostAtConsumption snapshots the ingredient's unit cost
// at deduction time and is never recomputed.
type IngredientUsage struct {
	ID                 uint            `gorm:"primary_key"`
	OrderID            uint            `gorm:"not null;index"`
	OrderItemID        uint            `gorm:"not null;index"`
	MenuItemID         uint            `gorm:"not null"`
	IngredientID       uint            `gorm:"not null;index"`
	RecipeIngredientID uint            `gorm:"not null"`
	QuantityConsumed   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CostAtConsumption  decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CreatedAt          time.Time
}

// TableName sets the table name for IngredientUsage
func (IngredientUsage) TableName() string {
	return "ingredient_usages"
}

// IngredientUnit represents the unit of measurement for an ingredient
type IngredientUnit string

const (
	// Weight units
	UnitGram     IngredientUnit = "g"
	UnitKilogram IngredientUnit = "kg"

	// Volume units
	UnitMilliliter IngredientUnit = "ml"
	UnitLiter      IngredientUnit = "l"

	// Count units
	UnitPiece IngredientUnit = "pc"
)
