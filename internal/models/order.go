package models

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Order represents a customer order placed from a table
type Order struct {
	gorm.Model
	TableNumber   int
	Items         []OrderItem     `gorm:"foreignkey:OrderID"`
	Status        string          `gorm:"type:varchar(20);not null;index"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(10,2)"`
	TimeReceived  time.Time
	TimeCompleted *time.Time
}

// TableName sets the table name for Order
func (Order) TableName() string {
	return "orders"
}

// OrderItem represents one menu item line within an order.
// Price is captured at order time and does not track later menu edits.
type OrderItem struct {
	gorm.Model
	OrderID    uint            `gorm:"not null;index"`
	MenuItemID uint            `gorm:"not null;index"`
	MenuItem   MenuItem        `gorm:"foreignkey:MenuItemID"`
	Quantity   int             `gorm:"not null"`
	Price      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Notes      string
}

// TableName sets the table name for OrderItem
func (OrderItem) TableName() string {
	return "order_items"
}

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ValidateOrder validates an order before its inventory is consumed
func ValidateOrder(order *Order) error {
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("order item %d quantity must be greater than 0", item.ID)
		}
	}
	return nil
}
