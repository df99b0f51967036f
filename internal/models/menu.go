package models

import (
	"fmt"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// MenuItem represents a dish offered to customers.
// IsAvailable is derived from ingredient stock by the availability checker
// and is not edited directly while the item has a recipe.
type MenuItem struct {
	gorm.Model
	Name        string             `gorm:"not null;index"`
	Description string             `gorm:"type:text"`
	Category    string             `gorm:"index"`
	Price       decimal.Decimal    `gorm:"type:decimal(10,2);not null"`
	IsAvailable bool               `gorm:"default:true"`
	Recipe      []RecipeIngredient `gorm:"foreignkey:MenuItemID"`
}

// TableName sets the table name for MenuItem
func (MenuItem) TableName() string {
	return "menu_items"
}

// RecipeIngredient links a menu item to one ingredient it requires,
// with the quantity consumed per serving.
type RecipeIngredient struct {
	gorm.Model
	MenuItemID   uint            `gorm:"not null;index"`
	IngredientID uint            `gorm:"not null;index"`
	Ingredient   Ingredient      `gorm:"foreignkey:IngredientID"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Unit         string
}

// TableName sets the table name for RecipeIngredient
func (RecipeIngredient) TableName() string {
	return "recipe_ingredients"
}

// MenuCategory represents the category of a menu item
type MenuCategory string

const (
	// Menu categories
	MenuCategoryAppetizer MenuCategory = "appetizer"
	MenuCategoryEntree    MenuCategory = "entree"
	MenuCategorySide      MenuCategory = "side"
	MenuCategoryDessert   MenuCategory = "dessert"
	MenuCategoryBeverage  MenuCategory = "beverage"
	MenuCategorySpecialty MenuCategory = "specialty"
)

// ValidateMenuItem validates a menu item before it is saved
func ValidateMenuItem(item *MenuItem) error {
	if item.Name == "" {
		return fmt.Errorf("menu item name is required")
	}
	if !item.Price.IsPositive() {
		return fmt.Errorf("menu item price must be greater than 0")
	}
	for _, ri := range item.Recipe {
		if !ri.Quantity.IsPositive() {
			return fmt.Errorf("recipe quantity for ingredient %d must be greater than 0", ri.IngredientID)
		}
	}
	return nil
}

// IsInCategory checks if the item belongs to a specific category
func (mi *MenuItem) IsInCategory(category MenuCategory) bool {
	return mi.Category == string(category)
}
