package inventory

import (
	"fmt"

	"brasserie/internal/models"

	"github.com/jinzhu/gorm"
)

// AvailabilityResult is the outcome of one availability check.
type AvailabilityResult struct {
	MenuItemID uint       `json:"menu_item_id"`
	Available  bool       `json:"available"`
	Missing    []Shortage `json:"missing,omitempty"`
	Changed    bool       `json:"changed"`
}

// BatchResult aggregates a reconciliation run over the full menu.
// Per-item failures are collected, not fatal to the batch.
type BatchResult struct {
	Checked int                  `json:"checked"`
	Flipped []uint               `json:"flipped,omitempty"`
	Errors  map[uint]string      `json:"errors,omitempty"`
	Results []AvailabilityResult `json:"-"`
}

// Checker decides whether menu items can currently be prepared from stock
// and keeps MenuItem.IsAvailable in sync with that answer.
type Checker struct {
	db *gorm.DB
}

// NewChecker creates a new availability checker backed by db
func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// CheckAvailability determines whether one serving of the menu item can be
// made from current stock. An item with no recipe rows is always available.
// The stored IsAvailable flag is rewritten only when the answer changed.
func (c *Checker) CheckAvailability(menuItemID uint) (*AvailabilityResult, error) {
	var item models.MenuItem
	err := c.db.Preload("Recipe").Preload("Recipe.Ingredient").First(&item, menuItemID).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("menu item %d: %w", menuItemID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading menu item %d: %w: %v", menuItemID, ErrPersistenceFailure, err)
	}
	return c.checkItem(&item)
}

// checkItem evaluates a loaded menu item and persists a flipped flag.
func (c *Checker) checkItem(item *models.MenuItem) (*AvailabilityResult, error) {
	result := &AvailabilityResult{
		MenuItemID: item.ID,
		Available:  true,
	}

	for _, ri := range item.Recipe {
		if !ri.Quantity.IsPositive() {
			return nil, fmt.Errorf("menu item %d ingredient %d: %w", item.ID, ri.IngredientID, ErrInvalidRecipeData)
		}
		if ri.Ingredient.ID == 0 {
			return nil, fmt.Errorf("menu item %d references missing ingredient %d: %w", item.ID, ri.IngredientID, ErrInvalidRecipeData)
		}
		if ri.Ingredient.CurrentStock.LessThan(ri.Quantity) {
			result.Available = false
			result.Missing = append(result.Missing, Shortage{
				IngredientID: ri.IngredientID,
				Name:         ri.Ingredient.Name,
				Required:     ri.Quantity,
				Have:         ri.Ingredient.CurrentStock,
				Unit:         ri.Ingredient.Unit,
			})
		}
	}

	if result.Available != item.IsAvailable {
		err := c.db.Model(item).Update("is_available", result.Available).Error
		if err != nil {
			return nil, fmt.Errorf("updating availability of menu item %d: %w: %v", item.ID, ErrPersistenceFailure, err)
		}
		result.Changed = true
	}
	return result, nil
}

// CheckAll reconciles availability for the whole menu. Items are evaluated
// independently; a malformed recipe on one item is recorded in the result and
// the batch continues.
func (c *Checker) CheckAll() (*BatchResult, error) {
	var items []models.MenuItem
	err := c.db.Preload("Recipe").Preload("Recipe.Ingredient").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("loading menu: %w: %v", ErrPersistenceFailure, err)
	}

	batch := &BatchResult{Errors: map[uint]string{}}
	for i := range items {
		item := &items[i]
		result, err := c.checkItem(item)
		if err != nil {
			batch.Errors[item.ID] = err.Error()
			continue
		}
		batch.Checked++
		batch.Results = append(batch.Results, *result)
		if result.Changed {
			batch.Flipped = append(batch.Flipped, item.ID)
		}
	}
	return batch, nil
}

// RefreshForIngredients re-checks every menu item whose recipe references one
// of the given ingredients. Used after a consumption commit, when those items
// may have flipped to unavailable. Best-effort batch semantics.
func (c *Checker) RefreshForIngredients(ingredientIDs []uint) (*BatchResult, error) {
	if len(ingredientIDs) == 0 {
		return &BatchResult{}, nil
	}

	var links []models.RecipeIngredient
	err := c.db.Where("ingredient_id IN (?)", ingredientIDs).Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("loading dependent recipes: %w: %v", ErrPersistenceFailure, err)
	}

	seen := map[uint]bool{}
	batch := &BatchResult{Errors: map[uint]string{}}
	for _, link := range links {
		if seen[link.MenuItemID] {
			continue
		}
		seen[link.MenuItemID] = true

		result, err := c.CheckAvailability(link.MenuItemID)
		if err != nil {
			batch.Errors[link.MenuItemID] = err.Error()
			continue
		}
		batch.Checked++
		batch.Results = append(batch.Results, *result)
		if result.Changed {
			batch.Flipped = append(batch.Flipped, link.MenuItemID)
		}
	}
	return batch, nil
}
