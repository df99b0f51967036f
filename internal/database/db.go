package database

import (
	"brasserie/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var DB *gorm.DB

// InitDB initializes the database connection.
// dialect is "sqlite3" or "postgres"; source is the file path or DSN.
func InitDB(dialect, source string) error {
	var err error
	DB, err = gorm.Open(dialect, source)
	if err != nil {
		return err
	}
	return nil
}

// Migrate creates or updates the schema for all models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MenuItem{},
		&models.RecipeIngredient{},
		&models.Ingredient{},
		&models.Order{},
		&models.OrderItem{},
		&models.InventoryTransaction{},
		&models.IngredientUsage{},
	).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// CloseDB closes the database connection
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
