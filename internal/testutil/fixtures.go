package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"stockroom/internal/config"
	"stockroom/internal/models"

	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestSentinel creates the active root fallback category.
func CreateTestSentinel(t *testing.T, db *gorm.DB) *models.Category {
	t.Helper()

	sentinel := &models.Category{
		Name:        config.DefaultSentinelName,
		Description: "Fallback for items whose category was deleted",
		Active:      true,
	}
	if err := db.Create(sentinel).Error; err != nil {
		t.Fatalf("failed to create sentinel category: %v", err)
	}
	return sentinel
}

// CreateTestCategory inserts a category row directly, bypassing the service
// validation. parent may be nil for a root; level is taken from the parent.
func CreateTestCategory(t *testing.T, db *gorm.DB, name string, parent *models.Category) *models.Category {
	t.Helper()

	if name == "" {
		name = fmt.Sprintf("Test Category %d", nextID())
	}
	category := &models.Category{Name: name, Active: true}
	if parent != nil {
		category.ParentID = &parent.ID
		category.Level = parent.Level + 1
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestItem creates an active catalog item filed under categoryID.
func CreateTestItem(t *testing.T, db *gorm.DB, categoryID string) *models.Item {
	t.Helper()

	n := nextID()
	item := &models.Item{
		Code:       fmt.Sprintf("ITM-%05d", n),
		Name:       fmt.Sprintf("Test Item %d", n),
		CategoryID: categoryID,
		Active:     true,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test item: %v", err)
	}
	return item
}

// ReloadCategory reads a category back from the database.
func ReloadCategory(t *testing.T, db *gorm.DB, id string) *models.Category {
	t.Helper()

	var category models.Category
	if err := db.First(&category, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload category %s: %v", id, err)
	}
	return &category
}
