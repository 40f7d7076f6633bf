package testutil_test

import (
	"testing"

	"stockroom/internal/errors"
	"stockroom/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	var count int64
	for _, table := range []string{"categories", "catalog_items", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDBIsolated(t *testing.T) {
	first := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, first)
	testutil.CreateTestCategory(t, first, "Engine", nil)

	second := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, second)

	var count int64
	second.Table("categories").Count(&count)
	if count != 0 {
		t.Errorf("expected empty second database, got %d categories", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	sentinel := testutil.CreateTestSentinel(t, db)
	if sentinel.ID == "" || !sentinel.Active {
		t.Fatalf("expected active sentinel with id, got %+v", sentinel)
	}

	root := testutil.CreateTestCategory(t, db, "Engine", nil)
	child := testutil.CreateTestCategory(t, db, "", root)
	if child.Level != 1 || child.ParentID == nil || *child.ParentID != root.ID {
		t.Errorf("expected child at level 1 under root, got %+v", child)
	}

	item := testutil.CreateTestItem(t, db, child.ID)
	if item.CategoryID != child.ID {
		t.Errorf("expected item in %s, got %s", child.ID, item.CategoryID)
	}

	reloaded := testutil.ReloadCategory(t, db, child.ID)
	if reloaded.Name != child.Name {
		t.Errorf("expected %q, got %q", child.Name, reloaded.Name)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrCategoryNotFound, "custom message")
	testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
