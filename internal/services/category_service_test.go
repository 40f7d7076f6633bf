package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm"

	"stockroom/internal/cache"
	apperrors "stockroom/internal/errors"
	"stockroom/internal/hierarchy"
	"stockroom/internal/models"
	"stockroom/internal/pagination"
	"stockroom/internal/testutil"
)

type categoryFixture struct {
	db       *gorm.DB
	svc      CategoryServicer
	items    ItemServicer
	sentinel *models.Category
	cache    *cache.Memory
}

func newCategoryFixture(t *testing.T) *categoryFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	sentinel := testutil.CreateTestSentinel(t, db)
	items := NewItemService(db)
	breadcrumbs := cache.NewMemory()
	return &categoryFixture{
		db:       db,
		svc:      NewCategoryService(db, items, breadcrumbs, sentinel.ID),
		items:    items,
		sentinel: sentinel,
		cache:    breadcrumbs,
	}
}

func (f *categoryFixture) create(t *testing.T, name string, parent *models.Category) *models.Category {
	t.Helper()
	input := CategoryInput{Name: name}
	if parent != nil {
		input.ParentID = &parent.ID
	}
	category, err := f.svc.CreateCategory(input)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return category
}

// abc builds the three-tier chain A > B > C.
func (f *categoryFixture) abc(t *testing.T) (a, b, c *models.Category) {
	t.Helper()
	a = f.create(t, "A", nil)
	b = f.create(t, "B", a)
	c = f.create(t, "C", b)
	return a, b, c
}

// assertTreeHealthy checks acyclicity, stored levels and the depth bound
// for every live category.
func assertTreeHealthy(t *testing.T, db *gorm.DB) {
	t.Helper()
	src, err := loadSnapshot(db, false)
	testutil.AssertNoError(t, err)
	if report := hierarchy.Inspect(src); !report.Healthy() {
		t.Errorf("expected healthy tree, got %+v", report)
	}
}

func strPtr(s string) *string { return &s }

func TestCreateCategory(t *testing.T) {
	t.Run("scenario_a_levels_and_depth_cap", func(t *testing.T) {
		f := newCategoryFixture(t)

		a, b, c := f.abc(t)
		if a.Level != 0 || b.Level != 1 || c.Level != 2 {
			t.Errorf("expected levels 0/1/2, got %d/%d/%d", a.Level, b.Level, c.Level)
		}

		_, err := f.svc.CreateCategory(CategoryInput{Name: "D", ParentID: &c.ID})
		testutil.AssertAppError(t, err, "DEPTH_EXCEEDED")

		var count int64
		f.db.Model(&models.Category{}).Where("name = ?", "D").Count(&count)
		if count != 0 {
			t.Errorf("expected rejected category not to be stored, found %d", count)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		f := newCategoryFixture(t)

		category, err := f.svc.CreateCategory(CategoryInput{Name: "  Engine  ", Description: "Engine parts", Order: 3})
		testutil.AssertNoError(t, err)

		if category.ID == "" {
			t.Fatal("expected generated category ID")
		}
		if category.Name != "Engine" {
			t.Errorf("expected trimmed name Engine, got %q", category.Name)
		}
		if !category.Active {
			t.Error("expected new category to be active")
		}
		if category.SortOrder != 3 {
			t.Errorf("expected order 3, got %d", category.SortOrder)
		}
		if !category.IsRoot() {
			t.Error("expected root category")
		}
	})

	t.Run("inactive_on_request", func(t *testing.T) {
		f := newCategoryFixture(t)
		inactive := false

		category, err := f.svc.CreateCategory(CategoryInput{Name: "Archive", Active: &inactive})
		testutil.AssertNoError(t, err)

		reloaded := testutil.ReloadCategory(t, f.db, category.ID)
		if reloaded.Active {
			t.Error("expected stored category to be inactive")
		}
	})

	t.Run("parent_not_found", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.CreateCategory(CategoryInput{Name: "Orphan", ParentID: strPtr("0192f7a0-0000-7000-8000-00000000dead")})
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("empty_name", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.CreateCategory(CategoryInput{Name: "   "})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("name_too_long", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.CreateCategory(CategoryInput{Name: strings.Repeat("x", models.CategoryNameMaxLength+1)})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("name_length_counts_characters", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.CreateCategory(CategoryInput{Name: strings.Repeat("è", models.CategoryNameMaxLength)})
		testutil.AssertNoError(t, err)
	})

	t.Run("negative_order", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.CreateCategory(CategoryInput{Name: "Engine", Order: -1})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("duplicate_names_allowed", func(t *testing.T) {
		f := newCategoryFixture(t)
		a := f.create(t, "Engine", nil)
		b := f.create(t, "Tools", nil)
		f.create(t, "Misc", a)
		f.create(t, "Misc", b)
	})
}

func TestMoveCategory(t *testing.T) {
	t.Run("scenario_b_descendant_target", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, b, c := f.abc(t)

		_, err := f.svc.MoveCategory(b.ID, &c.ID, 0)
		testutil.AssertAppError(t, err, "DESCENDANT_TARGET")

		reloaded := testutil.ReloadCategory(t, f.db, b.ID)
		if reloaded.ParentID == nil || *reloaded.ParentID != a.ID {
			t.Errorf("expected B to stay under A, got %v", reloaded.ParentID)
		}
	})

	t.Run("self_parent", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, _ := f.abc(t)

		_, err := f.svc.MoveCategory(b.ID, &b.ID, 0)
		testutil.AssertAppError(t, err, "SELF_PARENT_CATEGORY")
	})

	t.Run("self_parent_checked_before_descendants", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, _, _ := f.abc(t)

		_, err := f.svc.MoveCategory(a.ID, &a.ID, 0)
		testutil.AssertAppError(t, err, "SELF_PARENT_CATEGORY")
	})

	t.Run("target_at_max_level", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, _, c := f.abc(t)
		tools := f.create(t, "Tools", nil)

		_, err := f.svc.MoveCategory(tools.ID, &c.ID, 0)
		testutil.AssertAppError(t, err, "DEPTH_EXCEEDED")
	})

	t.Run("subtree_must_fit", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, _ := f.abc(t)
		tools := f.create(t, "Tools", nil)
		wrenches := f.create(t, "Wrenches", tools)

		// B carries C; under Wrenches (level 1) C would land on level 3.
		_, err := f.svc.MoveCategory(b.ID, &wrenches.ID, 0)
		testutil.AssertAppError(t, err, "DEPTH_EXCEEDED")
		assertTreeHealthy(t, f.db)
	})

	t.Run("target_not_found", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, _ := f.abc(t)

		_, err := f.svc.MoveCategory(b.ID, strPtr("0192f7a0-0000-7000-8000-00000000dead"), 0)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("node_not_found", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.MoveCategory("0192f7a0-0000-7000-8000-00000000dead", nil, 0)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("detach_to_root_relevels_subtree", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, c := f.abc(t)

		result, err := f.svc.MoveCategory(b.ID, nil, 0)
		testutil.AssertNoError(t, err)

		if result.Level != 0 || result.ParentID != nil || !result.Changed {
			t.Errorf("expected B at root level 0, got %+v", result)
		}
		if !reflect.DeepEqual(result.Breadcrumb, []string{"B"}) || result.Path != "B" {
			t.Errorf("unexpected breadcrumb %v / %q", result.Breadcrumb, result.Path)
		}
		testutil.AssertLevels(t, f.db, map[string]int{b.ID: 0, c.ID: 1})
		assertTreeHealthy(t, f.db)
	})

	t.Run("move_under_other_root", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, c := f.abc(t)
		tools := f.create(t, "Tools", nil)

		result, err := f.svc.MoveCategory(b.ID, &tools.ID, 4)
		testutil.AssertNoError(t, err)

		if result.Level != 1 || result.Order != 4 {
			t.Errorf("expected level 1 order 4, got %+v", result)
		}
		if result.Path != "Tools > B" {
			t.Errorf("expected path 'Tools > B', got %q", result.Path)
		}
		testutil.AssertLevels(t, f.db, map[string]int{b.ID: 1, c.ID: 2})
		assertTreeHealthy(t, f.db)
	})

	t.Run("leaf_moves_up_a_tier", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, _, c := f.abc(t)

		result, err := f.svc.MoveCategory(c.ID, &a.ID, 0)
		testutil.AssertNoError(t, err)
		if result.Level != 1 {
			t.Errorf("expected level 1, got %d", result.Level)
		}
		assertTreeHealthy(t, f.db)
	})

	t.Run("same_parent_and_order_is_noop", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, b, _ := f.abc(t)
		before := testutil.ReloadCategory(t, f.db, b.ID)

		result, err := f.svc.MoveCategory(b.ID, &a.ID, before.SortOrder)
		testutil.AssertNoError(t, err)

		if result.Changed {
			t.Error("expected no change")
		}
		if result.Level != 1 || result.Path != "A > B" {
			t.Errorf("expected unchanged level and path, got %+v", result)
		}
		after := testutil.ReloadCategory(t, f.db, b.ID)
		if !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Error("expected no write for a no-op move")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, _ := f.abc(t)
		tools := f.create(t, "Tools", nil)

		first, err := f.svc.MoveCategory(b.ID, &tools.ID, 2)
		testutil.AssertNoError(t, err)
		second, err := f.svc.MoveCategory(b.ID, &tools.ID, 2)
		testutil.AssertNoError(t, err)

		if second.Changed {
			t.Error("expected second identical move to change nothing")
		}
		first.Changed = false
		if !reflect.DeepEqual(first, second) {
			t.Errorf("expected identical results, got %+v and %+v", first, second)
		}
	})

	t.Run("reorder_only", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, b, _ := f.abc(t)

		result, err := f.svc.MoveCategory(b.ID, &a.ID, 7)
		testutil.AssertNoError(t, err)
		if !result.Changed || result.Order != 7 {
			t.Errorf("expected order change to 7, got %+v", result)
		}
	})

	t.Run("invalidates_breadcrumbs", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, c := f.abc(t)
		tools := f.create(t, "Tools", nil)

		crumb, err := f.svc.GetBreadcrumb(c.ID)
		testutil.AssertNoError(t, err)
		if crumb.Path != "A > B > C" {
			t.Fatalf("unexpected path %q", crumb.Path)
		}
		if f.cache.Len() == 0 {
			t.Fatal("expected breadcrumb to be cached")
		}

		_, err = f.svc.MoveCategory(b.ID, &tools.ID, 0)
		testutil.AssertNoError(t, err)

		crumb, err = f.svc.GetBreadcrumb(c.ID)
		testutil.AssertNoError(t, err)
		if crumb.Path != "Tools > B > C" {
			t.Errorf("expected refreshed path, got %q", crumb.Path)
		}
	})

	t.Run("rejects_corrupted_ancestry", func(t *testing.T) {
		f := newCategoryFixture(t)
		x := f.create(t, "Auto", nil)
		y := f.create(t, "Motor", x)
		// Close the loop behind the service's back.
		f.db.Model(&models.Category{}).Where("id = ?", x.ID).Update("parent_id", y.ID)
		tools := f.create(t, "Tools", nil)

		_, err := f.svc.MoveCategory(tools.ID, &y.ID, 0)
		testutil.AssertAppError(t, err, "CYCLE_DETECTED")
	})

	t.Run("concurrent_moves_keep_invariants", func(t *testing.T) {
		f := newCategoryFixture(t)
		roots := []*models.Category{f.create(t, "R1", nil), f.create(t, "R2", nil), f.create(t, "R3", nil)}
		var mids []*models.Category
		for i, r := range roots {
			mid := f.create(t, fmt.Sprintf("M%d", i), r)
			f.create(t, fmt.Sprintf("L%d", i), mid)
			mids = append(mids, mid)
		}
		p, q, s := f.abc(t)

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(3)
			go func(i int) {
				defer wg.Done()
				// Always legal: a two-tier subtree under a root.
				target := roots[1+i%2]
				if _, err := f.svc.MoveCategory(mids[i%len(mids)].ID, &target.ID, i); err != nil {
					t.Errorf("move %d: %v", i, err)
				}
			}(i)
			go func(i int) {
				defer wg.Done()
				var parentID *string
				if i%2 == 0 {
					parentID = &p.ID
				}
				assertRejectionIsAppError(t, f.svc, q.ID, parentID)
			}(i)
			go func() {
				defer wg.Done()
				assertRejectionIsAppError(t, f.svc, p.ID, &s.ID)
			}()
		}
		wg.Wait()
		assertTreeHealthy(t, f.db)
	})
}

// assertRejectionIsAppError moves id and accepts success or any structured
// rejection.
func assertRejectionIsAppError(t *testing.T, svc CategoryServicer, id string, parentID *string) {
	t.Helper()
	_, err := svc.MoveCategory(id, parentID, 0)
	if err == nil {
		return
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.StatusCode >= 500 {
		t.Errorf("expected a structured rejection, got %v", err)
	}
}

func TestDeleteCategory(t *testing.T) {
	t.Run("scenario_c_has_children_then_detach", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, b, _ := f.abc(t)

		_, err := f.svc.DeleteCategory(a.ID)
		detail := testutil.AssertErrorDetail(t, err, "CATEGORY_HAS_CHILDREN", "children")
		children, ok := detail.([]ChildEntry)
		if !ok || len(children) != 1 || children[0].ID != b.ID {
			t.Errorf("expected children [B], got %v", detail)
		}

		_, err = f.svc.MoveCategory(b.ID, nil, 0)
		testutil.AssertNoError(t, err)

		result, err := f.svc.DeleteCategory(a.ID)
		testutil.AssertNoError(t, err)
		if result.ID != a.ID || result.ItemsReassigned != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		assertTreeHealthy(t, f.db)
	})

	t.Run("scenario_d_items_go_to_sentinel", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, _, c := f.abc(t)
		item := testutil.CreateTestItem(t, f.db, c.ID)
		other := testutil.CreateTestItem(t, f.db, c.ID)

		result, err := f.svc.DeleteCategory(c.ID)
		testutil.AssertNoError(t, err)

		if result.ItemsReassigned != 2 || result.SentinelID != f.sentinel.ID {
			t.Errorf("expected 2 items moved to sentinel, got %+v", result)
		}
		for _, id := range []string{item.ID, other.ID} {
			reloaded, err := f.items.GetItemByID(id)
			testutil.AssertNoError(t, err)
			if reloaded.CategoryID != f.sentinel.ID {
				t.Errorf("expected item %s in sentinel, got %s", id, reloaded.CategoryID)
			}
		}

		_, err = f.svc.GetCategoryByID(c.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("scenario_e_sentinel_protected", func(t *testing.T) {
		f := newCategoryFixture(t)

		_, err := f.svc.DeleteCategory(f.sentinel.ID)
		testutil.AssertAppError(t, err, "SENTINEL_PROTECTED")

		f.abc(t)
		_, err = f.svc.DeleteCategory(f.sentinel.ID)
		testutil.AssertAppError(t, err, "SENTINEL_PROTECTED")
	})

	t.Run("missing_sentinel_rolls_back", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, _, c := f.abc(t)
		item := testutil.CreateTestItem(t, f.db, c.ID)
		f.db.Delete(&models.Category{}, "id = ?", f.sentinel.ID)

		_, err := f.svc.DeleteCategory(c.ID)
		testutil.AssertAppError(t, err, "MISSING_SENTINEL")

		testutil.ReloadCategory(t, f.db, c.ID)
		reloaded, err := f.items.GetItemByID(item.ID)
		testutil.AssertNoError(t, err)
		if reloaded.CategoryID != c.ID {
			t.Errorf("expected item to stay in C, got %s", reloaded.CategoryID)
		}
	})

	t.Run("inactive_children_still_block", func(t *testing.T) {
		f := newCategoryFixture(t)
		a := f.create(t, "A", nil)
		inactive := false
		_, err := f.svc.CreateCategory(CategoryInput{Name: "Hidden", ParentID: &a.ID, Active: &inactive})
		testutil.AssertNoError(t, err)

		_, err = f.svc.DeleteCategory(a.ID)
		testutil.AssertAppError(t, err, "CATEGORY_HAS_CHILDREN")
	})

	t.Run("message_names_first_five_children", func(t *testing.T) {
		f := newCategoryFixture(t)
		a := f.create(t, "A", nil)
		for i := 0; i < 7; i++ {
			f.create(t, fmt.Sprintf("Child %d", i), a)
		}

		_, err := f.svc.DeleteCategory(a.ID)
		testutil.AssertAppError(t, err, "CATEGORY_HAS_CHILDREN")
		if !strings.Contains(err.Error(), "Child 4") || strings.Contains(err.Error(), "Child 5") {
			t.Errorf("expected first five children named, got %q", err.Error())
		}
		if !strings.Contains(err.Error(), "and 2 more") {
			t.Errorf("expected remaining count, got %q", err.Error())
		}
	})

	t.Run("not_found", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.DeleteCategory("0192f7a0-0000-7000-8000-00000000dead")
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}

func TestUpdateCategory(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		f := newCategoryFixture(t)
		a := f.create(t, "Engine", nil)
		name, desc, order, active := "Motor", "Engine parts", 9, false

		updated, err := f.svc.UpdateCategory(a.ID, CategoryUpdate{Name: &name, Description: &desc, Order: &order, Active: &active})
		testutil.AssertNoError(t, err)

		if updated.Name != "Motor" || updated.Description != "Engine parts" || updated.SortOrder != 9 || updated.Active {
			t.Errorf("unexpected update result %+v", updated)
		}
	})

	t.Run("reparent_through_guard", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, b, c := f.abc(t)

		_, err := f.svc.UpdateCategory(b.ID, CategoryUpdate{ParentID: &c.ID})
		testutil.AssertAppError(t, err, "DESCENDANT_TARGET")

		updated, err := f.svc.UpdateCategory(b.ID, CategoryUpdate{ToRoot: true})
		testutil.AssertNoError(t, err)
		if !updated.IsRoot() || updated.Level != 0 {
			t.Errorf("expected B detached to root, got %+v", updated)
		}
		assertTreeHealthy(t, f.db)
	})

	t.Run("parent_and_to_root_conflict", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, b, _ := f.abc(t)
		_, err := f.svc.UpdateCategory(b.ID, CategoryUpdate{ParentID: &a.ID, ToRoot: true})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("sentinel_cannot_be_deactivated", func(t *testing.T) {
		f := newCategoryFixture(t)
		inactive := false
		_, err := f.svc.UpdateCategory(f.sentinel.ID, CategoryUpdate{Active: &inactive})
		testutil.AssertAppError(t, err, "SENTINEL_PROTECTED")
	})

	t.Run("rename_invalidates_breadcrumbs", func(t *testing.T) {
		f := newCategoryFixture(t)
		a, _, c := f.abc(t)

		_, err := f.svc.GetBreadcrumb(c.ID)
		testutil.AssertNoError(t, err)

		name := "Engine"
		_, err = f.svc.UpdateCategory(a.ID, CategoryUpdate{Name: &name})
		testutil.AssertNoError(t, err)

		crumb, err := f.svc.GetBreadcrumb(c.ID)
		testutil.AssertNoError(t, err)
		if crumb.Path != "Engine > B > C" {
			t.Errorf("expected renamed path, got %q", crumb.Path)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		f := newCategoryFixture(t)
		name := "x"
		_, err := f.svc.UpdateCategory("0192f7a0-0000-7000-8000-00000000dead", CategoryUpdate{Name: &name})
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}

func TestListChildren(t *testing.T) {
	f := newCategoryFixture(t)
	engine := f.create(t, "Engine", nil)

	for _, in := range []CategoryInput{
		{Name: "Pistons", ParentID: &engine.ID, Order: 2},
		{Name: "Belts", ParentID: &engine.ID, Order: 1},
		{Name: "Alternators", ParentID: &engine.ID, Order: 2},
	} {
		_, err := f.svc.CreateCategory(in)
		testutil.AssertNoError(t, err)
	}
	inactive := false
	_, err := f.svc.CreateCategory(CategoryInput{Name: "Hidden", ParentID: &engine.ID, Active: &inactive})
	testutil.AssertNoError(t, err)

	children, err := f.svc.ListChildren(&engine.ID)
	testutil.AssertNoError(t, err)

	var names []string
	for _, c := range children {
		names = append(names, c.Name)
	}
	if !reflect.DeepEqual(names, []string{"Belts", "Alternators", "Pistons"}) {
		t.Errorf("expected [Belts Alternators Pistons], got %v", names)
	}

	roots, err := f.svc.ListChildren(nil)
	testutil.AssertNoError(t, err)
	if len(roots) != 2 {
		t.Errorf("expected sentinel and Engine as roots, got %v", roots)
	}

	none, err := f.svc.ListChildren(strPtr("0192f7a0-0000-7000-8000-00000000dead"))
	testutil.AssertNoError(t, err)
	if len(none) != 0 {
		t.Errorf("expected no children for unknown parent, got %v", none)
	}
}

func TestListCategories(t *testing.T) {
	f := newCategoryFixture(t)
	a, _, _ := f.abc(t)
	inactive := false
	_, err := f.svc.UpdateCategory(a.ID, CategoryUpdate{Active: &inactive})
	testutil.AssertNoError(t, err)

	t.Run("ordered_by_level", func(t *testing.T) {
		result, err := f.svc.ListCategories(CategoryFilter{}, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 4 {
			t.Fatalf("expected 4 categories, got %d", result.TotalItems)
		}
		if result.Data[len(result.Data)-1].Name != "C" {
			t.Errorf("expected deepest category last, got %s", result.Data[len(result.Data)-1].Name)
		}
	})

	t.Run("search", func(t *testing.T) {
		result, err := f.svc.ListCategories(CategoryFilter{Search: "unclass"}, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 || result.Data[0].ID != f.sentinel.ID {
			t.Errorf("expected only the sentinel, got %+v", result.Data)
		}
	})

	t.Run("active_filter", func(t *testing.T) {
		result, err := f.svc.ListCategories(CategoryFilter{Active: &inactive}, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 || result.Data[0].ID != a.ID {
			t.Errorf("expected only A, got %+v", result.Data)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		result, err := f.svc.ListCategories(CategoryFilter{}, pagination.PageRequest{Page: 2, PageSize: 3})
		testutil.AssertNoError(t, err)
		if len(result.Data) != 1 || result.TotalPages != 2 {
			t.Errorf("expected 1 item on page 2 of 2, got %d items, %d pages", len(result.Data), result.TotalPages)
		}
	})
}

func TestGetTree(t *testing.T) {
	f := newCategoryFixture(t)
	a, b, c := f.abc(t)

	tree, err := f.svc.GetTree()
	testutil.AssertNoError(t, err)

	var root *TreeNode
	for _, n := range tree {
		if n.ID == a.ID {
			root = n
		}
	}
	if root == nil {
		t.Fatal("expected A among roots")
	}
	if len(root.Children) != 1 || root.Children[0].ID != b.ID {
		t.Fatalf("expected B under A, got %+v", root.Children)
	}
	if len(root.Children[0].Children) != 1 || root.Children[0].Children[0].ID != c.ID {
		t.Errorf("expected C under B, got %+v", root.Children[0].Children)
	}
}

// brokenChildrenSource fails every children lookup below one parent.
type brokenChildrenSource struct {
	*hierarchy.MemorySource
	failUnder string
}

func (b brokenChildrenSource) Children(parentIDs []string) ([]hierarchy.Node, error) {
	for _, id := range parentIDs {
		if id == b.failUnder {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, errors.New("connection reset"))
		}
	}
	return b.MemorySource.Children(parentIDs)
}

func TestBuildTreePropagatesChildrenErrors(t *testing.T) {
	a := hierarchy.Node{ID: "a", Name: "Engine", Active: true}
	b := hierarchy.Node{ID: "b", ParentID: strPtr("a"), Name: "Belts", Level: 1, Active: true}
	src := brokenChildrenSource{MemorySource: hierarchy.NewMemorySource([]hierarchy.Node{a, b}), failUnder: "b"}

	tree, err := buildTree(src, []hierarchy.Node{a})
	testutil.AssertAppError(t, err, "INTERNAL_ERROR")
	if tree != nil {
		t.Errorf("expected no partial tree, got %+v", tree)
	}
}

func TestGetBreadcrumb(t *testing.T) {
	t.Run("scenario_chain", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, _, c := f.abc(t)

		crumb, err := f.svc.GetBreadcrumb(c.ID)
		testutil.AssertNoError(t, err)
		if !reflect.DeepEqual(crumb.Breadcrumb, []string{"A", "B", "C"}) || crumb.Path != "A > B > C" {
			t.Errorf("unexpected breadcrumb %+v", crumb)
		}

		cached, err := f.svc.GetBreadcrumb(c.ID)
		testutil.AssertNoError(t, err)
		if !reflect.DeepEqual(cached, crumb) {
			t.Errorf("expected cached breadcrumb to match, got %+v", cached)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		f := newCategoryFixture(t)
		_, err := f.svc.GetBreadcrumb("0192f7a0-0000-7000-8000-00000000dead")
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}

func TestGetDescendants(t *testing.T) {
	f := newCategoryFixture(t)
	a, b, c := f.abc(t)
	d := f.create(t, "D", a)

	ids, err := f.svc.GetDescendants(a.ID)
	testutil.AssertNoError(t, err)
	if len(ids) != 3 || !hierarchy.Contains(ids, b.ID) || !hierarchy.Contains(ids, c.ID) || !hierarchy.Contains(ids, d.ID) {
		t.Errorf("expected B, C and D, got %v", ids)
	}

	leaf, err := f.svc.GetDescendants(c.ID)
	testutil.AssertNoError(t, err)
	if leaf == nil || len(leaf) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", leaf)
	}
}

func TestGetMoveTargets(t *testing.T) {
	f := newCategoryFixture(t)
	a, b, c := f.abc(t)
	tools := f.create(t, "Tools", nil)
	wrenches := f.create(t, "Wrenches", tools)

	targets, err := f.svc.GetMoveTargets(b.ID)
	testutil.AssertNoError(t, err)

	got := make(map[string]bool)
	for _, target := range targets {
		got[target.ID] = true
	}
	// B has a child, so only roots can host it.
	for _, id := range []string{a.ID, tools.ID, f.sentinel.ID} {
		if !got[id] {
			t.Errorf("expected %s among targets", id)
		}
	}
	for _, id := range []string{b.ID, c.ID, wrenches.ID} {
		if got[id] {
			t.Errorf("did not expect %s among targets", id)
		}
	}

	leafTargets, err := f.svc.GetMoveTargets(c.ID)
	testutil.AssertNoError(t, err)
	found := false
	for _, target := range leafTargets {
		if target.ID == wrenches.ID {
			found = target.Path == "Tools > Wrenches"
		}
	}
	if !found {
		t.Error("expected level-1 Wrenches to host leaf C")
	}
}

func TestSubtreeItemCount(t *testing.T) {
	f := newCategoryFixture(t)
	a, b, c := f.abc(t)
	testutil.CreateTestItem(t, f.db, a.ID)
	testutil.CreateTestItem(t, f.db, b.ID)
	testutil.CreateTestItem(t, f.db, c.ID)
	retired := testutil.CreateTestItem(t, f.db, c.ID)
	f.db.Model(retired).Update("active", false)

	count, err := f.svc.SubtreeItemCount(a.ID)
	testutil.AssertNoError(t, err)
	if count != 3 {
		t.Errorf("expected 3 active items under A, got %d", count)
	}

	count, err = f.svc.SubtreeItemCount(c.ID)
	testutil.AssertNoError(t, err)
	if count != 1 {
		t.Errorf("expected 1 active item in C, got %d", count)
	}

	_, err = f.svc.SubtreeItemCount("0192f7a0-0000-7000-8000-00000000dead")
	testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
}

func TestCategoryExists(t *testing.T) {
	f := newCategoryFixture(t)
	a := f.create(t, "A", nil)

	if !f.svc.CategoryExists(a.ID) {
		t.Error("expected A to exist")
	}
	if f.svc.CategoryExists("0192f7a0-0000-7000-8000-00000000dead") {
		t.Error("expected unknown id not to exist")
	}

	_, err := f.svc.DeleteCategory(a.ID)
	testutil.AssertNoError(t, err)
	if f.svc.CategoryExists(a.ID) {
		t.Error("expected deleted category not to exist")
	}
}
