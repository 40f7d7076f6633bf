package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"gorm.io/gorm"

	"stockroom/internal/cache"
	apperrors "stockroom/internal/errors"
	"stockroom/internal/hierarchy"
	"stockroom/internal/logger"
	"stockroom/internal/models"
	"stockroom/internal/pagination"
)

// maxNamedChildren caps how many child names a HAS_CHILDREN message lists.
const maxNamedChildren = 5

// categoryService is the category tree engine. Mutations hold mu for the
// whole transaction and lock the affected rows, so validation and writes
// see the same tree.
type categoryService struct {
	db          *gorm.DB
	catalog     CatalogCollaborator
	breadcrumbs cache.BreadcrumbCache
	sentinelID  string
	mu          sync.RWMutex
}

// NewCategoryService creates a new CategoryServicer. sentinelID is the
// resolved fallback category that absorbs items of deleted categories.
func NewCategoryService(db *gorm.DB, catalog CatalogCollaborator, breadcrumbs cache.BreadcrumbCache, sentinelID string) CategoryServicer {
	if breadcrumbs == nil {
		breadcrumbs = cache.Nop{}
	}
	return &categoryService{
		db:          db,
		catalog:     catalog,
		breadcrumbs: breadcrumbs,
		sentinelID:  sentinelID,
	}
}

// SentinelID returns the fallback category id.
func (s *categoryService) SentinelID() string {
	return s.sentinelID
}

// CreateCategory creates a category as a root or under an existing parent.
func (s *categoryService) CreateCategory(input CategoryInput) (*models.Category, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}
	if err := validateOrder(input.Order); err != nil {
		return nil, err
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	category := &models.Category{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		ParentID:    input.ParentID,
		SortOrder:   input.Order,
		Active:      active,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if input.ParentID != nil {
			locked, err := lockCategories(tx, input.ParentID)
			if err != nil {
				return err
			}
			parent, ok := locked[*input.ParentID]
			if !ok {
				return apperrors.WithMessage(apperrors.ErrCategoryNotFound, "parent category not found")
			}
			parentNode := toNode(parent)
			level, err := hierarchy.LevelUnder(dbSource{db: tx}, &parentNode)
			if err != nil {
				return err
			}
			category.Level = level
		}
		if err := tx.Create(category).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, logIntegrity(err)
	}

	logger.Get().Infow("category created",
		"category_id", category.ID,
		"parent_id", category.ParentID,
		"level", category.Level,
	)
	return category, nil
}

// GetCategoryByID retrieves a live category.
func (s *categoryService) GetCategoryByID(id string) (*models.Category, error) {
	return findCategory(s.db, id)
}

// ListCategories returns a page of categories ordered by (level, order, name).
func (s *categoryService) ListCategories(filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	page.Defaults()

	base := s.db.Model(&models.Category{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		base = base.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	if filter.Active != nil {
		base = base.Where("active = ?", *filter.Active)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.Category
	if err := base.Order("level, sort_order, name, id").
		Scopes(pagination.Paginate(page)).
		Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ListChildren returns the active children of parentID, or the active roots
// when parentID is nil, ordered by (order, name).
func (s *categoryService) ListChildren(parentID *string) ([]ChildEntry, error) {
	query := s.db.Model(&models.Category{}).Where("active = ?", true)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var rows []models.Category
	if err := query.Order("sort_order, name, id").Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	entries := make([]ChildEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ChildEntry{ID: row.ID, Name: row.Name})
	}
	return entries, nil
}

// GetTree returns every category nested under its parent. Nodes that are
// not reachable from a root (cycle members) are left out; the integrity
// check reports them.
func (s *categoryService) GetTree() ([]*TreeNode, error) {
	src, err := loadSnapshot(s.db, false)
	if err != nil {
		return nil, err
	}

	return buildTree(src, src.Roots())
}

// buildTree nests the categories reachable from roots, skipping any node
// already placed so a corrupted parent loop cannot recurse forever.
func buildTree(src hierarchy.Source, roots []hierarchy.Node) ([]*TreeNode, error) {
	visited := make(map[string]struct{})
	var build func(n hierarchy.Node) (*TreeNode, error)
	build = func(n hierarchy.Node) (*TreeNode, error) {
		visited[n.ID] = struct{}{}
		tn := &TreeNode{
			ID:       n.ID,
			Name:     n.Name,
			Level:    n.Level,
			Order:    n.SortOrder,
			Active:   n.Active,
			Children: []*TreeNode{},
		}
		children, err := src.Children([]string{n.ID})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			sub, err := build(child)
			if err != nil {
				return nil, err
			}
			tn.Children = append(tn.Children, sub)
		}
		return tn, nil
	}

	tree := make([]*TreeNode, 0, len(roots))
	for _, root := range roots {
		tn, err := build(root)
		if err != nil {
			return nil, err
		}
		tree = append(tree, tn)
	}
	return tree, nil
}

// UpdateCategory applies the non-nil fields of update. Parent changes go
// through the same validation as MoveCategory.
func (s *categoryService) UpdateCategory(id string, update CategoryUpdate) (*models.Category, error) {
	if update.ParentID != nil && update.ToRoot {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "parent_id and to_root cannot be combined")
	}

	updates := make(map[string]interface{})
	if update.Name != nil {
		name, err := normalizeName(*update.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if update.Description != nil {
		if err := validateDescription(*update.Description); err != nil {
			return nil, err
		}
		updates["description"] = strings.TrimSpace(*update.Description)
	}
	if update.Order != nil {
		if err := validateOrder(*update.Order); err != nil {
			return nil, err
		}
		updates["sort_order"] = *update.Order
	}
	if update.Active != nil {
		if !*update.Active && id == s.sentinelID {
			return nil, sentinelProtected("deactivated")
		}
		updates["active"] = *update.Active
	}
	reparent := update.ParentID != nil || update.ToRoot

	s.mu.Lock()
	defer s.mu.Unlock()

	var category *models.Category
	parentChanged := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		current, err := findCategory(tx, id)
		if err != nil {
			return err
		}
		locked, err := lockCategories(tx, &current.ID, current.ParentID, update.ParentID)
		if err != nil {
			return err
		}
		node, ok := locked[id]
		if !ok {
			return apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("category %s not found", id))
		}

		if reparent && !sameParent(node.ParentID, update.ParentID) {
			if err := s.reparent(tx, node, update.ParentID); err != nil {
				return err
			}
			parentChanged = true
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Category{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		category, err = findCategory(tx, id)
		return err
	})
	if err != nil {
		return nil, logIntegrity(err)
	}

	if parentChanged || update.Name != nil {
		s.breadcrumbs.InvalidateAll(context.Background())
	}
	logger.Get().Infow("category updated",
		"category_id", id,
		"fields", len(updates),
		"parent_changed", parentChanged,
	)
	return category, nil
}

// MoveCategory places a category under newParentID (nil for root) at
// newOrder. Checks run in order: self parent, descendant target, depth.
// Moving to the current parent and order succeeds without writing.
func (s *categoryService) MoveCategory(id string, newParentID *string, newOrder int) (*MoveResult, error) {
	if err := validateOrder(newOrder); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *MoveResult
	parentChanged := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		current, err := findCategory(tx, id)
		if err != nil {
			return err
		}
		locked, err := lockCategories(tx, &current.ID, current.ParentID, newParentID)
		if err != nil {
			return err
		}
		node, ok := locked[id]
		if !ok {
			return apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("category %s not found", id))
		}

		changed := false
		if !sameParent(node.ParentID, newParentID) {
			if err := s.reparent(tx, node, newParentID); err != nil {
				return err
			}
			parentChanged = true
			changed = true
		}
		if node.SortOrder != newOrder {
			if err := tx.Model(&models.Category{}).Where("id = ?", id).Update("sort_order", newOrder).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			node.SortOrder = newOrder
			changed = true
		}

		names, err := hierarchy.Breadcrumb(dbSource{db: tx}, toNode(node))
		if err != nil {
			return err
		}
		result = &MoveResult{
			ID:         node.ID,
			ParentID:   node.ParentID,
			Order:      node.SortOrder,
			Level:      node.Level,
			Breadcrumb: names,
			Path:       hierarchy.Path(names),
			Changed:    changed,
		}
		return nil
	})
	if err != nil {
		return nil, logIntegrity(err)
	}

	if parentChanged {
		s.breadcrumbs.InvalidateAll(context.Background())
	}
	if result.Changed {
		logger.Get().Infow("category moved",
			"category_id", id,
			"parent_id", result.ParentID,
			"order", result.Order,
			"level", result.Level,
		)
	}
	return result, nil
}

// reparent validates and writes a new parent for node, then recomputes the
// levels of its whole subtree. node is updated in place.
func (s *categoryService) reparent(tx *gorm.DB, node *models.Category, newParentID *string) error {
	src := dbSource{db: tx}
	level := 0

	if newParentID != nil {
		if *newParentID == node.ID {
			return apperrors.ErrSelfParentCategory
		}
		target, err := src.Node(*newParentID)
		if err != nil {
			if errors.Is(err, apperrors.ErrCategoryNotFound) {
				return apperrors.WithMessage(apperrors.ErrCategoryNotFound, "target parent category not found")
			}
			return err
		}
		descendants, err := hierarchy.Descendants(src, node.ID)
		if err != nil {
			return err
		}
		if hierarchy.Contains(descendants, target.ID) {
			return apperrors.WithDetails(apperrors.ErrDescendantTarget,
				fmt.Sprintf("%q is inside the subtree of %q", target.Name, node.Name),
				map[string]string{"category_id": node.ID, "target_id": target.ID})
		}
		level, err = hierarchy.ValidateReparent(src, toNode(node), target)
		if err != nil {
			return err
		}
	}

	if err := tx.Model(&models.Category{}).Where("id = ?", node.ID).Updates(map[string]interface{}{
		"parent_id": parentColumn(newParentID),
		"level":     level,
	}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	node.ParentID = newParentID
	node.Level = level

	return relevelSubtree(tx, node.ID, level)
}

// relevelSubtree rewrites the stored level of every descendant of rootID
// whose level no longer matches rootLevel plus its depth below the root.
func relevelSubtree(tx *gorm.DB, rootID string, rootLevel int) error {
	return hierarchy.Walk(dbSource{db: tx}, rootID, func(n hierarchy.Node, depth int) error {
		want := rootLevel + depth
		if n.Level == want {
			return nil
		}
		if err := tx.Model(&models.Category{}).Where("id = ?", n.ID).Update("level", want).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// DeleteCategory removes a leaf category after repointing its items to the
// fallback category, all in one transaction.
func (s *categoryService) DeleteCategory(id string) (*DeleteResult, error) {
	if id == s.sentinelID {
		return nil, sentinelProtected("deleted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *DeleteResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := lockCategories(tx, &id, &s.sentinelID)
		if err != nil {
			return err
		}
		node, ok := locked[id]
		if !ok {
			return apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("category %s not found", id))
		}

		var children []models.Category
		if err := tx.Where("parent_id = ?", id).Order("sort_order, name, id").Find(&children).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(children) > 0 {
			return hasChildrenError(node, children)
		}

		sentinel, ok := locked[s.sentinelID]
		if !ok {
			logger.Alert("fallback category missing, category delete refused",
				"sentinel_id", s.sentinelID,
				"category_id", id,
			)
			return apperrors.ErrMissingSentinel
		}

		reassigned, err := s.catalog.OnCategoryDeleted(tx, id, sentinel.ID)
		if err != nil {
			return err
		}
		if err := tx.Delete(node).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result = &DeleteResult{ID: id, SentinelID: sentinel.ID, ItemsReassigned: reassigned}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.breadcrumbs.InvalidateAll(context.Background())
	logger.Get().Infow("category deleted",
		"category_id", id,
		"sentinel_id", result.SentinelID,
		"items_reassigned", result.ItemsReassigned,
	)
	return result, nil
}

// GetBreadcrumb returns the root-first names of a category.
func (s *categoryService) GetBreadcrumb(id string) (*Breadcrumb, error) {
	ctx := context.Background()
	names, gen, ok := s.breadcrumbs.Get(ctx, id)
	if ok {
		return &Breadcrumb{Breadcrumb: names, Path: hierarchy.Path(names)}, nil
	}

	// gen was read before the walk: a move committed by any instance from
	// here on bumps the generation and the entry below is never served.
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := dbSource{db: s.db}
	node, err := src.Node(id)
	if err != nil {
		return nil, err
	}
	names, err = hierarchy.Breadcrumb(src, node)
	if err != nil {
		return nil, logIntegrity(err)
	}
	s.breadcrumbs.Set(ctx, gen, id, names)
	return &Breadcrumb{Breadcrumb: names, Path: hierarchy.Path(names)}, nil
}

// GetDescendants returns the ids of every category below id, breadth-first.
func (s *categoryService) GetDescendants(id string) ([]string, error) {
	src := dbSource{db: s.db}
	if _, err := src.Node(id); err != nil {
		return nil, err
	}
	ids, err := hierarchy.Descendants(src, id)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// GetMoveTargets lists the active categories that can take id as a child:
// not id itself, not inside its subtree, and shallow enough for its subtree
// to stay within the depth limit. Ordered by level, then path.
func (s *categoryService) GetMoveTargets(id string) ([]MoveTarget, error) {
	src, err := loadSnapshot(s.db, false)
	if err != nil {
		return nil, err
	}
	if _, err := src.Node(id); err != nil {
		return nil, err
	}
	descendants, err := hierarchy.Descendants(src, id)
	if err != nil {
		return nil, err
	}
	height, err := hierarchy.SubtreeHeight(src, id)
	if err != nil {
		return nil, err
	}

	targets := []MoveTarget{}
	for _, n := range src.All() {
		if n.ID == id || !n.Active || hierarchy.Contains(descendants, n.ID) {
			continue
		}
		names, err := hierarchy.Breadcrumb(src, n)
		if err != nil {
			continue
		}
		level := len(names) - 1
		if level+1+height > hierarchy.MaxLevel {
			continue
		}
		targets = append(targets, MoveTarget{ID: n.ID, Name: n.Name, Level: level, Path: hierarchy.Path(names)})
	}
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Level != targets[j].Level {
			return targets[i].Level < targets[j].Level
		}
		return targets[i].Path < targets[j].Path
	})
	return targets, nil
}

// SubtreeItemCount counts active items filed under id or any descendant.
func (s *categoryService) SubtreeItemCount(id string) (int64, error) {
	descendants, err := s.GetDescendants(id)
	if err != nil {
		return 0, err
	}
	return s.catalog.CountActiveItems(append([]string{id}, descendants...))
}

// CategoryExists reports whether id names a live category.
func (s *categoryService) CategoryExists(id string) bool {
	var count int64
	if err := s.db.Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		logger.Get().Errorw("category exists check failed", "category_id", id, "error", err)
		return false
	}
	return count > 0
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}
	if utf8.RuneCountInString(name) > models.CategoryNameMaxLength {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput,
			fmt.Sprintf("category name must be at most %d characters", models.CategoryNameMaxLength))
	}
	return name, nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(strings.TrimSpace(description)) > models.CategoryDescriptionMaxLength {
		return apperrors.WithMessage(apperrors.ErrInvalidInput,
			fmt.Sprintf("description must be at most %d characters", models.CategoryDescriptionMaxLength))
	}
	return nil
}

func validateOrder(order int) error {
	if order < 0 || order > models.CategoryMaxSortOrder {
		return apperrors.WithMessage(apperrors.ErrInvalidInput,
			fmt.Sprintf("order must be between 0 and %d", models.CategoryMaxSortOrder))
	}
	return nil
}

func sentinelProtected(action string) *apperrors.AppError {
	return apperrors.WithMessage(apperrors.ErrSentinelProtected,
		fmt.Sprintf("the fallback category cannot be %s", action))
}

func hasChildrenError(node *models.Category, children []models.Category) *apperrors.AppError {
	entries := make([]ChildEntry, 0, len(children))
	names := make([]string, 0, maxNamedChildren)
	for _, child := range children {
		entries = append(entries, ChildEntry{ID: child.ID, Name: child.Name})
		if len(names) < maxNamedChildren {
			names = append(names, child.Name)
		}
	}
	listed := strings.Join(names, ", ")
	if len(children) > maxNamedChildren {
		listed += fmt.Sprintf(" and %d more", len(children)-maxNamedChildren)
	}
	return apperrors.WithDetails(apperrors.ErrCategoryHasChildren,
		fmt.Sprintf("%q has %d subcategories: %s", node.Name, len(children), listed),
		map[string]interface{}{"children": entries})
}

// logIntegrity reports cycle errors as data-integrity warnings; they mean
// the stored tree was already corrupt before this request.
func logIntegrity(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && errors.Is(err, apperrors.ErrCycleDetected) {
		logger.Get().Warnw("data integrity: cycle in category hierarchy",
			"message", appErr.Message,
			"details", appErr.Details,
		)
	}
	return err
}
