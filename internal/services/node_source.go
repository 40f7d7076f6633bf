package services

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/hierarchy"
	"stockroom/internal/models"
)

// dbSource serves hierarchy walks from the categories table. Inside a
// mutation it wraps the transaction so every read sees the locked rows.
type dbSource struct {
	db *gorm.DB
}

func toNode(c *models.Category) hierarchy.Node {
	return hierarchy.Node{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Name:      c.Name,
		Level:     c.Level,
		SortOrder: c.SortOrder,
		Active:    c.Active,
	}
}

func (s dbSource) Node(id string) (hierarchy.Node, error) {
	category, err := findCategory(s.db, id)
	if err != nil {
		return hierarchy.Node{}, err
	}
	return toNode(category), nil
}

func (s dbSource) Children(parentIDs []string) ([]hierarchy.Node, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var rows []models.Category
	if err := s.db.Where("parent_id IN ?", parentIDs).
		Order("sort_order, name, id").
		Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	nodes := make([]hierarchy.Node, 0, len(rows))
	for i := range rows {
		nodes = append(nodes, toNode(&rows[i]))
	}
	return nodes, nil
}

// findCategory loads a live category by id.
func findCategory(db *gorm.DB, id string) (*models.Category, error) {
	var category models.Category
	if err := db.Where("id = ?", id).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("category %s not found", id))
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// shareCategory loads a live category with SELECT ... FOR SHARE. The shared
// lock conflicts with the FOR UPDATE taken by DeleteCategory, so a row
// referencing the category commits either before the delete reassigns
// items or after it, in which case the category is gone.
func shareCategory(tx *gorm.DB, id string) (*models.Category, error) {
	return findCategory(tx.Clauses(clause.Locking{Strength: "SHARE"}), id)
}

// isDuplicateKey reports whether err is a unique index violation.
func isDuplicateKey(db *gorm.DB, err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if translator, ok := db.Dialector.(gorm.ErrorTranslator); ok {
		return errors.Is(translator.Translate(err), gorm.ErrDuplicatedKey)
	}
	return false
}

// lockCategories loads the given categories with SELECT ... FOR UPDATE in
// ascending id order. Nil and duplicate ids are skipped; ids that match no
// live row are absent from the result.
func lockCategories(tx *gorm.DB, ids ...*string) (map[string]*models.Category, error) {
	seen := make(map[string]struct{}, len(ids))
	var keys []string
	for _, id := range ids {
		if id == nil || *id == "" {
			continue
		}
		if _, dup := seen[*id]; dup {
			continue
		}
		seen[*id] = struct{}{}
		keys = append(keys, *id)
	}
	locked := make(map[string]*models.Category, len(keys))
	if len(keys) == 0 {
		return locked, nil
	}
	sort.Strings(keys)

	var rows []models.Category
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", keys).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	return locked, nil
}

// loadSnapshot reads every live category into memory.
func loadSnapshot(db *gorm.DB, locking bool) (*hierarchy.MemorySource, error) {
	query := db.Model(&models.Category{})
	if locking {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.Category
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	nodes := make([]hierarchy.Node, 0, len(rows))
	for i := range rows {
		nodes = append(nodes, toNode(&rows[i]))
	}
	return hierarchy.NewMemorySource(nodes), nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// parentColumn converts a parent id into a value gorm writes as NULL for roots.
func parentColumn(parentID *string) interface{} {
	if parentID == nil {
		return nil
	}
	return *parentID
}
