package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/logger"
	"stockroom/internal/models"
	"stockroom/internal/pagination"
)

// itemService handles catalog items.
type itemService struct {
	db *gorm.DB
}

// NewItemService creates a new ItemServicer.
func NewItemService(db *gorm.DB) ItemServicer {
	return &itemService{db: db}
}

// CreateItem files a new item under an existing category.
func (s *itemService) CreateItem(code, name, categoryID string) (*models.Item, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "item code and name are required")
	}

	item := &models.Item{Code: code, Name: name, CategoryID: categoryID, Active: true}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := shareCategory(tx, categoryID); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Item{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return duplicateItem(code)
		}

		if err := tx.Create(item).Error; err != nil {
			if isDuplicateKey(tx, err) {
				return duplicateItem(code)
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// duplicateItem also covers codes held by soft-deleted items, which the
// count skips but the unique index still holds.
func duplicateItem(code string) error {
	return apperrors.WithMessage(apperrors.ErrDuplicateItem, fmt.Sprintf("item code %s already exists", code))
}

// GetItemByID retrieves an item by ID.
func (s *itemService) GetItemByID(id string) (*models.Item, error) {
	var item models.Item
	if err := s.db.Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrItemNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &item, nil
}

// ListItemsByCategories returns a page of items filed under any of categoryIDs.
func (s *itemService) ListItemsByCategories(categoryIDs []string, page pagination.PageRequest) (*pagination.PageResponse[models.Item], error) {
	page.Defaults()

	if len(categoryIDs) == 0 {
		result := pagination.NewPageResponse[models.Item](nil, page.Page, page.PageSize, 0)
		return &result, nil
	}

	var totalItems int64
	base := s.db.Model(&models.Item{}).Where("category_id IN ?", categoryIDs)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var items []models.Item
	if err := base.Order("code").Scopes(pagination.Paginate(page)).Find(&items).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(items, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// CountActiveItems counts active items filed under any of categoryIDs.
func (s *itemService) CountActiveItems(categoryIDs []string) (int64, error) {
	if len(categoryIDs) == 0 {
		return 0, nil
	}
	var count int64
	if err := s.db.Model(&models.Item{}).
		Where("category_id IN ? AND active = ?", categoryIDs, true).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count, nil
}

// OnCategoryDeleted repoints every item of oldCategoryID to sentinelID. It
// runs on the caller's transaction so the reassignment commits or rolls
// back together with the category delete.
func (s *itemService) OnCategoryDeleted(tx *gorm.DB, oldCategoryID, sentinelID string) (int64, error) {
	result := tx.Model(&models.Item{}).
		Where("category_id = ?", oldCategoryID).
		Update("category_id", sentinelID)
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Get().Infow("items reassigned to fallback category",
			"from_category_id", oldCategoryID,
			"sentinel_id", sentinelID,
			"count", result.RowsAffected,
		)
	}
	return result.RowsAffected, nil
}
