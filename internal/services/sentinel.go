package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/logger"
	"stockroom/internal/models"
)

// sentinelDescription is stored on a freshly provisioned fallback category.
const sentinelDescription = "Holds items whose category was deleted until they are reclassified"

// ResolveSentinel finds the configured fallback category. A non-empty id
// takes precedence over name. The category must exist and be active.
func ResolveSentinel(db *gorm.DB, id, name string) (*models.Category, error) {
	var sentinel models.Category
	var err error
	if id != "" {
		err = db.Where("id = ?", id).First(&sentinel).Error
	} else {
		var count int64
		if err := db.Model(&models.Category{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 1 {
			logger.Get().Warnw("several categories share the fallback name, using the oldest",
				"name", name,
				"count", count,
			)
		}
		err = db.Where("name = ?", name).Order("created_at, id").First(&sentinel).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithDetails(apperrors.ErrMissingSentinel,
				"the fallback category does not exist; provision it with `treectl sentinel`",
				map[string]string{"id": id, "name": name})
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !sentinel.Active {
		return nil, apperrors.WithMessage(apperrors.ErrMissingSentinel,
			fmt.Sprintf("the fallback category %s is inactive", sentinel.ID))
	}
	return &sentinel, nil
}

// EnsureSentinel returns the root category called name, creating it or
// reactivating it as needed. created reports whether a row was inserted.
func EnsureSentinel(db *gorm.DB, name string) (sentinel *models.Category, created bool, err error) {
	name, err = normalizeName(name)
	if err != nil {
		return nil, false, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var existing models.Category
		findErr := tx.Where("name = ? AND parent_id IS NULL", name).Order("created_at, id").First(&existing).Error
		switch {
		case findErr == nil:
			if !existing.Active {
				if err := tx.Model(&existing).Update("active", true).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				existing.Active = true
			}
			sentinel = &existing
			return nil
		case !errors.Is(findErr, gorm.ErrRecordNotFound):
			return apperrors.Wrap(apperrors.ErrInternalServer, findErr)
		}

		sentinel = &models.Category{
			Name:        name,
			Description: sentinelDescription,
			Level:       0,
			Active:      true,
		}
		if err := tx.Create(sentinel).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sentinel, created, nil
}
