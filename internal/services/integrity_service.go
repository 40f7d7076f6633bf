package services

import (
	"context"

	"gorm.io/gorm"

	"stockroom/internal/cache"
	apperrors "stockroom/internal/errors"
	"stockroom/internal/hierarchy"
	"stockroom/internal/logger"
	"stockroom/internal/models"
)

// integrityService inspects and repairs the persisted tree. Repair is meant
// for the operator CLI; it locks every category row for its transaction.
type integrityService struct {
	db          *gorm.DB
	breadcrumbs cache.BreadcrumbCache
	sentinelID  string
}

// NewIntegrityService creates a new IntegrityServicer.
func NewIntegrityService(db *gorm.DB, breadcrumbs cache.BreadcrumbCache, sentinelID string) IntegrityServicer {
	if breadcrumbs == nil {
		breadcrumbs = cache.Nop{}
	}
	return &integrityService{db: db, breadcrumbs: breadcrumbs, sentinelID: sentinelID}
}

// Check reports every invariant violation without changing anything.
func (s *integrityService) Check() (*IntegrityReport, error) {
	src, err := loadSnapshot(s.db, false)
	if err != nil {
		return nil, err
	}
	report := &IntegrityReport{
		Report:     hierarchy.Inspect(src),
		SentinelID: s.sentinelID,
	}
	if s.sentinelID != "" {
		if _, err := src.Node(s.sentinelID); err == nil {
			report.SentinelPresent = true
		}
	}
	report.DanglingItems, err = danglingItems(s.db)
	if err != nil {
		return nil, err
	}

	if !report.Healthy() {
		logger.Get().Warnw("data integrity: category tree check failed",
			"cycles", len(report.Cycles),
			"dangling_parents", len(report.DanglingParents),
			"too_deep", len(report.TooDeep),
			"level_drift", len(report.LevelDrift),
			"sentinel_present", report.SentinelPresent,
			"dangling_items", len(report.DanglingItems),
		)
	}
	return report, nil
}

// Repair brings the tree back within its invariants: cycle members and
// orphans become roots, overflowing nodes move up to the deepest allowed
// ancestor, levels are recomputed and items of missing categories go to
// the fallback category. A dry run computes the same plan without writing.
func (s *integrityService) Repair(dryRun bool) (*RepairResult, error) {
	result := &RepairResult{DryRun: dryRun, Fixes: []hierarchy.Fix{}}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		src, err := loadSnapshot(tx, true)
		if err != nil {
			return err
		}
		if fixes := hierarchy.PlanRepair(src.All()); fixes != nil {
			result.Fixes = fixes
		}

		dangling, err := danglingItems(tx)
		if err != nil {
			return err
		}
		result.ItemsReassigned = int64(len(dangling))

		if dryRun {
			return nil
		}

		for _, fix := range result.Fixes {
			if err := tx.Model(&models.Category{}).Where("id = ?", fix.ID).Updates(map[string]interface{}{
				"parent_id": parentColumn(fix.NewParentID),
				"level":     fix.NewLevel,
			}).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		if len(dangling) == 0 {
			return nil
		}
		if _, err := src.Node(s.sentinelID); s.sentinelID == "" || err != nil {
			logger.Alert("fallback category missing, dangling items left in place",
				"sentinel_id", s.sentinelID,
				"dangling_items", len(dangling),
			)
			return apperrors.ErrMissingSentinel
		}
		if err := tx.Model(&models.Item{}).Where("id IN ?", dangling).
			Update("category_id", s.sentinelID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !dryRun && (len(result.Fixes) > 0 || result.ItemsReassigned > 0) {
		s.breadcrumbs.InvalidateAll(context.Background())
		logger.Get().Infow("category tree repaired",
			"fixes", len(result.Fixes),
			"items_reassigned", result.ItemsReassigned,
		)
	}
	return result, nil
}

// danglingItems returns the ids of items whose category is missing or deleted.
func danglingItems(db *gorm.DB) ([]string, error) {
	live := db.Unscoped().Model(&models.Category{}).Select("id").Where("deleted_at IS NULL")

	var ids []string
	if err := db.Model(&models.Item{}).
		Where("category_id NOT IN (?)", live).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
