package services

import (
	"gorm.io/gorm"

	"stockroom/internal/hierarchy"
	"stockroom/internal/models"
	"stockroom/internal/pagination"
)

// CategoryInput holds the fields of a new category.
type CategoryInput struct {
	Name        string
	Description string
	ParentID    *string
	Order       int
	// Active defaults to true when nil.
	Active *bool
}

// CategoryUpdate holds optional changes to an existing category. A non-nil
// ParentID reparents under that category; ToRoot detaches to root.
type CategoryUpdate struct {
	Name        *string
	Description *string
	Order       *int
	Active      *bool
	ParentID    *string
	ToRoot      bool
}

// CategoryFilter holds optional filter parameters for listing categories.
type CategoryFilter struct {
	Search string
	Active *bool
}

// ChildEntry is an (id, name) pair for cascading selects.
type ChildEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TreeNode is a category with its nested children.
type TreeNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Level    int         `json:"level"`
	Order    int         `json:"order"`
	Active   bool        `json:"active"`
	Children []*TreeNode `json:"children"`
}

// Breadcrumb is the root-first name chain of a category.
type Breadcrumb struct {
	Breadcrumb []string `json:"breadcrumb"`
	Path       string   `json:"path"`
}

// MoveTarget is a category that can accept a given node as a child.
type MoveTarget struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Path  string `json:"path"`
}

// MoveResult describes a category after a successful move.
type MoveResult struct {
	ID         string   `json:"id"`
	ParentID   *string  `json:"parent_id"`
	Order      int      `json:"order"`
	Level      int      `json:"level"`
	Breadcrumb []string `json:"breadcrumb"`
	Path       string   `json:"path"`
	Changed    bool     `json:"changed"`
}

// DeleteResult describes a successful category deletion.
type DeleteResult struct {
	ID              string `json:"id"`
	SentinelID      string `json:"sentinel_id"`
	ItemsReassigned int64  `json:"items_reassigned"`
}

// CategoryServicer defines the contract for the category tree engine.
type CategoryServicer interface {
	CreateCategory(input CategoryInput) (*models.Category, error)
	GetCategoryByID(id string) (*models.Category, error)
	ListCategories(filter CategoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	ListChildren(parentID *string) ([]ChildEntry, error)
	GetTree() ([]*TreeNode, error)
	UpdateCategory(id string, update CategoryUpdate) (*models.Category, error)
	MoveCategory(id string, newParentID *string, newOrder int) (*MoveResult, error)
	DeleteCategory(id string) (*DeleteResult, error)
	GetBreadcrumb(id string) (*Breadcrumb, error)
	GetDescendants(id string) ([]string, error)
	GetMoveTargets(id string) ([]MoveTarget, error)
	SubtreeItemCount(id string) (int64, error)
	CategoryExists(id string) bool
	SentinelID() string
}

// CatalogCollaborator is the part of the item catalog the category engine
// calls into. OnCategoryDeleted runs inside the deleting transaction.
type CatalogCollaborator interface {
	OnCategoryDeleted(tx *gorm.DB, oldCategoryID, sentinelID string) (int64, error)
	CountActiveItems(categoryIDs []string) (int64, error)
}

// ItemServicer defines the contract for catalog items.
type ItemServicer interface {
	CatalogCollaborator
	CreateItem(code, name, categoryID string) (*models.Item, error)
	GetItemByID(id string) (*models.Item, error)
	ListItemsByCategories(categoryIDs []string, page pagination.PageRequest) (*pagination.PageResponse[models.Item], error)
}

// IntegrityReport extends the structural tree report with the checks that
// need the database: the fallback category and item references.
type IntegrityReport struct {
	hierarchy.Report
	SentinelID      string   `json:"sentinel_id"`
	SentinelPresent bool     `json:"sentinel_present"`
	DanglingItems   []string `json:"dangling_items"`
}

// Healthy reports whether every invariant holds.
func (r IntegrityReport) Healthy() bool {
	return r.Report.Healthy() && r.SentinelPresent && len(r.DanglingItems) == 0
}

// RepairResult lists what Repair changed, or would change on a dry run.
type RepairResult struct {
	DryRun          bool            `json:"dry_run"`
	Fixes           []hierarchy.Fix `json:"fixes"`
	ItemsReassigned int64           `json:"items_reassigned"`
}

// IntegrityServicer checks and repairs persisted tree data.
type IntegrityServicer interface {
	Check() (*IntegrityReport, error)
	Repair(dryRun bool) (*RepairResult, error)
}

// AuditServicer records operator mutations.
type AuditServicer interface {
	Record(event AuditEvent)
}
