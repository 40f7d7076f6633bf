package models

// Field limits shared by request validation and the category service.
const (
	CategoryNameMaxLength        = 50
	CategoryDescriptionMaxLength = 200
	CategoryMaxSortOrder         = 9999
)

// Category is a node of the three-tier classification tree used to file
// catalog items. ParentID nil marks a root. Level is derived from the
// ancestor chain and only written by the category service.
type Category struct {
	Base
	Name        string  `gorm:"size:50;not null;index" json:"name"`
	Description string  `gorm:"size:200" json:"description"`
	ParentID    *string `gorm:"type:uuid;index" json:"parent_id"`
	Level       int     `gorm:"not null;index" json:"level"`
	SortOrder   int     `gorm:"not null" json:"order"`
	Active      bool    `gorm:"not null;index" json:"active"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}
