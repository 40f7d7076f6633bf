package models

// Item is a catalog entry filed under a category. The catalog owns items;
// CategoryID is a lookup-only reference that the category engine repoints
// to the fallback category when the referenced category is deleted.
type Item struct {
	Base
	Code       string `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name       string `gorm:"size:200;not null" json:"name"`
	CategoryID string `gorm:"type:uuid;not null;index" json:"category_id"`
	Active     bool   `gorm:"not null;index" json:"active"`
}

// TableName keeps catalog entries apart from any future inventory tables.
func (Item) TableName() string {
	return "catalog_items"
}
