package models

// AuditLog records category tree mutations for operator review.
type AuditLog struct {
	Base
	ActorID      string `gorm:"not null;index" json:"actor_id"`
	Action       string `gorm:"not null" json:"action"`
	ResourceType string `gorm:"not null" json:"resource_type"`
	ResourceID   string `gorm:"index" json:"resource_id"`
	IPAddress    string `json:"ip_address"`
	Changes      string `json:"changes,omitempty"`
}
