package services

import (
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"stockroom/internal/logger"
	"stockroom/internal/models"
)

// AuditAction names an operator mutation kept in the audit trail.
type AuditAction string

const (
	ActionCreateCategory AuditAction = "CREATE_CATEGORY"
	ActionUpdateCategory AuditAction = "UPDATE_CATEGORY"
	ActionMoveCategory   AuditAction = "MOVE_CATEGORY"
	ActionDeleteCategory AuditAction = "DELETE_CATEGORY"
	ActionCreateItem     AuditAction = "CREATE_ITEM"
)

// ResourceType is "item" for item actions and "category" otherwise.
func (a AuditAction) ResourceType() string {
	if strings.HasSuffix(string(a), "_ITEM") {
		return "item"
	}
	return "category"
}

// AuditEvent is one entry of the audit trail. State is the outcome of the
// mutation as returned to the operator (a category, move or delete result,
// an item) and is stored as JSON.
type AuditEvent struct {
	ActorID    string
	Action     AuditAction
	ResourceID string
	IPAddress  string
	State      interface{}
}

type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Record stores event. The mutation it describes has already committed,
// so failures are logged and swallowed.
func (s *auditService) Record(event AuditEvent) {
	log := logger.Get().With(
		"actor_id", event.ActorID,
		"action", event.Action,
		"resource_id", event.ResourceID,
	)

	entry := &models.AuditLog{
		ActorID:      event.ActorID,
		Action:       string(event.Action),
		ResourceType: event.Action.ResourceType(),
		ResourceID:   event.ResourceID,
		IPAddress:    event.IPAddress,
	}
	if event.State != nil {
		state, err := json.Marshal(event.State)
		if err != nil {
			log.Errorw("audit state not encodable", "error", err)
		} else {
			entry.Changes = string(state)
		}
	}

	if err := s.db.Create(entry).Error; err != nil {
		log.Errorw("audit entry not stored", "error", err)
	}
}
