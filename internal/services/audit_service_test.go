package services

import (
	"encoding/json"
	"testing"

	"stockroom/internal/models"
	"stockroom/internal/testutil"
)

func TestAuditActionResourceType(t *testing.T) {
	tests := []struct {
		action AuditAction
		want   string
	}{
		{ActionCreateCategory, "category"},
		{ActionMoveCategory, "category"},
		{ActionDeleteCategory, "category"},
		{ActionCreateItem, "item"},
	}
	for _, tt := range tests {
		if got := tt.action.ResourceType(); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.action, tt.want, got)
		}
	}
}

func TestAuditRecord(t *testing.T) {
	t.Run("stores_move_outcome", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		parentID := "0192f7a0-0000-7000-8000-000000000002"
		NewAuditService(db).Record(AuditEvent{
			ActorID:    "operator-1",
			Action:     ActionMoveCategory,
			ResourceID: "0192f7a0-0000-7000-8000-000000000001",
			IPAddress:  "10.0.0.1",
			State: &MoveResult{
				ID:         "0192f7a0-0000-7000-8000-000000000001",
				ParentID:   &parentID,
				Order:      2,
				Level:      1,
				Breadcrumb: []string{"Engine", "Belts"},
				Path:       "Engine > Belts",
				Changed:    true,
			},
		})

		var entries []models.AuditLog
		if err := db.Find(&entries).Error; err != nil {
			t.Fatalf("read audit log: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		entry := entries[0]
		if entry.ActorID != "operator-1" || entry.Action != "MOVE_CATEGORY" ||
			entry.ResourceType != "category" || entry.IPAddress != "10.0.0.1" {
			t.Errorf("unexpected entry %+v", entry)
		}

		var state MoveResult
		if err := json.Unmarshal([]byte(entry.Changes), &state); err != nil {
			t.Fatalf("state should be JSON: %v", err)
		}
		if state.ParentID == nil || *state.ParentID != parentID || state.Path != "Engine > Belts" {
			t.Errorf("unexpected stored move %+v", state)
		}
	})

	t.Run("without_state", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		NewAuditService(db).Record(AuditEvent{ActorID: "operator-1", Action: ActionCreateItem, ResourceID: "x"})

		var entry models.AuditLog
		if err := db.First(&entry).Error; err != nil {
			t.Fatalf("read audit log: %v", err)
		}
		if entry.Changes != "" || entry.ResourceType != "item" {
			t.Errorf("unexpected entry %+v", entry)
		}
	})

	t.Run("unencodable_state_still_recorded", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		NewAuditService(db).Record(AuditEvent{
			ActorID:    "operator-1",
			Action:     ActionDeleteCategory,
			ResourceID: "x",
			State:      make(chan int),
		})

		var count int64
		db.Model(&models.AuditLog{}).Where("action = ?", "DELETE_CATEGORY").Count(&count)
		if count != 1 {
			t.Errorf("expected entry without state, got %d entries", count)
		}
	})
}
