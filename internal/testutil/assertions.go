package testutil

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	apperrors "stockroom/internal/errors"
	"stockroom/internal/models"
)

// AssertAppError fails unless err is an *AppError carrying code, and returns
// it so callers can look at the message or details.
func AssertAppError(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Errorf("expected %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
	return appErr
}

// AssertErrorDetail returns details[key] of a rejection, failing when the
// rejection carries no such detail.
func AssertErrorDetail(t *testing.T, err error, code, key string) interface{} {
	t.Helper()

	appErr := AssertAppError(t, err, code)
	details, ok := appErr.Details.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map details on %s, got %T", code, appErr.Details)
	}
	value, ok := details[key]
	if !ok {
		t.Fatalf("expected %q in %s details, got %v", key, code, details)
	}
	return value
}

// AssertLevels checks the stored level of each category id.
func AssertLevels(t *testing.T, db *gorm.DB, want map[string]int) {
	t.Helper()

	for id, level := range want {
		var category models.Category
		if err := db.Select("id", "name", "level").First(&category, "id = ?", id).Error; err != nil {
			t.Fatalf("failed to load category %s: %v", id, err)
		}
		if category.Level != level {
			t.Errorf("expected %s at level %d, got %d", category.Name, level, category.Level)
		}
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
