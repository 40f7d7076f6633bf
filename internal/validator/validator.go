// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"stockroom/internal/models"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn adds the custom tags to v.
func RegisterOn(v *validator.Validate) {
	_ = v.RegisterValidation("category_name", validateCategoryName)
	_ = v.RegisterValidation("sort_order", validateSortOrder)
}

// validateCategoryName accepts 1..50 characters after trimming. Pointer
// fields are dereferenced by the validator before this runs.
func validateCategoryName(fl validator.FieldLevel) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
	return n >= 1 && n <= models.CategoryNameMaxLength
}

func validateSortOrder(fl validator.FieldLevel) bool {
	order := fl.Field().Int()
	return order >= 0 && order <= models.CategoryMaxSortOrder
}
