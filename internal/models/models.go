package models

// All returns every model managed by gorm AutoMigrate (sqlite and tests).
func All() []interface{} {
	return []interface{}{
		&Category{},
		&Item{},
		&AuditLog{},
	}
}
