package database

import (
	"fmt"

	"stockroom/internal/config"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database configuration
type Config struct {
	Driver        string
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	SQLitePath    string
	MigrationsDir string
}

// NewConfig derives the database configuration from the application config.
func NewConfig(app *config.Config) (*Config, error) {
	cfg := &Config{
		Driver:        app.DBDriver,
		Host:          app.DBHost,
		Port:          app.DBPort,
		User:          app.DBUser,
		Password:      app.DBPassword,
		DBName:        app.DBName,
		SSLMode:       app.DBSSLMode,
		SQLitePath:    app.SQLitePath,
		MigrationsDir: app.MigrationsDir,
	}

	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (use %s or %s)", cfg.Driver, DriverPostgres, DriverSQLite)
	}
	return cfg, nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrateURL returns the golang-migrate database URL (postgres only).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// SourceURL returns the golang-migrate source URL for the migrations directory.
func (c *Config) SourceURL() string {
	return "file://" + c.MigrationsDir
}
