// Package audit keeps the history of request status changes in a SQL
// database. The record store stays the only source of truth for requests;
// the trail is informational.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StatusChange is one coordinator status update.
type StatusChange struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	TicketID   string    `json:"ticket_id" gorm:"size:20;not null;index"`
	FromStatus string    `json:"from_status" gorm:"size:20"`
	ToStatus   string    `json:"to_status" gorm:"size:20;not null"`
	Message    string    `json:"message" gorm:"type:text"`
	Outputs    int       `json:"outputs"`
	Operator   string    `json:"operator" gorm:"size:255"`
	CreatedAt  time.Time `json:"created_at"`
}

func (StatusChange) TableName() string {
	return "request_status_changes"
}

// Config selects the database. Driver is "sqlite" or "postgres".
type Config struct {
	Driver   string
	DSN      string
	LogLevel string
}

// Open connects and migrates the audit table.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "requestdesk.db"
		}
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel))})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	if err := db.AutoMigrate(&StatusChange{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return db, nil
}

// ensureDir creates the parent directory of a sqlite file path. URI and
// in-memory DSNs are left to the driver.
func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create audit database directory: %w", err)
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "info", "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	}
	return logger.Silent
}

// Repository reads and writes status changes.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record stores one change.
func (r *Repository) Record(ctx context.Context, c *StatusChange) error {
	if c.ID == "" {
		c.ID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("record status change: %w", err)
	}
	return nil
}

// History lists the changes of one ticket, oldest first.
func (r *Repository) History(ctx context.Context, ticketID string) ([]StatusChange, error) {
	var items []StatusChange
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return items, nil
}
