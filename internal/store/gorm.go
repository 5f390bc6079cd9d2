package store

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqliteDriver "github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrEmptyKey is returned when a binding is written without both ids.
var ErrEmptyKey = errors.New("binding requires local and remote conversation ids")

// OpenGorm opens a SQL database for the given driver ("sqlite" or
// "postgres"). SQLite files get their parent directory created.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver != "sqlite" {
			return nil, errors.Errorf("dsn is required for driver %q", driver)
		}
		dsn = "genie-relay.db"
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch driver {
	case "sqlite":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, errors.Errorf("unsupported driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	if strings.Contains(strings.ToLower(dsn), ":memory:") {
		return nil
	}
	path := dsn
	if strings.HasPrefix(strings.ToLower(path), "file:") {
		parsed, err := url.Parse(path)
		if err != nil || parsed.Query().Get("mode") == "memory" {
			return nil
		}
		path = parsed.Opaque
		if path == "" {
			path = parsed.Path
		}
	}
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}

	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return errors.Wrap(os.MkdirAll(dir, 0o755), "create sqlite db dir")
}

// GormStore keeps bindings in a SQL table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and migrates the bindings table.
func NewGormStore(driver, dsn string) (*GormStore, error) {
	db, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open binding store")
	}
	if err := db.AutoMigrate(&bindingRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate binding store")
	}
	return &GormStore{db: db}, nil
}

// Get returns the remote conversation bound to localID.
func (s *GormStore) Get(ctx context.Context, localID string) (string, bool, error) {
	localID = strings.TrimSpace(localID)
	if localID == "" {
		return "", false, nil
	}

	var row bindingRow
	err := s.db.WithContext(ctx).Where("local_conversation_id = ?", localID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get binding")
	}
	return row.RemoteConversationID, true, nil
}

// PutIfAbsent inserts the binding unless the local id is already bound.
func (s *GormStore) PutIfAbsent(ctx context.Context, localID, remoteID string) (string, bool, error) {
	localID = strings.TrimSpace(localID)
	if localID == "" || remoteID == "" {
		return "", false, ErrEmptyKey
	}

	row := bindingRow{
		LocalConversationID:  localID,
		RemoteConversationID: remoteID,
		CreatedAt:            time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "local_conversation_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return "", false, errors.Wrap(res.Error, "put binding")
	}
	if res.RowsAffected == 1 {
		return remoteID, true, nil
	}

	existing, ok, err := s.Get(ctx, localID)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, errors.Errorf("binding for %s vanished after conflict", localID)
	}
	return existing, false, nil
}

// Close closes the underlying database.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.Close()
}

type bindingRow struct {
	LocalConversationID  string    `gorm:"primaryKey;size:512"`
	RemoteConversationID string    `gorm:"size:191;not null"`
	CreatedAt            time.Time `gorm:"not null"`
}

func (bindingRow) TableName() string {
	return "conversation_bindings"
}
