package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	appLog "civcal/internal/log"
)

// credential holds the bearer token. There is at most one row.
type credential struct {
	ID        uint `gorm:"primaryKey"`
	Token     string
	UpdatedAt time.Time
}

// Delivery records a notification that has already been shown, so a
// refresh or a restart does not show it again.
type Delivery struct {
	ID          uint   `gorm:"primaryKey"`
	EventID     string `gorm:"uniqueIndex:idx_delivery"`
	InstanceKey string `gorm:"uniqueIndex:idx_delivery"`
	Phase       string `gorm:"uniqueIndex:idx_delivery"`
	StartUnix   int64  `gorm:"uniqueIndex:idx_delivery"`
	DeliveredAt time.Time
}

// Store is the agent's local persistent storage: the credential and the
// notification ledger.
type Store struct {
	db        *gorm.DB
	tokenFile string
}

// Open opens (or creates) the SQLite database at dsn and runs migrations.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "civcal.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&credential{}, &Delivery{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

// UseTokenFile makes Token fall back to the given file when no token is
// stored in the database. The login flow writes this file.
func (s *Store) UseTokenFile(path string) {
	s.tokenFile = path
}

func (s *Store) TokenFile() string {
	return s.tokenFile
}

// Token returns the stored bearer token, or "" when signed out.
func (s *Store) Token() (string, error) {
	var c credential
	err := s.db.First(&c, 1).Error
	switch {
	case err == nil && strings.TrimSpace(c.Token) != "":
		return strings.TrimSpace(c.Token), nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("read credential: %w", err)
	}

	if s.tokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) SetToken(token string) error {
	c := credential{ID: 1, Token: strings.TrimSpace(token), UpdatedAt: time.Now()}
	if err := s.db.Save(&c).Error; err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// ClearToken signs the agent out. The token file, if any, is left alone.
func (s *Store) ClearToken() error {
	if err := s.db.Delete(&credential{}, 1).Error; err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Delivered reports whether the given notification was already shown.
func (s *Store) Delivered(eventID, instanceKey, phase string, start time.Time) (bool, error) {
	var n int64
	err := s.db.Model(&Delivery{}).
		Where("event_id = ? AND instance_key = ? AND phase = ? AND start_unix = ?", eventID, instanceKey, phase, start.Unix()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("query delivery: %w", err)
	}
	return n > 0, nil
}

func (s *Store) MarkDelivered(eventID, instanceKey, phase string, start time.Time) error {
	d := Delivery{
		EventID:     eventID,
		InstanceKey: instanceKey,
		Phase:       phase,
		StartUnix:   start.Unix(),
		DeliveredAt: time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&d).Error
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// PruneDeliveries drops ledger rows for events that started before cutoff.
func (s *Store) PruneDeliveries(cutoff time.Time) (int64, error) {
	res := s.db.Where("start_unix < ?", cutoff.Unix()).Delete(&Delivery{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune deliveries: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		appLog.Debug("pruned notification ledger", "rows", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
