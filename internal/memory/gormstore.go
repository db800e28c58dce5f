package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"horse.fit/lingo/internal/db"
)

const defaultStoreTimeout = 5 * time.Second

type translationRow struct {
	Key            string    `gorm:"primaryKey;size:191"`
	SourceLang     string    `gorm:"size:16"`
	TargetLang     string    `gorm:"size:16"`
	TranslatedText string    `gorm:"type:text"`
	Provider       string    `gorm:"size:64"`
	CreatedAt      time.Time `gorm:"index"`
	ExpiresAt      time.Time `gorm:"index"`
}

func (translationRow) TableName() string {
	return "lingo_translation_memory"
}

// GormStore persists translation memory records in Postgres.
type GormStore struct {
	pool    *db.Pool
	timeout time.Duration
}

func NewGormStore(pool *db.Pool) (*GormStore, error) {
	if pool == nil || pool.GORM() == nil {
		return nil, fmt.Errorf("%w: database pool is not initialized", ErrStorage)
	}
	if err := pool.GORM().AutoMigrate(&translationRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate translation memory table: %v", ErrStorage, err)
	}
	return &GormStore{pool: pool, timeout: defaultStoreTimeout}, nil
}

func (s *GormStore) Read(ctx context.Context, key string) (*Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: store is not initialized", ErrStorage)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row translationRow
	err := s.pool.GORM().WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: read %q", ErrTimeout, key)
		}
		return nil, fmt.Errorf("%w: read %q: %v", ErrStorage, key, err)
	}

	return &Record{
		SourceLang:     row.SourceLang,
		TargetLang:     row.TargetLang,
		TranslatedText: row.TranslatedText,
		Provider:       row.Provider,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
	}, nil
}

func (s *GormStore) Write(ctx context.Context, key string, record Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: store is not initialized", ErrStorage)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := translationRow{
		Key:            key,
		SourceLang:     record.SourceLang,
		TargetLang:     record.TargetLang,
		TranslatedText: record.TranslatedText,
		Provider:       record.Provider,
		CreatedAt:      record.CreatedAt,
		ExpiresAt:      record.ExpiresAt,
	}

	err := s.pool.GORM().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: write %q", ErrTimeout, key)
		}
		return fmt.Errorf("%w: write %q: %v", ErrStorage, key, err)
	}
	return nil
}
