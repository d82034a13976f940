package clipstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// clipRecord — строка таблицы clips.
type clipRecord struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	Type      string
	CreatedAt time.Time
	Data      []byte
}

func (clipRecord) TableName() string { return "clips" }

func (r clipRecord) clip() Clip {
	return Clip{ID: r.ID, Name: r.Name, Type: r.Type, CreatedAt: r.CreatedAt, Data: r.Data}
}

// SQLite хранит клипы в одном файле базы данных вместе с метаданными.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite открывает (или создаёт) базу клипов по пути path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open clip database: %w", err)
	}
	if err := db.AutoMigrate(&clipRecord{}); err != nil {
		return nil, fmt.Errorf("migrate clip database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close закрывает соединение с базой.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) FetchBytes(ctx context.Context, id string) ([]byte, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Data, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Clip, error) {
	var rec clipRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Clip{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Clip{}, fmt.Errorf("read clip %s: %w", id, err)
	}
	return rec.clip(), nil
}

func (s *SQLite) Put(ctx context.Context, clip Clip) error {
	if err := validateID(clip.ID); err != nil {
		return err
	}
	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = time.Now().UTC()
	}
	rec := clipRecord{ID: clip.ID, Name: clip.Name, Type: clip.Type, CreatedAt: clip.CreatedAt, Data: clip.Data}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("write clip %s: %w", clip.ID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&clipRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete clip %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// List возвращает метаданные клипов без данных, по имени.
func (s *SQLite) List(ctx context.Context) ([]Clip, error) {
	var recs []clipRecord
	err := s.db.WithContext(ctx).
		Select("id", "name", "type", "created_at").
		Order("name").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	out := make([]Clip, len(recs))
	for i, r := range recs {
		out[i] = r.clip()
	}
	return out, nil
}
