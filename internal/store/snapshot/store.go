// Package snapshot persists the latest per-cycle market artifacts, the
// enriched index bars and the option-chain snapshot, to SQLite via Gorm.
// Each save replaces the previous cycle so restarts resume from the most
// recent market view.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"ironfly/internal/analysis/indicator"
	"ironfly/internal/market"
)

type barRowModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp int64          `gorm:"column:timestamp;uniqueIndex"`
	Close     float64        `gorm:"column:close"`
	ShortMA   float64        `gorm:"column:short_ma"`
	LongMA    float64        `gorm:"column:long_ma"`
	StdDev    float64        `gorm:"column:std_dev"`
	RSI       float64        `gorm:"column:rsi"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	UpdatedAt int64          `gorm:"column:updated_at"`
}

func (barRowModel) TableName() string { return "index_bars" }

type chainRowModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	Timestamp  int64          `gorm:"column:timestamp"`
	Underlying float64        `gorm:"column:underlying"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	UpdatedAt  int64          `gorm:"column:updated_at"`
}

func (chainRowModel) TableName() string { return "chain_snapshots" }

// Store keeps the rolling market state between cycles.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the snapshot database at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapshot store: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot store open: %w", err)
	}
	if err := db.AutoMigrate(&barRowModel{}, &chainRowModel{}); err != nil {
		return nil, fmt.Errorf("snapshot store migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBars replaces the stored bar window with bars. The full enriched row
// travels as JSON so schema changes never lose data.
func (s *Store) SaveBars(ctx context.Context, bars []indicator.EnrichedBar) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	now := time.Now().Unix()
	models := make([]barRowModel, 0, len(bars))
	for _, b := range bars {
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bar: %w", err)
		}
		models = append(models, barRowModel{
			Timestamp: b.Timestamp.Unix(),
			Close:     b.Close,
			ShortMA:   b.ShortMA,
			LongMA:    b.LongMA,
			StdDev:    b.StdDev,
			RSI:       b.RSI,
			Payload:   payload,
			UpdatedAt: now,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&barRowModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "timestamp"}},
			DoUpdates: clause.AssignmentColumns([]string{"close", "short_ma", "long_ma", "std_dev", "rsi", "payload", "updated_at"}),
		}).Create(&models).Error
	})
}

// LoadBars returns the stored bar window in timestamp order.
func (s *Store) LoadBars(ctx context.Context) ([]indicator.EnrichedBar, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("snapshot store not initialized")
	}
	var models []barRowModel
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	bars := make([]indicator.EnrichedBar, 0, len(models))
	for _, m := range models {
		var b indicator.EnrichedBar
		if err := json.Unmarshal(m.Payload, &b); err != nil {
			return nil, fmt.Errorf("decode bar payload: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// SaveChain replaces the single stored option-chain snapshot.
func (s *Store) SaveChain(ctx context.Context, chain market.ChainSnapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	payload, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}
	model := chainRowModel{
		ID:         1,
		Timestamp:  chain.Timestamp.Unix(),
		Underlying: chain.Underlying,
		Payload:    payload,
		UpdatedAt:  time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "underlying", "payload", "updated_at"}),
	}).Create(&model).Error
}

// LoadChain returns the last stored option-chain snapshot, or an empty one
// when nothing has been saved yet.
func (s *Store) LoadChain(ctx context.Context) (market.ChainSnapshot, error) {
	if s == nil || s.db == nil {
		return market.ChainSnapshot{}, fmt.Errorf("snapshot store not initialized")
	}
	var model chainRowModel
	err := s.db.WithContext(ctx).First(&model, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.ChainSnapshot{}, nil
	}
	if err != nil {
		return market.ChainSnapshot{}, err
	}
	var chain market.ChainSnapshot
	if err := json.Unmarshal(model.Payload, &chain); err != nil {
		return market.ChainSnapshot{}, fmt.Errorf("decode chain payload: %w", err)
	}
	return chain, nil
}
