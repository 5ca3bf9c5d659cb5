// Package journal persists a write-only trading history to SQLite.
//
// Two tables: fills (one row per ingested fill) and emits (one row per tick
// whose diff was non-empty). The journal is pure record keeping for the
// operator — it is never read back into the control loop, and every write
// failure is logged and swallowed so persistence can never stall quoting.
// Open returns its error to the caller.
package journal

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// FillRecord is one executed fill.
type FillRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Coin        string `gorm:"index"`
	TID         int64  `gorm:"uniqueIndex"`
	OID         int64
	Side        string
	Price       float64
	Size        float64
	FullyFilled bool
	CreatedAt   time.Time
}

// EmitRecord is one tick's dispatch summary.
type EmitRecord struct {
	ID             uint   `gorm:"primaryKey"`
	Coin           string `gorm:"index"`
	Tick           int64
	Cancelled      int
	Modified       int
	Placed         int
	Errors         int
	CancelOnlyMode bool
	CreatedAt      time.Time
}

// Journal writes trading history to a SQLite file.
type Journal struct {
	db     *gorm.DB
	coin   string
	logger *slog.Logger
}

// Open creates (or migrates) the journal database at path.
func Open(path, coin string, logger *slog.Logger) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.AutoMigrate(&FillRecord{}, &EmitRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	return &Journal{
		db:     db,
		coin:   coin,
		logger: logger.With("component", "journal"),
	}, nil
}

// RecordFill appends one fill row.
func (j *Journal) RecordFill(tid, oid int64, side string, price, size float64, fullyFilled bool) {
	rec := FillRecord{
		Coin:        j.coin,
		TID:         tid,
		OID:         oid,
		Side:        side,
		Price:       price,
		Size:        size,
		FullyFilled: fullyFilled,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		j.logger.Warn("failed to record fill", "tid", tid, "error", err)
	}
}

// RecordEmit appends one emit-summary row.
func (j *Journal) RecordEmit(tick int64, cancelled, modified, placed, errors int, cancelOnly bool) {
	rec := EmitRecord{
		Coin:           j.coin,
		Tick:           tick,
		Cancelled:      cancelled,
		Modified:       modified,
		Placed:         placed,
		Errors:         errors,
		CancelOnlyMode: cancelOnly,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		j.logger.Warn("failed to record emit", "tick", tick, "error", err)
	}
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
