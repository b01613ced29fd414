package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftmarket/core/events"
	"nftmarket/native/market"
)

// DefaultSalesLimit bounds Sales when the caller does not.
const DefaultSalesLimit = 50

// MaxSalesLimit is the largest page Sales returns.
const MaxSalesLimit = 500

// Open connects to the sale-history database and applies migrations.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer records committed market events. It implements events.Emitter so
// it can be attached to the node's fan-out; write failures are logged and
// never affect state.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// New wraps an open database.
func New(db *gorm.DB, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log, nowFn: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the clock used for CreatedAt. Intended for tests.
func (ix *Indexer) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ix.nowFn = now
}

// Emit implements events.Emitter.
func (ix *Indexer) Emit(evt events.Event) {
	if ix == nil || evt == nil {
		return
	}
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	if err := ix.Record(context.Background(), payload); err != nil {
		ix.logger.Warn("indexer write failed",
			slog.String("event", evt.EventType()),
			slog.Any("error", err))
	}
}

// Record journals the event and, for settlements, appends a sale row in the
// same database transaction.
func (ix *Indexer) Record(ctx context.Context, payload events.Payload) error {
	evt := payload.Event()
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	now := ix.nowFn()
	record := EventRecord{
		ID:         uuid.New(),
		Type:       evt.Type,
		AssetID:    evt.Attributes["assetId"],
		Attributes: string(attrs),
		CreatedAt:  now,
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if evt.Type != market.EventTypeSettled {
			return nil
		}
		sale := Sale{
			ID:        uuid.New(),
			AssetID:   evt.Attributes["assetId"],
			Seller:    evt.Attributes["seller"],
			Bidder:    evt.Attributes["bidder"],
			Recipient: evt.Attributes["recipient"],
			Denom:     evt.Attributes["denom"],
			Amount:    evt.Attributes["amount"],
			Mode:      evt.Attributes["mode"],
			CreatedAt: now,
		}
		return tx.Create(&sale).Error
	})
}

// Sales returns the most recent sales, newest first, optionally filtered by
// asset.
func (ix *Indexer) Sales(ctx context.Context, assetID string, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = DefaultSalesLimit
	}
	if limit > MaxSalesLimit {
		limit = MaxSalesLimit
	}
	query := ix.db.WithContext(ctx).Model(&Sale{})
	if id := strings.TrimSpace(assetID); id != "" {
		query = query.Where("asset_id = ?", id)
	}
	var sales []Sale
	if err := query.Order("created_at DESC").Limit(limit).Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("indexer: query sales: %w", err)
	}
	return sales, nil
}

// Events returns journaled events, oldest first. Empty eventType or assetID
// match every row.
func (ix *Indexer) Events(ctx context.Context, eventType, assetID string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = DefaultSalesLimit
	}
	if limit > MaxSalesLimit {
		limit = MaxSalesLimit
	}
	query := ix.db.WithContext(ctx).Model(&EventRecord{})
	if t := strings.TrimSpace(eventType); t != "" {
		query = query.Where("type = ?", t)
	}
	if id := strings.TrimSpace(assetID); id != "" {
		query = query.Where("asset_id = ?", id)
	}
	var out []EventRecord
	if err := query.Order("created_at ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query events: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
