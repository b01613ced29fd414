package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sale is one completed transfer-and-settle.
type Sale struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID   string    `gorm:"size:256;index"`
	Seller    string    `gorm:"size:64;index"`
	Bidder    string    `gorm:"size:64;index"`
	Recipient string    `gorm:"size:64"`
	Denom     string    `gorm:"size:128"`
	// Amount is the decimal rendering; 256-bit values do not fit a SQL integer.
	Amount    string `gorm:"size:80"`
	Mode      string `gorm:"size:16"`
	CreatedAt time.Time
}

// EventRecord journals every committed event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"size:64;index"`
	AssetID    string    `gorm:"size:256;index"`
	Attributes string
	CreatedAt  time.Time
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Sale{}, &EventRecord{})
}
