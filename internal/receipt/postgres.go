package receipt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// headerColumns are the receipt columns replaced by UpdateReceipt
var headerColumns = []string{
	"merchant_name", "transaction_date", "subtotal", "tax", "tip", "total",
	"receipt_type", "confidence_score", "updated_at",
}

// PostgresDB implements the DB interface on PostgreSQL using gorm
type PostgresDB struct {
	db *gorm.DB
}

// NewPostgresDB connects to PostgreSQL. The schema is managed by Migrate.
func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position, id")
}

// InsertReceipt stores the header and its items in one transaction
func (p *PostgresDB) InsertReceipt(ctx context.Context, receipt *Receipt) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(receipt).Error; err != nil {
			return fmt.Errorf("inserting receipt: %w", err)
		}
		if len(receipt.Items) == 0 {
			return nil
		}
		for i := range receipt.Items {
			receipt.Items[i].ReceiptID = receipt.ID
			receipt.Items[i].Position = i
		}
		if err := tx.Create(&receipt.Items).Error; err != nil {
			return fmt.Errorf("inserting items: %w", err)
		}
		return nil
	})
}

// GetReceipt retrieves a receipt with its items in insertion order
func (p *PostgresDB) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var receipt Receipt
	err := p.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("id = ?", id).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return &receipt, nil
}

// ListReceipts returns a page of receipts ordered by creation time, then ID
func (p *PostgresDB) ListReceipts(ctx context.Context, offset, limit int) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := p.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Order("created_at, id").
		Offset(offset).
		Limit(limit).
		Find(&receipts).Error
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// UpdateReceipt replaces the header columns and items in one transaction
func (p *PostgresDB) UpdateReceipt(ctx context.Context, receipt *Receipt) error {
	if _, err := uuid.Parse(receipt.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, receipt.ID)
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Receipt{}).
			Where("id = ?", receipt.ID).
			Select(headerColumns).
			Updates(map[string]interface{}{
				"merchant_name":    receipt.MerchantName,
				"transaction_date": receipt.TransactionDate,
				"subtotal":         receipt.Subtotal,
				"tax":              receipt.Tax,
				"tip":              receipt.Tip,
				"total":            receipt.Total,
				"receipt_type":     receipt.ReceiptType,
				"confidence_score": receipt.ConfidenceScore,
				"updated_at":       receipt.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("updating receipt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, receipt.ID)
		}

		if err := tx.Where("receipt_id = ?", receipt.ID).Delete(&Item{}).Error; err != nil {
			return fmt.Errorf("clearing items: %w", err)
		}
		if len(receipt.Items) == 0 {
			return nil
		}
		for i := range receipt.Items {
			receipt.Items[i].ID = 0
			receipt.Items[i].ReceiptID = receipt.ID
			receipt.Items[i].Position = i
		}
		if err := tx.Create(&receipt.Items).Error; err != nil {
			return fmt.Errorf("inserting items: %w", err)
		}
		return nil
	})
}

// DeleteReceipt removes the items and header in one transaction
func (p *PostgresDB) DeleteReceipt(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", id).Delete(&Item{}).Error; err != nil {
			return fmt.Errorf("deleting items: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&Receipt{})
		if res.Error != nil {
			return fmt.Errorf("deleting receipt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Ping checks the database connection
func (p *PostgresDB) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (p *PostgresDB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
