package receipt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptsBucket = "receipts"
	itemsBucket    = "receipt_items"
	createdBucket  = "receipts_by_created"
)

// DB defines the interface for receipt persistence. Every write is atomic:
// a receipt header and its items are stored or removed together.
type DB interface {
	// InsertReceipt stores a new receipt and its items
	InsertReceipt(ctx context.Context, receipt *Receipt) error

	// GetReceipt retrieves a receipt and its items by ID
	GetReceipt(ctx context.Context, id string) (*Receipt, error)

	// ListReceipts returns receipts ordered by creation time
	ListReceipts(ctx context.Context, offset, limit int) ([]*Receipt, error)

	// UpdateReceipt replaces the stored header and items of a receipt
	UpdateReceipt(ctx context.Context, receipt *Receipt) error

	// DeleteReceipt removes a receipt and its items
	DeleteReceipt(ctx context.Context, id string) error

	// Ping checks that the database is reachable
	Ping(ctx context.Context) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Items live in a nested
// bucket per receipt keyed by insertion sequence, and an index bucket keeps
// receipts ordered by creation time.
type BoltDB struct {
	db *bbolt.DB
}

// boltRecord carries the fields hidden from the API alongside the receipt
type boltRecord struct {
	Receipt
	RawData     string `json:"raw_data"`
	StoragePath string `json:"storage_path"`
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptsBucket, itemsBucket, createdBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func createdKey(r *Receipt) []byte {
	key := make([]byte, 8, 8+len(r.ID))
	binary.BigEndian.PutUint64(key, uint64(r.CreatedAt.UnixNano()))
	return append(key, r.ID...)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func putHeader(tx *bbolt.Tx, r *Receipt) error {
	rec := boltRecord{Receipt: *r, RawData: r.RawData, StoragePath: r.StoragePath}
	rec.Items = nil
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}
	return tx.Bucket([]byte(receiptsBucket)).Put([]byte(r.ID), data)
}

func getHeader(tx *bbolt.Tx, id string) (*Receipt, error) {
	data := tx.Bucket([]byte(receiptsBucket)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt: %w", err)
	}
	r := rec.Receipt
	r.RawData = rec.RawData
	r.StoragePath = rec.StoragePath
	return &r, nil
}

// putItems replaces the item bucket of the receipt, assigning IDs in order
func putItems(tx *bbolt.Tx, r *Receipt) error {
	parent := tx.Bucket([]byte(itemsBucket))
	if parent.Bucket([]byte(r.ID)) != nil {
		if err := parent.DeleteBucket([]byte(r.ID)); err != nil {
			return fmt.Errorf("clearing items: %w", err)
		}
	}
	bucket, err := parent.CreateBucket([]byte(r.ID))
	if err != nil {
		return fmt.Errorf("creating item bucket: %w", err)
	}

	for i := range r.Items {
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		item := &r.Items[i]
		item.ID = seq
		item.ReceiptID = r.ID
		item.Position = i

		data, err := json.Marshal(item.LineItem)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		if err := bucket.Put(itob(seq), data); err != nil {
			return err
		}
	}
	return nil
}

func getItems(tx *bbolt.Tx, id string) ([]Item, error) {
	items := make([]Item, 0)
	bucket := tx.Bucket([]byte(itemsBucket)).Bucket([]byte(id))
	if bucket == nil {
		return items, nil
	}
	err := bucket.ForEach(func(k, v []byte) error {
		var li LineItem
		if err := json.Unmarshal(v, &li); err != nil {
			return fmt.Errorf("unmarshaling item: %w", err)
		}
		items = append(items, Item{
			ID:        binary.BigEndian.Uint64(k),
			ReceiptID: id,
			Position:  len(items),
			LineItem:  li,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func loadReceipt(tx *bbolt.Tx, id string) (*Receipt, error) {
	r, err := getHeader(tx, id)
	if err != nil {
		return nil, err
	}
	if r.Items, err = getItems(tx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// InsertReceipt saves a new receipt and its items in one transaction
func (b *BoltDB) InsertReceipt(_ context.Context, receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(receiptsBucket)).Get([]byte(receipt.ID)) != nil {
			return fmt.Errorf("receipt already exists: %s", receipt.ID)
		}
		if err := putHeader(tx, receipt); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(createdBucket)).Put(createdKey(receipt), []byte(receipt.ID)); err != nil {
			return err
		}
		return putItems(tx, receipt)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(_ context.Context, id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		receipt, err = loadReceipt(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns a page of receipts ordered by creation time, then ID
func (b *BoltDB) ListReceipts(_ context.Context, offset, limit int) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(createdBucket)).Cursor()
		skipped := 0
		for k, v := c.First(); k != nil && len(receipts) < limit; k, v = c.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			r, err := loadReceipt(tx, string(v))
			if err != nil {
				return err
			}
			receipts = append(receipts, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// UpdateReceipt replaces a receipt's header and items
func (b *BoltDB) UpdateReceipt(_ context.Context, receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getHeader(tx, receipt.ID); err != nil {
			return err
		}
		if err := putHeader(tx, receipt); err != nil {
			return err
		}
		return putItems(tx, receipt)
	})
}

// DeleteReceipt removes a receipt, its items and its index entry
func (b *BoltDB) DeleteReceipt(_ context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		existing, err := getHeader(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(createdBucket)).Delete(createdKey(existing)); err != nil {
			return err
		}
		if items := tx.Bucket([]byte(itemsBucket)); items.Bucket([]byte(id)) != nil {
			if err := items.DeleteBucket([]byte(id)); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(receiptsBucket)).Delete([]byte(id))
	})
}

// Ping verifies the database file can be read
func (b *BoltDB) Ping(_ context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(receiptsBucket)) == nil {
			return fmt.Errorf("receipts bucket missing")
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
