package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// UUIDGenerator generates random (v4) UUIDs
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Origin describes where a receipt came from
type Origin struct {
	Filename    string
	ContentType string
	StoragePath string
	Payload     string // serialized analysis result
}

// Store creates and manages receipts on top of a DB backend
type Store struct {
	db    DB
	ids   IDGenerator
	clock TimeSource
}

// NewStore creates a Store with random UUIDs and the system clock
func NewStore(db DB) *Store {
	return NewStoreWithDeps(db, UUIDGenerator{}, systemClock{})
}

// NewStoreWithDeps creates a Store with custom dependencies for testing
func NewStoreWithDeps(db DB, ids IDGenerator, clock TimeSource) *Store {
	return &Store{db: db, ids: ids, clock: clock}
}

// now is truncated to the precision every backend can round-trip
func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// NewID returns a fresh identifier from the store's generator
func (s *Store) NewID() string {
	return s.ids.Generate()
}

// Create persists a new receipt built from the extracted data
func (s *Store) Create(ctx context.Context, data ReceiptData, origin Origin) (*Receipt, error) {
	now := s.now()
	payload := origin.Payload
	if payload == "" {
		payload = "{}"
	}

	receipt := &Receipt{
		ID:          s.ids.Generate(),
		Filename:    origin.Filename,
		RawData:     payload,
		StoragePath: origin.StoragePath,
		ContentType: origin.ContentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	receipt.apply(data)

	if err := s.db.InsertReceipt(ctx, receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return receipt, nil
}

// SaveManual persists caller-supplied receipt data under a synthetic filename
func (s *Store) SaveManual(ctx context.Context, data ReceiptData) (*Receipt, error) {
	return s.Create(ctx, data, Origin{
		Filename: "manual_save_" + s.ids.Generate(),
		Payload:  "{}",
	})
}

// Get retrieves a receipt by ID
func (s *Store) Get(ctx context.Context, id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// List returns a page of receipts in creation order
func (s *Store) List(ctx context.Context, offset, limit int) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// Update replaces the extracted fields and items of an existing receipt
func (s *Store) Update(ctx context.Context, id string, data ReceiptData) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt for update: %w", err)
	}

	receipt.apply(data)
	receipt.UpdatedAt = s.now()

	if err := s.db.UpdateReceipt(ctx, receipt); err != nil {
		return nil, fmt.Errorf("updating receipt: %w", err)
	}
	return receipt, nil
}

// Delete removes a receipt and its items
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteReceipt(ctx, id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// Ping checks the backing database
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
