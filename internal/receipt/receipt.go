package receipt

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a receipt does not exist
	ErrNotFound = errors.New("receipt not found")
	// ErrNoReceiptDetected is returned when analysis finds no document in the image
	ErrNoReceiptDetected = errors.New("no receipt found in the image")
)

// LineItem is one purchased item as extracted from a receipt. Every
// attribute is independently optional.
type LineItem struct {
	Description *string             `json:"description"`
	Quantity    decimal.NullDecimal `gorm:"type:numeric" json:"quantity"`
	UnitPrice   decimal.NullDecimal `gorm:"type:numeric" json:"unit_price"`
	TotalPrice  decimal.NullDecimal `gorm:"type:numeric" json:"total_price"`
	Confidence  decimal.NullDecimal `gorm:"type:numeric" json:"confidence"`
}

// ReceiptData is the normalized result of analyzing one receipt
type ReceiptData struct {
	ReceiptType     string
	MerchantName    *string
	TransactionDate *time.Time
	Subtotal        decimal.NullDecimal
	Tax             decimal.NullDecimal
	Tip             decimal.NullDecimal
	Total           decimal.NullDecimal
	Items           []LineItem
	ConfidenceScore decimal.Decimal
}

// Receipt is a stored receipt header with its line items
type Receipt struct {
	ID              string              `gorm:"primaryKey;type:uuid" json:"id"`
	Filename        string              `gorm:"not null" json:"filename"`
	MerchantName    *string             `json:"merchant_name"`
	TransactionDate *time.Time          `gorm:"type:date" json:"transaction_date"`
	Subtotal        decimal.NullDecimal `gorm:"type:numeric" json:"subtotal"`
	Tax             decimal.NullDecimal `gorm:"type:numeric" json:"tax"`
	Tip             decimal.NullDecimal `gorm:"type:numeric" json:"tip"`
	Total           decimal.NullDecimal `gorm:"type:numeric" json:"total"`
	ReceiptType     string              `json:"receipt_type"`
	ConfidenceScore decimal.Decimal     `gorm:"type:numeric;not null" json:"confidence_score"`
	RawData         string              `gorm:"type:text;not null" json:"-"` // audit only, never parsed back
	StoragePath     string              `json:"-"`
	ContentType     string              `json:"content_type,omitempty"`
	Items           []Item              `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt       time.Time           `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// Item is a stored line item belonging to a receipt
type Item struct {
	ID        uint64 `gorm:"primaryKey" json:"-"`
	ReceiptID string `gorm:"type:uuid;not null;index" json:"-"`
	Position  int    `gorm:"not null" json:"-"`
	LineItem
}

// TableName overrides the default table name
func (Item) TableName() string {
	return "receipt_items"
}

// Data returns the normalized fields of the receipt
func (r *Receipt) Data() ReceiptData {
	items := make([]LineItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = it.LineItem
	}
	return ReceiptData{
		ReceiptType:     r.ReceiptType,
		MerchantName:    r.MerchantName,
		TransactionDate: r.TransactionDate,
		Subtotal:        r.Subtotal,
		Tax:             r.Tax,
		Tip:             r.Tip,
		Total:           r.Total,
		Items:           items,
		ConfidenceScore: r.ConfidenceScore,
	}
}

// apply copies the normalized fields onto the receipt and rebuilds its items
func (r *Receipt) apply(data ReceiptData) {
	r.ReceiptType = data.ReceiptType
	r.MerchantName = data.MerchantName
	r.TransactionDate = data.TransactionDate
	r.Subtotal = data.Subtotal
	r.Tax = data.Tax
	r.Tip = data.Tip
	r.Total = data.Total
	r.ConfidenceScore = data.ConfidenceScore

	r.Items = make([]Item, len(data.Items))
	for i, li := range data.Items {
		r.Items[i] = Item{ReceiptID: r.ID, Position: i, LineItem: li}
	}
}
