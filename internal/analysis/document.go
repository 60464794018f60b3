package analysis

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt field names produced by the prebuilt receipt model.
const (
	FieldMerchantName    = "MerchantName"
	FieldTransactionDate = "TransactionDate"
	FieldSubtotal        = "Subtotal"
	FieldTotalTax        = "TotalTax"
	FieldTip             = "Tip"
	FieldTotal           = "Total"
	FieldItems           = "Items"

	FieldItemDescription = "Description"
	FieldItemQuantity    = "Quantity"
	FieldItemPrice       = "Price"
	FieldItemTotalPrice  = "TotalPrice"
)

// Result is the outcome of analyzing one source document.
type Result struct {
	ModelID   string      `json:"modelId,omitempty"`
	Documents []*Document `json:"documents"`
}

// First returns the first analyzed document, or nil when nothing was detected.
func (r *Result) First() *Document {
	if r == nil || len(r.Documents) == 0 {
		return nil
	}
	return r.Documents[0]
}

// Document is a single analyzed document: a classification tag plus its
// field bag.
type Document struct {
	DocType    string   `json:"docType"`
	Fields     Fields   `json:"fields,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Field looks up a field on the document.
func (d *Document) Field(name string) (*Field, bool) {
	if d == nil {
		return nil, false
	}
	return d.Fields.Field(name)
}

// Fields maps field names to their extracted values. Any key may be missing.
type Fields map[string]*Field

// Field returns the named field when it exists and is non-null.
func (f Fields) Field(name string) (*Field, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Currency is a monetary amount as reported by the analysis service.
type Currency struct {
	Amount         *float64 `json:"amount,omitempty"`
	CurrencySymbol string   `json:"currencySymbol,omitempty"`
	CurrencyCode   string   `json:"currencyCode,omitempty"`
}

// Field is one typed value with its confidence. At most one of the Value*
// members is normally set, matching Type.
type Field struct {
	Type          string    `json:"type,omitempty"`
	Content       string    `json:"content,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
	ValueString   *string   `json:"valueString,omitempty"`
	ValueDate     *string   `json:"valueDate,omitempty"`
	ValueNumber   *float64  `json:"valueNumber,omitempty"`
	ValueCurrency *Currency `json:"valueCurrency,omitempty"`
	ValueArray    []*Field  `json:"valueArray,omitempty"`
	ValueObject   Fields    `json:"valueObject,omitempty"`
}

var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// Score returns the field confidence, 0 when the service did not report one.
func (f *Field) Score() float64 {
	if f == nil || f.Confidence == nil {
		return 0
	}
	return *f.Confidence
}

// Text returns the string value of the field.
func (f *Field) Text() (string, bool) {
	if f == nil || f.ValueString == nil {
		return "", false
	}
	return *f.ValueString, true
}

// Date returns the date value of the field truncated to day precision.
func (f *Field) Date() (time.Time, bool) {
	if f == nil || f.ValueDate == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(*f.ValueDate)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Number returns the numeric value of the field.
func (f *Field) Number() (decimal.Decimal, bool) {
	if f == nil || f.ValueNumber == nil {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(*f.ValueNumber), true
}

// Amount returns the currency amount of the field, falling back to a plain
// number for services that report prices untyped.
func (f *Field) Amount() (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Decimal{}, false
	}
	if f.ValueCurrency != nil && f.ValueCurrency.Amount != nil {
		return decimal.NewFromFloat(*f.ValueCurrency.Amount), true
	}
	return f.Number()
}
