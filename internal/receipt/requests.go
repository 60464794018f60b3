package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const defaultListLimit = 100

type analyzeURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type listQuery struct {
	Skip  int `validate:"gte=0"`
	Limit int `validate:"gte=1,lte=1000"`
}

type lineItemRequest struct {
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	TotalPrice  *float64 `json:"total_price"`
	Confidence  *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// saveReceiptRequest is the body of manual save and update requests
type saveReceiptRequest struct {
	MerchantName    *string           `json:"merchant_name"`
	TransactionDate *string           `json:"transaction_date"`
	Subtotal        *float64          `json:"subtotal"`
	Tax             *float64          `json:"tax"`
	Tip             *float64          `json:"tip"`
	Total           *float64          `json:"total"`
	ReceiptType     string            `json:"receipt_type" validate:"max=100"`
	ConfidenceScore *float64          `json:"confidence_score" validate:"omitempty,gte=0,lte=1"`
	Items           []lineItemRequest `json:"items" validate:"omitempty,max=500,dive"`
}

func nullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

// parseDate accepts a plain date or an RFC 3339 timestamp
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("transaction_date must be YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// toData converts the request into ReceiptData
func (req *saveReceiptRequest) toData() (ReceiptData, error) {
	data := ReceiptData{
		ReceiptType:     req.ReceiptType,
		MerchantName:    req.MerchantName,
		Subtotal:        nullDecimal(req.Subtotal),
		Tax:             nullDecimal(req.Tax),
		Tip:             nullDecimal(req.Tip),
		Total:           nullDecimal(req.Total),
		ConfidenceScore: decimal.Zero,
		Items:           make([]LineItem, 0, len(req.Items)),
	}
	if req.ConfidenceScore != nil {
		data.ConfidenceScore = decimal.NewFromFloat(*req.ConfidenceScore)
	}
	if req.TransactionDate != nil && strings.TrimSpace(*req.TransactionDate) != "" {
		d, err := parseDate(*req.TransactionDate)
		if err != nil {
			return ReceiptData{}, err
		}
		data.TransactionDate = &d
	}
	for _, it := range req.Items {
		data.Items = append(data.Items, LineItem{
			Description: it.Description,
			Quantity:    nullDecimal(it.Quantity),
			UnitPrice:   nullDecimal(it.UnitPrice),
			TotalPrice:  nullDecimal(it.TotalPrice),
			Confidence:  nullDecimal(it.Confidence),
		})
	}
	return data, nil
}

// validationMessage turns validator errors into a client-facing message
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case fe.Param() != "":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
