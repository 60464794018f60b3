package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type llmValue struct {
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
}

type llmItem struct {
	Description *string         `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	Price       json.RawMessage `json:"price"`
	TotalPrice  json.RawMessage `json:"total_price"`
	Confidence  *float64        `json:"confidence"`
}

type llmReceipt struct {
	IsReceipt       *bool     `json:"is_receipt"`
	DocType         string    `json:"doc_type"`
	MerchantName    *llmValue `json:"merchant_name"`
	TransactionDate *llmValue `json:"transaction_date"`
	Subtotal        *llmValue `json:"subtotal"`
	TotalTax        *llmValue `json:"total_tax"`
	Tip             *llmValue `json:"tip"`
	Total           *llmValue `json:"total"`
	Items           []llmItem `json:"items"`
}

// parseReceiptJSON parses the JSON response of a vision model into a Result
func parseReceiptJSON(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw llmReceipt
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if raw.IsReceipt != nil && !*raw.IsReceipt {
		return &Result{}, nil
	}

	docType := strings.TrimSpace(raw.DocType)
	if docType == "" {
		docType = "receipt"
	}

	doc := &Document{DocType: docType, Fields: Fields{}}
	if f := stringField(raw.MerchantName); f != nil {
		doc.Fields[FieldMerchantName] = f
	}
	if f := dateField(raw.TransactionDate); f != nil {
		doc.Fields[FieldTransactionDate] = f
	}
	for name, v := range map[string]*llmValue{
		FieldSubtotal: raw.Subtotal,
		FieldTotalTax: raw.TotalTax,
		FieldTip:      raw.Tip,
		FieldTotal:    raw.Total,
	} {
		if f := currencyField(v); f != nil {
			doc.Fields[name] = f
		}
	}

	if raw.Items != nil {
		items := &Field{Type: "array", ValueArray: make([]*Field, 0, len(raw.Items))}
		for _, it := range raw.Items {
			items.ValueArray = append(items.ValueArray, itemField(it))
		}
		doc.Fields[FieldItems] = items
	}

	return &Result{Documents: []*Document{doc}}, nil
}

func stringField(v *llmValue) *Field {
	if v == nil || isNull(v.Value) {
		return nil
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &Field{Type: "string", Content: s, ValueString: &s, Confidence: v.Confidence}
}

func dateField(v *llmValue) *Field {
	f := stringField(v)
	if f == nil {
		return nil
	}
	f.Type = "date"
	f.ValueDate, f.ValueString = f.ValueString, nil
	return f
}

func currencyField(v *llmValue) *Field {
	if v == nil {
		return nil
	}
	n, ok := parseNumber(v.Value)
	if !ok {
		return nil
	}
	return &Field{Type: "currency", ValueCurrency: &Currency{Amount: &n}, Confidence: v.Confidence}
}

func itemField(it llmItem) *Field {
	obj := Fields{}
	if it.Description != nil && strings.TrimSpace(*it.Description) != "" {
		desc := strings.TrimSpace(*it.Description)
		obj[FieldItemDescription] = &Field{Type: "string", Content: desc, ValueString: &desc, Confidence: it.Confidence}
	}
	if n, ok := parseNumber(it.Quantity); ok {
		obj[FieldItemQuantity] = &Field{Type: "number", ValueNumber: &n, Confidence: it.Confidence}
	}
	if n, ok := parseNumber(it.Price); ok {
		obj[FieldItemPrice] = &Field{Type: "currency", ValueCurrency: &Currency{Amount: &n}, Confidence: it.Confidence}
	}
	if n, ok := parseNumber(it.TotalPrice); ok {
		obj[FieldItemTotalPrice] = &Field{Type: "currency", ValueCurrency: &Currency{Amount: &n}, Confidence: it.Confidence}
	}
	return &Field{Type: "object", ValueObject: obj, Confidence: it.Confidence}
}

// parseNumber accepts JSON numbers and numeric strings such as "$4.50".
func parseNumber(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
