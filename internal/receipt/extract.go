package receipt

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-analyzer/internal/analysis"
)

// Extract maps an analyzed document onto ReceiptData. Each field is
// optional. Every present field contributes its confidence to the aggregate
// score; only fields with a usable typed value are set.
func Extract(doc *analysis.Document) ReceiptData {
	data := ReceiptData{
		Items:           []LineItem{},
		ConfidenceScore: decimal.Zero,
	}
	if doc == nil {
		return data
	}
	data.ReceiptType = doc.DocType

	var scores []decimal.Decimal
	observe := func(f *analysis.Field) {
		scores = append(scores, decimal.NewFromFloat(f.Score()))
	}

	if f, ok := doc.Field(analysis.FieldMerchantName); ok {
		observe(f)
		if v, ok := f.Text(); ok {
			data.MerchantName = &v
		}
	}
	if f, ok := doc.Field(analysis.FieldTransactionDate); ok {
		observe(f)
		if v, ok := f.Date(); ok {
			data.TransactionDate = &v
		}
	}

	amounts := []struct {
		name string
		dst  *decimal.NullDecimal
	}{
		{analysis.FieldSubtotal, &data.Subtotal},
		{analysis.FieldTotalTax, &data.Tax},
		{analysis.FieldTip, &data.Tip},
		{analysis.FieldTotal, &data.Total},
	}
	for _, a := range amounts {
		f, ok := doc.Field(a.name)
		if !ok {
			continue
		}
		observe(f)
		if v, ok := f.Amount(); ok {
			*a.dst = decimal.NewNullDecimal(v)
		}
	}

	if len(scores) > 0 {
		data.ConfidenceScore = decimal.Sum(scores[0], scores[1:]...).Div(decimal.NewFromInt(int64(len(scores))))
	}

	if f, ok := doc.Field(analysis.FieldItems); ok {
		for _, el := range f.ValueArray {
			data.Items = append(data.Items, extractLineItem(el))
		}
	}

	return data
}

// extractLineItem always yields a LineItem, even for an empty element
func extractLineItem(el *analysis.Field) LineItem {
	var li LineItem
	if el == nil {
		return li
	}
	if el.Confidence != nil {
		li.Confidence = decimal.NewNullDecimal(decimal.NewFromFloat(*el.Confidence))
	}

	obj := el.ValueObject
	if f, ok := obj.Field(analysis.FieldItemDescription); ok {
		if v, ok := f.Text(); ok {
			li.Description = &v
		}
	}
	if f, ok := obj.Field(analysis.FieldItemQuantity); ok {
		if v, ok := f.Number(); ok {
			li.Quantity = decimal.NewNullDecimal(v)
		}
	}
	if f, ok := obj.Field(analysis.FieldItemPrice); ok {
		if v, ok := f.Amount(); ok {
			li.UnitPrice = decimal.NewNullDecimal(v)
		}
	}
	if f, ok := obj.Field(analysis.FieldItemTotalPrice); ok {
		if v, ok := f.Amount(); ok {
			li.TotalPrice = decimal.NewNullDecimal(v)
		}
	}
	return li
}
