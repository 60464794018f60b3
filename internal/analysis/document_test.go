package analysis

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Document", func() {
	var doc *Document

	BeforeEach(func() {
		payload := `{
			"docType": "receipt.retailMeal",
			"confidence": 0.99,
			"fields": {
				"MerchantName": {"type": "string", "valueString": "Contoso", "content": "Contoso", "confidence": 0.97},
				"TransactionDate": {"type": "date", "valueDate": "2019-06-10", "content": "6/10/2019", "confidence": 0.98},
				"Total": {"type": "currency", "valueCurrency": {"amount": 14.5, "currencySymbol": "$", "currencyCode": "USD"}, "confidence": 0.96},
				"Tip": {"type": "currency", "content": "illegible"},
				"Items": {"type": "array", "valueArray": [
					{"type": "object", "confidence": 0.9, "valueObject": {
						"Description": {"type": "string", "valueString": "Surface Pro 6", "confidence": 0.91},
						"Quantity": {"type": "number", "valueNumber": 1, "confidence": 0.92}
					}}
				]}
			}
		}`
		doc = &Document{}
		Expect(json.Unmarshal([]byte(payload), doc)).To(Succeed())
	})

	It("should look up present fields", func() {
		f, ok := doc.Field(FieldMerchantName)
		Expect(ok).To(BeTrue())
		text, ok := f.Text()
		Expect(ok).To(BeTrue())
		Expect(text).To(Equal("Contoso"))
	})

	It("should report missing fields as absent", func() {
		_, ok := doc.Field(FieldSubtotal)
		Expect(ok).To(BeFalse())
	})

	It("should read currency amounts as decimals", func() {
		f, _ := doc.Field(FieldTotal)
		amount, ok := f.Amount()
		Expect(ok).To(BeTrue())
		Expect(amount.Equal(decimal.RequireFromString("14.5"))).To(BeTrue())
	})

	It("should treat a field without a typed value as having no amount", func() {
		f, ok := doc.Field(FieldTip)
		Expect(ok).To(BeTrue())
		_, ok = f.Amount()
		Expect(ok).To(BeFalse())
		Expect(f.Score()).To(BeZero())
	})

	It("should parse dates at day precision", func() {
		f, _ := doc.Field(FieldTransactionDate)
		d, ok := f.Date()
		Expect(ok).To(BeTrue())
		Expect(d).To(Equal(time.Date(2019, 6, 10, 0, 0, 0, 0, time.UTC)))
	})

	It("should expose nested item objects", func() {
		items, _ := doc.Field(FieldItems)
		Expect(items.ValueArray).To(HaveLen(1))
		qty, ok := items.ValueArray[0].ValueObject.Field(FieldItemQuantity)
		Expect(ok).To(BeTrue())
		n, ok := qty.Number()
		Expect(ok).To(BeTrue())
		Expect(n.Equal(decimal.NewFromInt(1))).To(BeTrue())
	})

	It("should be safe to query a nil document", func() {
		var missing *Document
		_, ok := missing.Field(FieldTotal)
		Expect(ok).To(BeFalse())
	})
})
