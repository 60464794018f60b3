package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/zombor/receipt-analyzer/internal/analysis"
)

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleans filenames",
		func(input, expected string) {
			Expect(sanitizeFilename(input)).To(Equal(expected))
		},
		Entry("plain name", "lunch.jpg", "lunch.jpg"),
		Entry("special characters", "my receipt (1)!.JPG", "my receipt 1.jpg"),
		Entry("path components", "../../etc/passwd", "passwd"),
		Entry("repeated spaces", "a    b.png", "a b.png"),
		Entry("nothing left", "!!!.png", "receipt.png"),
		Entry("empty", "", "receipt"),
	)

	It("truncates long names", func() {
		name := sanitizeFilename("IMG_20240315_103000_123456789012345678901234567890123456789.jpg")
		Expect(name).To(HaveLen(50 + len(".jpg")))
	})
})

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		db       *mockDB
		storage  *mockStorage
		analyzer *mockAnalyzer
		ids      *mockIDGenerator
		service  *Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMockDB()
		storage = newMockStorage()
		analyzer = newMockAnalyzer()
		ids = &mockIDGenerator{ids: []string{"id-1", "id-2", "id-3", "id-4"}}
		store := NewStoreWithDeps(db, ids, &mockTimeSource{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)})
		service = NewService(store, analyzer, storage, zerolog.Nop())
	})

	Describe("AnalyzeUpload", func() {
		var (
			receipt *Receipt
			err     error
		)

		JustBeforeEach(func() {
			receipt, err = service.AnalyzeUpload(ctx, "lunch.jpg", []byte("image-data"), "image/jpeg")
		})

		It("stores the file and the extracted receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.ID).To(Equal("id-2"))
			Expect(receipt.Filename).To(Equal("lunch.jpg"))
			Expect(receipt.StoragePath).To(Equal("id-1_lunch.jpg"))
			Expect(receipt.ContentType).To(Equal("image/jpeg"))
			Expect(*receipt.MerchantName).To(Equal("Cafe Rex"))
			Expect(storage.files).To(HaveKeyWithValue("id-1_lunch.jpg", []byte("image-data")))
			Expect(db.inserts).To(Equal(1))
		})

		It("sends the file to the analyzer", func() {
			Expect(analyzer.sources).To(HaveLen(1))
			Expect(analyzer.sources[0].Data).To(Equal([]byte("image-data")))
			Expect(analyzer.sources[0].ContentType).To(Equal("image/jpeg"))
		})

		It("keeps the analyzed document as raw data", func() {
			var doc analysis.Document
			Expect(json.Unmarshal([]byte(receipt.RawData), &doc)).To(Succeed())
			Expect(doc.DocType).To(Equal("receipt.retailMeal"))
		})

		When("analysis fails", func() {
			BeforeEach(func() {
				analyzer.err = &analysis.Error{Provider: "azure", StatusCode: 401, Message: "bad key"}
			})

			It("returns the analysis error and removes the file", func() {
				var analysisErr *analysis.Error
				Expect(errors.As(err, &analysisErr)).To(BeTrue())
				Expect(storage.deleted).To(ConsistOf("id-1_lunch.jpg"))
				Expect(storage.files).To(BeEmpty())
				Expect(db.inserts).To(BeZero())
			})
		})

		When("no receipt is detected", func() {
			BeforeEach(func() {
				analyzer.result = &analysis.Result{}
			})

			It("returns ErrNoReceiptDetected without saving", func() {
				Expect(errors.Is(err, ErrNoReceiptDetected)).To(BeTrue())
				Expect(db.inserts).To(BeZero())
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.insertErr = errors.New("connection refused")
			})

			It("removes the stored file", func() {
				Expect(err).To(MatchError(ContainSubstring("connection refused")))
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("the file cannot be stored", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("read-only filesystem")
			})

			It("does not analyze", func() {
				Expect(err).To(MatchError(ContainSubstring("saving file")))
				Expect(analyzer.sources).To(BeEmpty())
			})
		})
	})

	Describe("AnalyzeURL", func() {
		It("analyzes the URL and saves the receipt without a file", func() {
			receipt, err := service.AnalyzeURL(ctx, "https://example.com/receipt.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(analyzer.sources[0].URL).To(Equal("https://example.com/receipt.jpg"))
			Expect(receipt.Filename).To(Equal("receipt_from_url_id-1"))
			Expect(receipt.StoragePath).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("returns ErrNoReceiptDetected when nothing is found", func() {
			analyzer.result = &analysis.Result{}
			_, err := service.AnalyzeURL(ctx, "https://example.com/cat.jpg")
			Expect(errors.Is(err, ErrNoReceiptDetected)).To(BeTrue())
			Expect(db.inserts).To(BeZero())
		})
	})

	Describe("DeleteReceipt", func() {
		var receipt *Receipt

		BeforeEach(func() {
			var err error
			receipt, err = service.AnalyzeUpload(ctx, "lunch.jpg", []byte("image-data"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes the receipt and its file", func() {
			Expect(service.DeleteReceipt(ctx, receipt.ID)).To(Succeed())
			Expect(db.receipts).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("succeeds when the file cannot be removed", func() {
			storage.deleteErr = errors.New("permission denied")
			Expect(service.DeleteReceipt(ctx, receipt.ID)).To(Succeed())
			Expect(db.receipts).To(BeEmpty())
		})

		It("returns ErrNotFound for an unknown ID", func() {
			err := service.DeleteReceipt(ctx, "missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("GetReceiptFile", func() {
		It("returns the stored file and its content type", func() {
			receipt, err := service.AnalyzeUpload(ctx, "lunch.jpg", []byte("image-data"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())

			data, contentType, err := service.GetReceiptFile(ctx, receipt.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("image-data")))
			Expect(contentType).To(Equal("image/jpeg"))
		})

		It("returns ErrFileNotFound for a receipt without a file", func() {
			receipt, err := service.SaveManual(ctx, ReceiptData{})
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.GetReceiptFile(ctx, receipt.ID)
			Expect(errors.Is(err, ErrFileNotFound)).To(BeTrue())
		})
	})

	Describe("Health", func() {
		It("reports an unreachable database", func() {
			db.pingErr = errors.New("connection refused")
			Expect(service.Health(ctx)).To(MatchError(ContainSubstring("database unavailable")))
		})

		It("succeeds when the database responds", func() {
			Expect(service.Health(ctx)).To(Succeed())
		})
	})
})
