//go:build integration
// +build integration

package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var _ = Describe("PostgresDB", Ordered, func() {
	var (
		ctx       context.Context
		container testcontainers.Container
		db        *PostgresDB
		store     *Store
		clock     *mockTimeSource
	)

	BeforeAll(func() {
		ctx = context.Background()

		req := testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "receipts",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}

		var err error
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		Expect(err).NotTo(HaveOccurred())

		host, err := container.Host(ctx)
		Expect(err).NotTo(HaveOccurred())
		port, err := container.MappedPort(ctx, "5432")
		Expect(err).NotTo(HaveOccurred())

		databaseURL := fmt.Sprintf("postgres://test:test@%s:%s/receipts?sslmode=disable", host, port.Port())
		Expect(Migrate(databaseURL)).To(Succeed())
		// A second run is a no-op
		Expect(Migrate(databaseURL)).To(Succeed())

		db, err = NewPostgresDB(databaseURL)
		Expect(err).NotTo(HaveOccurred())

		clock = &mockTimeSource{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
		store = NewStoreWithDeps(db, UUIDGenerator{}, clock)
	})

	AfterAll(func() {
		if db != nil {
			db.Close()
		}
		if container != nil {
			container.Terminate(ctx)
		}
	})

	It("pings the database", func() {
		Expect(db.Ping(ctx)).To(Succeed())
	})

	It("round-trips a receipt with its items", func() {
		created, err := store.Create(ctx, Extract(cafeRexDocument()), Origin{
			Filename:    "lunch.jpg",
			ContentType: "image/jpeg",
			StoragePath: "lunch.jpg",
			Payload:     `{"docType":"receipt.retailMeal"}`,
		})
		Expect(err).NotTo(HaveOccurred())

		got, err := store.Get(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*got.MerchantName).To(Equal("Cafe Rex"))
		Expect(got.Total.Decimal.Equal(decimal.RequireFromString("12.5"))).To(BeTrue())
		Expect(got.ConfidenceScore.Equal(decimal.RequireFromString("0.915"))).To(BeTrue())
		Expect(got.RawData).To(Equal(`{"docType":"receipt.retailMeal"}`))
		Expect(got.StoragePath).To(Equal("lunch.jpg"))
		Expect(got.CreatedAt.Equal(created.CreatedAt)).To(BeTrue())
		Expect(got.Items).To(HaveLen(1))
		Expect(*got.Items[0].Description).To(Equal("Latte"))
	})

	It("replaces items on update", func() {
		created, err := store.Create(ctx, Extract(cafeRexDocument()), Origin{Filename: "lunch.jpg"})
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Update(ctx, created.ID, ReceiptData{
			MerchantName: ptr("Cafe Rex Downtown"),
			Items:        []LineItem{{Description: ptr("Espresso")}, {Description: ptr("Scone")}},
		})
		Expect(err).NotTo(HaveOccurred())

		got, err := store.Get(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*got.MerchantName).To(Equal("Cafe Rex Downtown"))
		Expect(got.Total.Valid).To(BeFalse())
		Expect(got.Items).To(HaveLen(2))
		Expect(*got.Items[0].Description).To(Equal("Espresso"))
		Expect(*got.Items[1].Description).To(Equal("Scone"))
	})

	It("deletes a receipt and its items", func() {
		created, err := store.Create(ctx, Extract(cafeRexDocument()), Origin{Filename: "lunch.jpg"})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Delete(ctx, created.ID)).To(Succeed())

		_, err = store.Get(ctx, created.ID)
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

		var count int64
		Expect(db.db.Model(&Item{}).Where("receipt_id = ?", created.ID).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("stores nothing when an item insert fails", func() {
		r := &Receipt{
			ID:        uuid.NewString(),
			Filename:  "broken.jpg",
			RawData:   "{}",
			CreatedAt: clock.now,
			UpdatedAt: clock.now,
		}
		r.apply(ReceiptData{Items: []LineItem{{Description: ptr("One")}, {Description: ptr("Two")}}})
		// Colliding primary keys make the item insert fail after the header
		r.Items[0].ID = 424242
		r.Items[1].ID = 424242

		Expect(db.InsertReceipt(ctx, r)).NotTo(Succeed())

		_, err := db.GetReceipt(ctx, r.ID)
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

		var count int64
		Expect(db.db.Model(&Item{}).Where("receipt_id = ?", r.ID).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
	})

	It("returns ErrNotFound for unknown and malformed IDs", func() {
		_, err := db.GetReceipt(ctx, "00000000-0000-0000-0000-000000000000")
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

		_, err = db.GetReceipt(ctx, "not-a-uuid")
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

		Expect(errors.Is(db.DeleteReceipt(ctx, "not-a-uuid"), ErrNotFound)).To(BeTrue())
	})

	It("lists receipts in creation order", func() {
		clock.now = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		first, err := store.Create(ctx, ReceiptData{}, Origin{Filename: "first.jpg"})
		Expect(err).NotTo(HaveOccurred())
		clock.now = clock.now.Add(time.Minute)
		second, err := store.Create(ctx, ReceiptData{}, Origin{Filename: "second.jpg"})
		Expect(err).NotTo(HaveOccurred())

		all, err := store.List(ctx, 0, 1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(all)).To(BeNumerically(">=", 2))
		Expect(all[len(all)-2].ID).To(Equal(first.ID))
		Expect(all[len(all)-1].ID).To(Equal(second.ID))

		page, err := store.List(ctx, len(all)-1, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(page).To(HaveLen(1))
		Expect(page[0].ID).To(Equal(second.ID))
	})
})
