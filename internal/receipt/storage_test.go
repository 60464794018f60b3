package receipt

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("LocalStorage", func() {
	var (
		ctx     context.Context
		dir     string
		storage *LocalStorage
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = filepath.Join(GinkgoT().TempDir(), "uploads")

		var err error
		storage, err = NewLocalStorage(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the storage directory", func() {
		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("saves and reads back a file", func() {
		path, err := storage.Save(ctx, "id-1_lunch.jpg", []byte("image-data"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("id-1_lunch.jpg"))

		data, err := storage.Get(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("image-data")))
	})

	It("deletes a file", func() {
		path, err := storage.Save(ctx, "id-1_lunch.jpg", []byte("image-data"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		Expect(storage.Delete(ctx, path)).To(Succeed())
		_, err = os.Stat(filepath.Join(dir, "id-1_lunch.jpg"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("returns ErrFileNotFound for a missing file", func() {
		_, err := storage.Get(ctx, "missing.jpg")
		Expect(errors.Is(err, ErrFileNotFound)).To(BeTrue())
	})

	It("keeps paths inside the storage directory", func() {
		_, err := storage.Save(ctx, "../escape.jpg", []byte("x"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		_, err = os.Stat(filepath.Join(dir, "escape.jpg"))
		Expect(err).NotTo(HaveOccurred())
		_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.jpg"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("rejects an empty path", func() {
		_, err := storage.Save(ctx, "", []byte("x"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("invalid path")))
	})
})

var _ = Describe("S3Storage", func() {
	var (
		ctx     context.Context
		server  *ghttp.Server
		storage *S3Storage
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()

		var err error
		storage, err = NewS3Storage(ctx, S3Config{
			Bucket:          "receipts-bucket",
			Region:          "us-east-1",
			Endpoint:        server.URL(),
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			Prefix:          "/uploads/",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires a bucket", func() {
		_, err := NewS3Storage(ctx, S3Config{Region: "us-east-1"})
		Expect(err).To(MatchError(ContainSubstring("bucket is required")))
	})

	It("uploads under the prefix with path-style addressing", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPut, "/receipts-bucket/uploads/id-1_lunch.jpg"),
			ghttp.VerifyHeaderKV("Content-Type", "image/jpeg"),
			ghttp.RespondWith(http.StatusOK, ""),
		))

		path, err := storage.Save(ctx, "id-1_lunch.jpg", []byte("image-data"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("uploads/id-1_lunch.jpg"))
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})

	It("downloads an object", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/receipts-bucket/uploads/id-1_lunch.jpg"),
			ghttp.RespondWith(http.StatusOK, "image-data"),
		))

		data, err := storage.Get(ctx, "uploads/id-1_lunch.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("image-data")))
	})

	It("maps a missing key to ErrFileNotFound", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/receipts-bucket/uploads/missing.jpg"),
			ghttp.RespondWith(http.StatusNotFound,
				`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`,
				http.Header{"Content-Type": []string{"application/xml"}},
			),
		))

		_, err := storage.Get(ctx, "uploads/missing.jpg")
		Expect(errors.Is(err, ErrFileNotFound)).To(BeTrue())
	})

	It("deletes an object", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodDelete, "/receipts-bucket/uploads/id-1_lunch.jpg"),
			ghttp.RespondWith(http.StatusNoContent, ""),
		))

		Expect(storage.Delete(ctx, "uploads/id-1_lunch.jpg")).To(Succeed())
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})
})
