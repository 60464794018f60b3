package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zombor/receipt-analyzer/internal/analysis"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// Service orchestrates analysis, file retention and persistence of receipts
type Service struct {
	store    *Store
	analyzer analysis.Analyzer
	storage  Storage
	log      zerolog.Logger
}

// NewService creates a new Service
func NewService(store *Store, analyzer analysis.Analyzer, storage Storage, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		analyzer: analyzer,
		storage:  storage,
		log:      log,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "." || unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// AnalyzeUpload stores the uploaded image, analyzes it and saves the
// resulting receipt. The stored file is removed when any later step fails.
func (s *Service) AnalyzeUpload(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	log := s.log.With().Str("filename", filename).Str("content_type", contentType).Int("file_size", len(data)).Logger()

	savedPath, err := s.storage.Save(ctx, s.store.NewID()+"_"+sanitizeFilename(filename), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	cleanup := func() {
		if err := s.storage.Delete(context.WithoutCancel(ctx), savedPath); err != nil {
			log.Warn().Err(err).Str("path", savedPath).Msg("Failed to clean up uploaded file")
		}
	}

	result, err := s.analyzer.Analyze(ctx, analysis.Source{Data: data, ContentType: contentType})
	if err != nil {
		log.Error().Err(err).Msg("Failed to analyze receipt")
		cleanup()
		return nil, fmt.Errorf("analyzing receipt: %w", err)
	}

	if filename == "" {
		filename = "receipt"
	}
	receipt, err := s.saveResult(ctx, result, Origin{
		Filename:    filename,
		ContentType: contentType,
		StoragePath: savedPath,
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	log.Info().Str("receipt_id", receipt.ID).Str("confidence", receipt.ConfidenceScore.String()).Msg("Receipt analyzed")
	return receipt, nil
}

// AnalyzeURL analyzes a receipt hosted at url and saves the result
func (s *Service) AnalyzeURL(ctx context.Context, url string) (*Receipt, error) {
	result, err := s.analyzer.Analyze(ctx, analysis.Source{URL: url})
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("Failed to analyze receipt")
		return nil, fmt.Errorf("analyzing receipt: %w", err)
	}

	receipt, err := s.saveResult(ctx, result, Origin{
		Filename: "receipt_from_url_" + s.store.NewID(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("receipt_id", receipt.ID).Str("url", url).Msg("Receipt analyzed")
	return receipt, nil
}

// saveResult extracts the first analyzed document and persists it
func (s *Service) saveResult(ctx context.Context, result *analysis.Result, origin Origin) (*Receipt, error) {
	doc := result.First()
	if doc == nil {
		return nil, ErrNoReceiptDetected
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing analysis result: %w", err)
	}
	origin.Payload = string(payload)

	receipt, err := s.store.Create(ctx, Extract(doc), origin)
	if err != nil {
		s.log.Error().Err(err).Str("filename", origin.Filename).Msg("Failed to save receipt")
		return nil, err
	}
	return receipt, nil
}

// SaveManual stores caller-supplied receipt data
func (s *Service) SaveManual(ctx context.Context, data ReceiptData) (*Receipt, error) {
	return s.store.SaveManual(ctx, data)
}

// UpdateReceipt replaces the fields and items of an existing receipt
func (s *Service) UpdateReceipt(ctx context.Context, id string, data ReceiptData) (*Receipt, error) {
	return s.store.Update(ctx, id, data)
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	return s.store.Get(ctx, id)
}

// ListReceipts returns a page of receipts
func (s *Service) ListReceipts(ctx context.Context, skip, limit int) ([]*Receipt, error) {
	return s.store.List(ctx, skip, limit)
}

// DeleteReceipt removes a receipt, its items and its retained file
func (s *Service) DeleteReceipt(ctx context.Context, id string) error {
	receipt, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if receipt.StoragePath != "" {
		if err := s.storage.Delete(ctx, receipt.StoragePath); err != nil {
			s.log.Warn().Err(err).Str("path", receipt.StoragePath).Msg("Failed to delete file")
		}
	}
	return nil
}

// GetReceiptFile retrieves the retained upload for a receipt
func (s *Service) GetReceiptFile(ctx context.Context, id string) ([]byte, string, error) {
	receipt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if receipt.StoragePath == "" {
		return nil, "", fmt.Errorf("%w: receipt %s has no stored file", ErrFileNotFound, id)
	}

	data, err := s.storage.Get(ctx, receipt.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, receipt.ContentType, nil
}

// Health reports whether the database is reachable
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}
