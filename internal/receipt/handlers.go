package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zombor/receipt-analyzer/internal/analysis"
	"github.com/zombor/receipt-analyzer/internal/logger"
)

// maxUploadSize handles high-resolution phone photos
const maxUploadSize = 50 << 20

const fileTooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleServiceError maps service errors onto HTTP responses
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var analysisErr *analysis.Error
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Receipt not found")
	case errors.Is(err, ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, ErrNoReceiptDetected):
		writeError(w, http.StatusBadRequest, "No receipt found in the image")
	case errors.As(err, &analysisErr):
		writeError(w, http.StatusBadGateway, "Error analyzing receipt: "+analysisErr.Error())
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON decodes and validates a request body
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// handleRoot describes the API
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Receipt Analysis API",
		"version": s.version,
	})
}

// handleHealth reports service and database health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.service.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": now,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": now,
	})
}

// uploadContentType determines the content type of an uploaded file
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

// handleAnalyzeUpload analyzes an uploaded receipt image
func (s *Server) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// Leave room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fileTooLargeMessage)
			return
		}
		log.Warn().Err(err).Msg("Error parsing multipart form")
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, fileTooLargeMessage)
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "File must be an image")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Error reading file data")
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	receipt, err := s.service.AnalyzeUpload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleAnalyzeURL analyzes a receipt hosted at a URL
func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	var req analyzeURLRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	receipt, err := s.service.AnalyzeURL(r.Context(), req.URL)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// parseListQuery reads skip and limit, applying defaults
func parseListQuery(r *http.Request) (listQuery, error) {
	q := listQuery{Skip: 0, Limit: defaultListLimit}
	if v := r.URL.Query().Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errors.New("skip must be an integer")
		}
		q.Skip = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	return q, nil
}

// handleListReceipts returns a page of receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	receipts, err := s.service.ListReceipts(r.Context(), q.Skip, q.Limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the retained upload for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSaveReceipt stores manually structured receipt data
func (s *Server) handleSaveReceipt(w http.ResponseWriter, r *http.Request) {
	var req saveReceiptRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	data, err := req.toData()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.service.SaveManual(r.Context(), data)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleUpdateReceipt replaces the data of an existing receipt
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var req saveReceiptRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	data, err := req.toData()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.service.UpdateReceipt(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Receipt deleted successfully"})
}
