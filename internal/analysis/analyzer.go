package analysis

import (
	"context"
	"fmt"
)

// Source is the document to analyze: either raw bytes or a remote URL.
type Source struct {
	Data        []byte
	ContentType string
	URL         string
}

// IsURL reports whether the source refers to a remote document.
func (s Source) IsURL() bool {
	return s.URL != "" && len(s.Data) == 0
}

// Analyzer defines the interface for document analysis operations
type Analyzer interface {
	// Analyze extracts typed receipt fields from the source
	Analyze(ctx context.Context, src Source) (*Result, error)
	// Close releases any resources held by the analyzer
	Close() error
}

// Error is returned when the analysis service rejects a request or cannot
// produce a result.
type Error struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("%s analysis failed (status %d, %s): %s", e.Provider, e.StatusCode, e.Code, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s analysis failed (status %d): %s", e.Provider, e.StatusCode, msg)
	default:
		return fmt.Sprintf("%s analysis failed: %s", e.Provider, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
