package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxDocumentSize caps the size of a document downloaded from a URL source.
const MaxDocumentSize = 50 << 20

// loadSource returns the source with its bytes populated, downloading the
// document when the source is a URL. Vision models only accept inline images.
func loadSource(ctx context.Context, client *http.Client, provider string, src Source) (Source, error) {
	if !src.IsURL() {
		return src, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Source{}, &Error{Provider: provider, Message: "invalid document url", Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Source{}, &Error{Provider: provider, Message: "downloading document", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Source{}, &Error{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("downloading document: unexpected status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return Source{}, &Error{Provider: provider, Message: "reading document", Err: err}
	}
	if len(data) > MaxDocumentSize {
		return Source{}, &Error{Provider: provider, Message: "document exceeds 50MB limit"}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || normalizeMimeType(contentType) == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	return Source{Data: data, ContentType: contentType, URL: src.URL}, nil
}
