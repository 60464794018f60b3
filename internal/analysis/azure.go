package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	azureProvider         = "azure"
	defaultAzureModel     = "prebuilt-receipt"
	defaultAzureVersion   = "2024-11-30"
	defaultAzurePollEvery = time.Second
)

// DocumentIntelligence implements the Analyzer interface using the Azure AI
// Document Intelligence REST API. Analysis is asynchronous: the analyze call
// returns an operation URL that is polled until the result is ready.
type DocumentIntelligence struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	client       *http.Client
	timeout      time.Duration
	pollInterval time.Duration
}

// NewDocumentIntelligence creates a new DocumentIntelligence analyzer
func NewDocumentIntelligence(endpoint, apiKey, modelID string) (*DocumentIntelligence, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("document intelligence endpoint is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("document intelligence api key is required")
	}
	if modelID == "" {
		modelID = defaultAzureModel
	}

	return &DocumentIntelligence{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		model:        modelID,
		apiVersion:   defaultAzureVersion,
		client:       &http.Client{Timeout: 30 * time.Second},
		timeout:      2 * time.Minute,
		pollInterval: defaultAzurePollEvery,
	}, nil
}

type azureAnalyzeRequest struct {
	URLSource    string `json:"urlSource,omitempty"`
	Base64Source string `json:"base64Source,omitempty"`
}

type azureErrorBody struct {
	Error *azureError `json:"error"`
}

type azureError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type azureOperation struct {
	Status        string      `json:"status"`
	Error         *azureError `json:"error,omitempty"`
	AnalyzeResult *Result     `json:"analyzeResult,omitempty"`
}

// Analyze submits the source for analysis and waits for the result
func (d *DocumentIntelligence) Analyze(ctx context.Context, src Source) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body azureAnalyzeRequest
	if src.IsURL() {
		body.URLSource = src.URL
	} else {
		if len(src.Data) == 0 {
			return nil, &Error{Provider: azureProvider, Message: "empty document"}
		}
		body.Base64Source = base64.StdEncoding.EncodeToString(src.Data)
	}

	operationURL, err := d.submit(ctx, body)
	if err != nil {
		return nil, err
	}

	return d.poll(ctx, operationURL)
}

func (d *DocumentIntelligence) submit(ctx context.Context, body azureAnalyzeRequest) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s", d.endpoint, d.model, d.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &Error{Provider: azureProvider, Message: "calling analyze API", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", azureResponseError(resp)
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return "", &Error{Provider: azureProvider, StatusCode: resp.StatusCode, Message: "response is missing Operation-Location"}
	}
	return operationURL, nil
}

func (d *DocumentIntelligence) poll(ctx context.Context, operationURL string) (*Result, error) {
	for {
		op, retryAfter, err := d.fetchOperation(ctx, operationURL)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return &Result{}, nil
			}
			return op.AnalyzeResult, nil
		case "failed", "canceled":
			e := &Error{Provider: azureProvider, Message: "operation " + strings.ToLower(op.Status)}
			if op.Error != nil {
				e.Code = op.Error.Code
				e.Message = op.Error.Message
			}
			return nil, e
		}

		wait := d.pollInterval
		if retryAfter > wait {
			wait = retryAfter
		}
		select {
		case <-ctx.Done():
			return nil, &Error{Provider: azureProvider, Message: "waiting for analysis result", Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func (d *DocumentIntelligence) fetchOperation(ctx context.Context, operationURL string) (*azureOperation, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, &Error{Provider: azureProvider, Message: "polling analyze result", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, azureResponseError(resp)
	}

	var op azureOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, 0, &Error{Provider: azureProvider, StatusCode: resp.StatusCode, Message: "decoding analyze result", Err: err}
	}

	var retryAfter time.Duration
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		retryAfter = time.Duration(secs) * time.Second
	}
	return &op, retryAfter, nil
}

// Close is a no-op for the HTTP client
func (d *DocumentIntelligence) Close() error {
	return nil
}

func azureResponseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &Error{Provider: azureProvider, StatusCode: resp.StatusCode}

	var body azureErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil {
		e.Code = body.Error.Code
		e.Message = body.Error.Message
		return e
	}
	e.Message = strings.TrimSpace(string(raw))
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
