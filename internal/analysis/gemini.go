package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiProvider = "gemini"

// Gemini implements the Analyzer interface using Google Gemini
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	downloader *http.Client
	timeout    time.Duration
}

// NewGemini creates a new Gemini Analyzer instance
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      client.GenerativeModel(modelName),
		downloader: &http.Client{Timeout: 30 * time.Second},
		timeout:    60 * time.Second,
	}, nil
}

// Analyze sends the receipt image to Gemini and converts the answer into a Result
func (g *Gemini) Analyze(ctx context.Context, src Source) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	src, err := loadSource(ctx, g.downloader, geminiProvider, src)
	if err != nil {
		return nil, err
	}

	imageData, err := toPNG(src.Data, src.ContentType)
	if err != nil {
		return nil, &Error{Provider: geminiProvider, Message: "preparing image", Err: err}
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(systemPrompt),
		genai.ImageData("png", imageData),
		genai.Text(receiptPrompt),
	)
	if err != nil {
		return nil, &Error{Provider: geminiProvider, Message: "generating content", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Provider: geminiProvider, Message: "no response from gemini"}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	result, err := parseReceiptJSON(text.String())
	if err != nil {
		return nil, &Error{Provider: geminiProvider, Message: "parsing receipt data", Err: err}
	}
	result.ModelID = geminiProvider
	return result, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
