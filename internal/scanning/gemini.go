package scanning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiName = "Gemini"

// generator is the part of *genai.GenerativeModel the scanner uses
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client io.Closer
	model  generator
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, &ConfigError{Msg: "Gemini API Key is not configured. Please add it in the settings."}
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = billSchema

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Scan analyzes a bill image. Provider errors are logged and returned as an
// opaque ResponseError.
func (g *Gemini) Scan(ctx context.Context, imageDataURI string) (map[string]any, error) {
	mimeType, imageData, err := splitDataURI(imageDataURI)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	slog.Info("Starting bill analysis", "provider", geminiName)

	resp, err := g.model.GenerateContent(ctx,
		genai.Text(billPrompt),
		genai.Blob{MIMEType: mimeType, Data: imageData},
	)
	if err != nil {
		slog.Error("Gemini API error", "error", err)
		return nil, &ResponseError{Provider: geminiName, Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		slog.Error("Gemini API error", "error", "no candidates in response")
		return nil, &ResponseError{Provider: geminiName, Err: fmt.Errorf("no response from gemini")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	data, err := parseJSONObject(responseText.String())
	if err != nil {
		slog.Error("Gemini returned unreadable JSON", "error", err)
		return nil, &ResponseError{Provider: geminiName, Err: err}
	}

	slog.Info("Parsed bill analysis response", "provider", geminiName)
	return data, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
