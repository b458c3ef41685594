package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const ollamaName = "Ollama"

// Ollama implements the Scanner interface using Ollama's OpenAI-compatible
// chat completions API.
// Vision models that handle bills reasonably well:
//   - llava (general purpose vision model)
//   - qwen2-vl (good OCR capabilities)
//   - llama3.2-vision
type Ollama struct {
	client openai.Client
	model  string
}

// NewOllama creates a new Ollama Scanner instance
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" || modelName == "" {
		return nil, &ConfigError{Msg: "Ollama URL or model is not configured. Please add it in the settings."}
	}

	apiBase, err := resolveURL(baseURL, "/v1/")
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("Ollama URL %q is not valid. Please fix it in the settings.", baseURL)}
	}

	client := openai.NewClient(
		option.WithBaseURL(apiBase),
		// Ollama ignores the key but the client requires one
		option.WithAPIKey("ollama"),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Timeout: 120 * time.Second, // Vision models on local hardware are slow
		}),
	)

	return &Ollama{
		client: client,
		model:  modelName,
	}, nil
}

// Scan analyzes a bill image
func (o *Ollama) Scan(ctx context.Context, imageDataURI string) (map[string]any, error) {
	slog.Info("Starting bill analysis", "provider", ollamaName, "model", o.model)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt()),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(userInstruction),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageDataURI}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOllamaError(err)
	}

	if len(resp.Choices) == 0 {
		slog.Error("Ollama returned no choices")
		return nil, &ResponseError{Provider: ollamaName, Err: fmt.Errorf("no choices in response")}
	}

	data, err := parseJSONObject(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("Ollama returned unreadable JSON", "error", err)
		return nil, &ResponseError{Provider: ollamaName, Err: err}
	}

	slog.Info("Parsed bill analysis response", "provider", ollamaName)
	return data, nil
}

// Close is a no-op; the HTTP client holds no resources
func (o *Ollama) Close() error {
	return nil
}

// classifyOllamaError separates an unreachable server from one that answered
// with an error or an unreadable body.
func classifyOllamaError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		slog.Error("Ollama API error response", "status", apiErr.StatusCode, "error", err)
		return &ResponseError{Provider: ollamaName, StatusCode: apiErr.StatusCode, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		slog.Error("Ollama request error", "error", err)
		return &TransportError{Provider: ollamaName, Err: err}
	}

	slog.Error("Ollama response error", "error", err)
	return &ResponseError{Provider: ollamaName, Err: err}
}

// resolveURL resolves an absolute path against the server URL, replacing
// any path the user included.
func resolveURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url must include a scheme and host")
	}
	return u.ResolveReference(&url.URL{Path: path}).String(), nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ProbeOllama checks that an Ollama server is reachable and returns the
// names of its installed models.
func ProbeOllama(ctx context.Context, baseURL string) ([]string, error) {
	tagsURL, err := resolveURL(baseURL, "/api/tags")
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("Ollama URL %q is not valid. Please fix it in the settings.", baseURL)}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: ollamaName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ResponseError{
			Provider:   ollamaName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &ResponseError{Provider: ollamaName, Err: fmt.Errorf("decoding response: %w", err)}
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
