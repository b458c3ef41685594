// Package analysis turns a bill image into an identified bill record.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-analyzer/internal/bill"
	"github.com/zombor/bill-analyzer/internal/ratelimit"
	"github.com/zombor/bill-analyzer/internal/scanning"
	"github.com/zombor/bill-analyzer/internal/settings"
)

// IDGenerator generates unique IDs for bill records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Limiter admits or refuses an outbound provider call
type Limiter interface {
	Reserve() ratelimit.Decision
}

// ScannerFactory builds the scanner for the selected provider
type ScannerFactory interface {
	NewScanner(s settings.AiSettings) (scanning.Scanner, error)
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// DefaultScannerFactory creates the real provider clients
type DefaultScannerFactory struct{}

// NewScanner dispatches on the provider. An unknown provider is a
// configuration error.
func (DefaultScannerFactory) NewScanner(s settings.AiSettings) (scanning.Scanner, error) {
	switch s.Provider {
	case settings.ProviderGemini:
		return scanning.NewGemini(s.GeminiAPIKey, s.GeminiModel)
	case settings.ProviderOllama:
		return scanning.NewOllama(s.OllamaURL, s.OllamaModel)
	default:
		return nil, configError(s.Provider)
	}
}

func configError(provider settings.Provider) *scanning.ConfigError {
	switch provider {
	case settings.ProviderGemini:
		return &scanning.ConfigError{Msg: "Gemini API Key is not configured. Please add it in the settings."}
	case settings.ProviderOllama:
		return &scanning.ConfigError{Msg: "Ollama URL or model is not configured. Please add it in the settings."}
	default:
		return &scanning.ConfigError{Msg: fmt.Sprintf("Invalid AI provider %q selected.", provider)}
	}
}

// Service runs bill extractions
type Service struct {
	limiter     Limiter
	factory     ScannerFactory
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID record IDs and the wall clock
func NewService(limiter Limiter, factory ScannerFactory) *Service {
	return &Service{
		limiter:     limiter,
		factory:     factory,
		idGenerator: uuidGenerator{},
		timeSource:  defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(limiter Limiter, factory ScannerFactory, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		limiter:     limiter,
		factory:     factory,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// AnalyzeBill extracts a bill from a base64 data URI image. Each call makes
// at most one provider request and never retries. The caller owns the
// returned record.
func (s *Service) AnalyzeBill(ctx context.Context, imageDataURI string, aiSettings settings.AiSettings) (*bill.Record, error) {
	// Misconfiguration must not use up a rate limit slot
	if !settings.IsConfigured(aiSettings) {
		return nil, configError(aiSettings.Provider)
	}

	decision := s.limiter.Reserve()
	if !decision.Allowed {
		slog.Warn("Rate limit exceeded", "retry_after_seconds", decision.RetryAfterSeconds)
		return nil, &RateLimitError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	scanner, err := s.factory.NewScanner(aiSettings)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	raw, err := scanner.Scan(ctx, imageDataURI)
	if err != nil {
		return nil, err
	}

	extracted, err := bill.Normalize(raw)
	if err != nil {
		slog.Error("Provider response failed validation", "provider", aiSettings.Provider, "error", err)
		return nil, err
	}

	record := &bill.Record{
		ExtractedBill: *extracted,
		ID:            s.idGenerator.Generate(),
		AnalyzedAt:    s.timeSource.Now().UTC(),
	}

	if record.NeedsReview() {
		slog.Warn("Low confidence extraction, review the fields", "id", record.ID, "confidence", record.Confidence())
	}
	slog.Info("Bill analyzed", "id", record.ID, "provider", aiSettings.Provider, "account_number", record.AccountNumber)

	return record, nil
}
