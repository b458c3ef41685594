package scanning

import "context"

// Scanner defines the interface for utility bill extraction. Scan returns the
// provider's JSON object as-is; checking its shape is left to the caller.
type Scanner interface {
	// Scan sends a base64 data URI image to the model and returns the decoded
	// JSON object it produced
	Scan(ctx context.Context, imageDataURI string) (map[string]any, error)
	// Close closes the scanner and releases resources
	Close() error
}
