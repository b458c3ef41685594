package scanning

import (
	"errors"
	"fmt"
)

// ErrAnalysisFailed matches every provider failure, transport or response.
var ErrAnalysisFailed = errors.New("analysis failed")

// ConfigError reports a missing credential, endpoint or model. The message
// is meant for the user.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// TransportError means the provider could not be reached at all.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("Could not connect to the %s server. Please ensure the server is running and the URL is correct.", e.Provider)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrAnalysisFailed }

// ResponseError means the provider answered with an error status or with a
// body that could not be decoded. StatusCode is 0 when no status applies.
// Error deliberately omits the provider's diagnostics; they stay in Err.
type ResponseError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API returned an error: %d. Please check your server URL and ensure the model is running.", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("Failed to analyze the bill with %s. The model could not process the image. Please check your settings and try a clearer image.", e.Provider)
}

func (e *ResponseError) Unwrap() error { return e.Err }

func (e *ResponseError) Is(target error) bool { return target == ErrAnalysisFailed }
