package analysis

import "fmt"

// RateLimitError is returned when the request window is full. No provider
// call was made.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before trying again.", e.RetryAfterSeconds)
}
