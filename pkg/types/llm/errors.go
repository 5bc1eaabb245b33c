package llm

import "fmt"

// ProviderError wraps a network or provider-side failure. It carries enough
// classification for the retry policy to distinguish transient failures
// (rate limits, outages) from permanent ones (bad request, auth).
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int // 0 when the failure never produced an HTTP status
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (%s) returned status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s (%s) call failed: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class is worth retrying:
// rate limits, server-side errors and transport failures without a status.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// SchemaParseError indicates the model returned content that does not conform
// to the step's declared output schema and no repair succeeded. It is
// recovered locally; callers fall back to the raw text content.
type SchemaParseError struct {
	Expected string // schema type that was expected
	Err      error
}

func (e *SchemaParseError) Error() string {
	return fmt.Sprintf("model output does not conform to expected %s schema: %v", e.Expected, e.Err)
}

func (e *SchemaParseError) Unwrap() error {
	return e.Err
}
