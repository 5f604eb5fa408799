package octopus

import "errors"

// Error taxonomy for the API client. Callers match with errors.Is; the
// fetch layer wraps underlying causes with %w.
var (
	ErrInvalidURL        = errors.New("octopus: invalid URL")
	ErrInvalidResponse   = errors.New("octopus: invalid response")
	ErrNetwork           = errors.New("octopus: network error")
	ErrDecoding          = errors.New("octopus: decoding error")
	ErrInvalidAPIKey     = errors.New("octopus: missing or empty API key")
	ErrInvalidTariffCode = errors.New("octopus: malformed tariff code")
)
