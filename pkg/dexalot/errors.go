package dexalot

import (
	"errors"
	"fmt"
)

// ErrSizeOutOfRange is returned by PlaceOrder when the order amount falls
// outside the pair's [min, max] trade size. This is a configuration-level
// problem, never retried automatically.
var ErrSizeOutOfRange = errors.New("order size outside pair trade limits")

// ErrPairNotFound is returned when the configured pair is not deployed.
var ErrPairNotFound = errors.New("trade pair not found among deployed pairs")

// APIError is a non-2xx response from the exchange REST API.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// retriableStatus reports whether an HTTP status is worth retrying.
func retriableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
