// ABOUTME: Anchoring error taxonomy
// ABOUTME: AnchorError reports why a selector could not be turned into a live range

package anchor

import (
	"errors"
	"fmt"
)

// Reason classifies an anchoring failure
type Reason string

const (
	NOT_FOUND Reason = "NOT_FOUND"
	MALFORMED Reason = "MALFORMED"
)

var (
	ErrOutsideContainer = errors.New("anchor: range is outside the container")
	ErrEmptyRange       = errors.New("anchor: range is empty")
)

// AnchorError is returned when revival cannot produce a live range
type AnchorError struct {
	Reason Reason
	Quote  string
	Detail string
}

func (e *AnchorError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("anchor %s: %q", e.Reason, e.Quote)
	}
	return fmt.Sprintf("anchor %s: %q: %s", e.Reason, e.Quote, e.Detail)
}

func notFound(quote, format string, args ...any) *AnchorError {
	return &AnchorError{Reason: NOT_FOUND, Quote: quote, Detail: fmt.Sprintf(format, args...)}
}

func malformed(quote, format string, args ...any) *AnchorError {
	return &AnchorError{Reason: MALFORMED, Quote: quote, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the anchoring reason from err, if any
func ReasonOf(err error) (Reason, bool) {
	var ae *AnchorError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}
