// ABOUTME: Validation errors for persisted selectors
// ABOUTME: SelectorError reports which required selector part is missing

package model

import (
	"errors"
	"fmt"
)

// SelectorReason names the missing selector part
type SelectorReason string

const (
	MISSING_QUOTE    SelectorReason = "MISSING_QUOTE"
	MISSING_POSITION SelectorReason = "MISSING_POSITION"
)

var ErrNoSelectors = errors.New("model: target has no selectors")

// SelectorError is returned when a persisted selector lacks required fields
type SelectorError struct {
	Reason     SelectorReason
	Annotation string
}

func (e *SelectorError) Error() string {
	if e.Annotation == "" {
		return fmt.Sprintf("selector: %s", e.Reason)
	}
	return fmt.Sprintf("selector: %s for annotation %s", e.Reason, e.Annotation)
}

// Validate checks the persisted fields of a selector
func (s TextSelector) Validate() error {
	if s.Quote == "" {
		return &SelectorError{Reason: MISSING_QUOTE}
	}
	if s.Start < 0 || s.End <= s.Start {
		return &SelectorError{Reason: MISSING_POSITION}
	}
	return nil
}

// Validate checks every selector of the target
func (t Target) Validate() error {
	if len(t.Selectors) == 0 {
		return ErrNoSelectors
	}
	for _, s := range t.Selectors {
		if err := s.Validate(); err != nil {
			var se *SelectorError
			if errors.As(err, &se) {
				se.Annotation = t.Annotation
			}
			return err
		}
	}
	return nil
}
