// ABOUTME: Annotation data model for text annotations
// ABOUTME: Defines Annotation, Target and TextSelector (persisted without live ranges)

package model

import (
	"time"

	"github.com/nainya/textanchor/pkg/document"
)

// User identifies the creator of an annotation or body
type User struct {
	ID   string
	Name string
}

// TextSelector identifies one contiguous span of text
type TextSelector struct {
	ID     string          // Optional selector identifier
	Quote  string          // Exact text, whitespace collapsed
	Start  int             // Offset of the first character within the scope
	End    int             // Offset after the last character (Start < End)
	Range  *document.Range // Live handle, never persisted
	Scope  string          // Optional id of the element the offsets are relative to
	Prefix string          // Optional text before the quote (reanchoring context)
	Suffix string          // Optional text after the quote
}

// Revived reports whether the selector holds a live range
func (s TextSelector) Revived() bool {
	return s.Range != nil && s.Range.Valid() && !s.Range.Collapsed()
}

// Persisted returns a copy without the live range
func (s TextSelector) Persisted() TextSelector {
	s.Range = nil
	return s
}

// Target is the text an annotation points at: one or more selectors
type Target struct {
	Annotation string         // Owning annotation ID
	Selectors  []TextSelector // Possibly discontinuous spans
	Outdated   bool           // Set when revival only partially succeeded
	Creator    *User
	Created    time.Time
	Updated    time.Time
	StyleClass string
}

// Revived reports whether every selector holds a live range
func (t Target) Revived() bool {
	if len(t.Selectors) == 0 {
		return false
	}
	for _, s := range t.Selectors {
		if !s.Revived() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the selector slice
func (t Target) Clone() Target {
	out := t
	out.Selectors = append([]TextSelector(nil), t.Selectors...)
	return out
}

// Quote returns the selector quotes joined by a space
func (t Target) Quote() string {
	quote := ""
	for i, s := range t.Selectors {
		if i > 0 {
			quote += " "
		}
		quote += s.Quote
	}
	return quote
}

// Body is a comment, tag or other payload attached to an annotation
type Body struct {
	ID      string
	Purpose string
	Value   string
	Creator *User
	Created time.Time
}

// Annotation ties bodies to a text target
type Annotation struct {
	ID     string
	Bodies []Body
	Target Target
}

// Clone returns a copy that shares no slices with a
func (a Annotation) Clone() Annotation {
	out := a
	out.Bodies = append([]Body(nil), a.Bodies...)
	out.Target = a.Target.Clone()
	return out
}
