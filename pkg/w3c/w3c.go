// ABOUTME: W3C Web Annotation JSON boundary for text annotations
// ABOUTME: Parses with gjson, serializes with sjson (TextQuoteSelector + TextPositionSelector)

package w3c

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nainya/textanchor/pkg/anchor"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

const (
	CONTEXT = "http://www.w3.org/ns/anno.jsonld"

	TEXT_QUOTE_SELECTOR    = "TextQuoteSelector"
	TEXT_POSITION_SELECTOR = "TextPositionSelector"

	// Millisecond precision, UTC
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrInvalidJSON = errors.New("w3c: invalid json")
	ErrNotArray    = errors.New("w3c: expected a json array")
	ErrNoTargets   = errors.New("w3c: annotation has no targets")
)

// ParseResult is the outcome of parsing one annotation
type ParseResult struct {
	Annotation model.Annotation
	Err        error
}

// ItemError is a failed item of a batch
type ItemError struct {
	Index int
	ID    string
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchResult splits a batch into parsed annotations and per-item failures
type BatchResult struct {
	Parsed []model.Annotation
	Failed []ItemError
}

// Parse converts one W3C annotation. A missing id gets a fresh uuid.
func Parse(json string) ParseResult {
	if !gjson.Valid(json) {
		return ParseResult{Err: ErrInvalidJSON}
	}
	return parse(gjson.Parse(json))
}

// ParseAll parses a JSON array of annotations. Items that fail are reported
// in Failed; the rest are returned in order.
func ParseAll(json string) (BatchResult, error) {
	if !gjson.Valid(json) {
		return BatchResult{}, ErrInvalidJSON
	}
	arr := gjson.Parse(json)
	if !arr.IsArray() {
		return BatchResult{}, ErrNotArray
	}

	var out BatchResult
	for i, item := range arr.Array() {
		res := parse(item)
		if res.Err != nil {
			out.Failed = append(out.Failed, ItemError{Index: i, ID: item.Get("id").String(), Err: res.Err})
			continue
		}
		out.Parsed = append(out.Parsed, res.Annotation)
	}
	return out, nil
}

func parse(v gjson.Result) ParseResult {
	if !v.IsObject() {
		return ParseResult{Err: fmt.Errorf("%w: annotation is not an object", ErrInvalidJSON)}
	}

	id := v.Get("id").String()
	if id == "" {
		id = uuid.NewString()
	}

	bodies, err := parseBodies(v.Get("body"), id)
	if err != nil {
		return ParseResult{Err: err}
	}
	target, err := parseTarget(v, id)
	if err != nil {
		return ParseResult{Err: err}
	}

	return ParseResult{Annotation: model.Annotation{ID: id, Bodies: bodies, Target: target}}
}

func parseTarget(v gjson.Result, id string) (model.Target, error) {
	t := model.Target{Annotation: id, Creator: parseUser(v.Get("creator"))}

	var err error
	if t.Created, err = parseTime(v.Get("created")); err != nil {
		return t, fmt.Errorf("w3c: created: %w", err)
	}
	if t.Updated, err = parseTime(v.Get("modified")); err != nil {
		return t, fmt.Errorf("w3c: modified: %w", err)
	}

	targets := list(v.Get("target"))
	if len(targets) == 0 {
		return t, fmt.Errorf("%w: %s", ErrNoTargets, id)
	}
	t.StyleClass = targets[0].Get("styleClass").String()

	for _, wt := range targets {
		sel := model.TextSelector{
			ID:    wt.Get("id").String(),
			Scope: wt.Get("scope").String(),
			Start: -1,
			End:   -1,
		}
		for _, ws := range list(wt.Get("selector")) {
			switch ws.Get("type").String() {
			case TEXT_QUOTE_SELECTOR:
				sel.Quote = ws.Get("exact").String()
				sel.Prefix = ws.Get("prefix").String()
				sel.Suffix = ws.Get("suffix").String()
			case TEXT_POSITION_SELECTOR:
				if start, end := ws.Get("start"), ws.Get("end"); start.Exists() && end.Exists() {
					sel.Start = int(start.Int())
					sel.End = int(end.Int())
				}
			}
		}
		t.Selectors = append(t.Selectors, sel)
	}

	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func parseBodies(v gjson.Result, annotation string) ([]model.Body, error) {
	var bodies []model.Body
	for _, b := range list(v) {
		if b.Type == gjson.String {
			bodies = append(bodies, model.Body{ID: uuid.NewString(), Purpose: "commenting", Value: b.String()})
			continue
		}

		body := model.Body{
			ID:      b.Get("id").String(),
			Purpose: b.Get("purpose").String(),
			Value:   b.Get("value").String(),
			Creator: parseUser(b.Get("creator")),
		}
		if body.ID == "" {
			body.ID = uuid.NewString()
		}
		created, err := parseTime(b.Get("created"))
		if err != nil {
			return nil, fmt.Errorf("w3c: body of %s: %w", annotation, err)
		}
		body.Created = created
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// parseUser accepts a bare id string or an {id, name} object
func parseUser(v gjson.Result) *model.User {
	switch {
	case !v.Exists():
		return nil
	case v.Type == gjson.String:
		return &model.User{ID: v.String()}
	case v.IsObject():
		return &model.User{ID: v.Get("id").String(), Name: v.Get("name").String()}
	}
	return nil
}

func parseTime(v gjson.Result) (time.Time, error) {
	if !v.Exists() || v.String() == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v.String())
}

// list treats a single value as a one-element array
func list(v gjson.Result) []gjson.Result {
	switch {
	case !v.Exists():
		return nil
	case v.IsArray():
		return v.Array()
	}
	return []gjson.Result{v}
}

// Serialize converts an annotation to W3C JSON. With a container, quote
// context is computed from the live (or revived) range; otherwise the
// stored prefix and suffix are written.
func Serialize(a model.Annotation, source string, container *document.Node) (string, error) {
	out := "{}"
	var err error
	set := func(path string, value any) {
		if err == nil {
			out, err = sjson.Set(out, path, value)
		}
	}
	setRaw := func(path, raw string) {
		if err == nil {
			out, err = sjson.SetRaw(out, path, raw)
		}
	}

	set(`\@context`, CONTEXT)
	set("id", a.ID)
	set("type", "Annotation")

	setRaw("body", "[]")
	for _, b := range a.Bodies {
		body, berr := serializeBody(b)
		if berr != nil {
			return "", berr
		}
		setRaw("body.-1", body)
	}

	if a.Target.Creator != nil {
		setRaw("creator", serializeUser(a.Target.Creator))
	}
	if !a.Target.Created.IsZero() {
		set("created", a.Target.Created.UTC().Format(timeLayout))
	}
	if !a.Target.Updated.IsZero() {
		set("modified", a.Target.Updated.UTC().Format(timeLayout))
	}

	setRaw("target", "[]")
	for _, s := range a.Target.Selectors {
		t, terr := serializeTarget(s, a.Target.StyleClass, source, container)
		if terr != nil {
			return "", terr
		}
		setRaw("target.-1", t)
	}

	if err != nil {
		return "", fmt.Errorf("w3c: serialize %s: %w", a.ID, err)
	}
	return out, nil
}

// SerializeAll serializes annotations into a JSON array
func SerializeAll(as []model.Annotation, source string, container *document.Node) (string, error) {
	items := make([]string, 0, len(as))
	for _, a := range as {
		item, err := Serialize(a, source, container)
		if err != nil {
			return "", err
		}
		items = append(items, item)
	}
	return "[" + strings.Join(items, ",") + "]", nil
}

func serializeTarget(s model.TextSelector, styleClass, source string, container *document.Node) (string, error) {
	prefix, suffix := s.Prefix, s.Suffix
	if container != nil {
		if r, ok := liveRange(s, container); ok {
			prefix, suffix = anchor.QuoteContext(r, container, anchor.DEFAULT_CONTEXT_LENGTH)
		}
	}

	quote := "{}"
	position := "{}"
	t := "{}"
	steps := []struct {
		doc   *string
		path  string
		value any
		skip  bool
	}{
		{&quote, "type", TEXT_QUOTE_SELECTOR, false},
		{&quote, "exact", s.Quote, false},
		{&quote, "prefix", prefix, prefix == ""},
		{&quote, "suffix", suffix, suffix == ""},
		{&position, "type", TEXT_POSITION_SELECTOR, false},
		{&position, "start", s.Start, false},
		{&position, "end", s.End, false},
		{&t, "id", s.ID, s.ID == ""},
		{&t, "scope", s.Scope, s.Scope == ""},
		{&t, "source", source, false},
		{&t, "styleClass", styleClass, styleClass == ""},
	}
	for _, st := range steps {
		if st.skip {
			continue
		}
		var err error
		if *st.doc, err = sjson.Set(*st.doc, st.path, st.value); err != nil {
			return "", err
		}
	}

	return sjson.SetRaw(t, "selector", "["+quote+","+position+"]")
}

// liveRange returns the selector's range, reviving it when needed
func liveRange(s model.TextSelector, container *document.Node) (document.Range, bool) {
	if s.Revived() && s.Range.Start.Node != nil && container.Contains(s.Range.Start.Node) {
		return *s.Range, true
	}
	res, err := anchor.Revive(s.Persisted(), container)
	if err != nil {
		return document.Range{}, false
	}
	return res.Range, true
}

func serializeBody(b model.Body) (string, error) {
	out := "{}"
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"id", b.ID},
		{"type", "TextualBody"},
		{"purpose", b.Purpose},
		{"value", b.Value},
	} {
		if kv.value == "" {
			continue
		}
		if out, err = sjson.Set(out, kv.path, kv.value); err != nil {
			return "", err
		}
	}
	if b.Creator != nil {
		if out, err = sjson.SetRaw(out, "creator", serializeUser(b.Creator)); err != nil {
			return "", err
		}
	}
	if !b.Created.IsZero() {
		if out, err = sjson.Set(out, "created", b.Created.UTC().Format(timeLayout)); err != nil {
			return "", err
		}
	}
	return out, nil
}

func serializeUser(u *model.User) string {
	out, _ := sjson.Set("{}", "id", u.ID)
	if u.Name != "" {
		out, _ = sjson.Set(out, "name", u.Name)
	}
	return out
}
