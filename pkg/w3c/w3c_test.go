// ABOUTME: Tests for the W3C Web Annotation boundary

package w3c

import (
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

const sample = `{
  "@context": "http://www.w3.org/ns/anno.jsonld",
  "id": "anno-1",
  "type": "Annotation",
  "creator": {"id": "u1", "name": "Rainer"},
  "created": "2024-03-01T10:00:00.000Z",
  "body": [{"id": "b1", "purpose": "commenting", "value": "Nice"}],
  "target": {
    "source": "doc.html",
    "scope": "intro",
    "styleClass": "red",
    "selector": [
      {"type": "TextQuoteSelector", "exact": "world", "prefix": "hello ", "suffix": "!"},
      {"type": "TextPositionSelector", "start": 6, "end": 11}
    ]
  }
}`

func TestParse(t *testing.T) {
	res := Parse(sample)
	if res.Err != nil {
		t.Fatalf("Parse failed: %v", res.Err)
	}
	a := res.Annotation

	if a.ID != "anno-1" || a.Target.Annotation != "anno-1" {
		t.Errorf("Unexpected ids %q/%q", a.ID, a.Target.Annotation)
	}
	if a.Target.Creator == nil || a.Target.Creator.Name != "Rainer" {
		t.Errorf("Unexpected creator %+v", a.Target.Creator)
	}
	if !a.Target.Created.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected created %v", a.Target.Created)
	}
	if a.Target.StyleClass != "red" {
		t.Errorf("Expected style class, got %q", a.Target.StyleClass)
	}
	if len(a.Bodies) != 1 || a.Bodies[0].Value != "Nice" {
		t.Errorf("Unexpected bodies %+v", a.Bodies)
	}

	sels := a.Target.Selectors
	if len(sels) != 1 {
		t.Fatalf("Expected one selector, got %d", len(sels))
	}
	s := sels[0]
	if s.Quote != "world" || s.Start != 6 || s.End != 11 || s.Scope != "intro" || s.Prefix != "hello " {
		t.Errorf("Unexpected selector %+v", s)
	}
}

func TestParseMissingSelectors(t *testing.T) {
	cases := []struct {
		name   string
		json   string
		reason model.SelectorReason
	}{
		{"no quote", `{"id":"x","target":{"selector":{"type":"TextPositionSelector","start":0,"end":3}}}`, model.MISSING_QUOTE},
		{"no position", `{"id":"x","target":{"selector":{"type":"TextQuoteSelector","exact":"abc"}}}`, model.MISSING_POSITION},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse(tc.json)
			var se *model.SelectorError
			if !errors.As(res.Err, &se) {
				t.Fatalf("Expected SelectorError, got %v", res.Err)
			}
			if se.Reason != tc.reason || se.Annotation != "x" {
				t.Errorf("Unexpected error %+v", se)
			}
		})
	}

	if res := Parse(`{"id":"x"}`); !errors.Is(res.Err, ErrNoTargets) {
		t.Errorf("Expected ErrNoTargets, got %v", res.Err)
	}
	if res := Parse(`{`); !errors.Is(res.Err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON, got %v", res.Err)
	}
}

func TestParseAll(t *testing.T) {
	batch := `[
	  {"target": {"selector": [{"type":"TextQuoteSelector","exact":"a"},{"type":"TextPositionSelector","start":0,"end":1}]}},
	  {"id": "broken", "target": {"selector": {"type":"TextQuoteSelector","exact":"b"}}},
	  {"id": "ok", "target": {"selector": [{"type":"TextQuoteSelector","exact":"c"},{"type":"TextPositionSelector","start":2,"end":3}]}}
	]`

	res, err := ParseAll(batch)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	if len(res.Parsed) != 2 || len(res.Failed) != 1 {
		t.Fatalf("Expected 2 parsed and 1 failed, got %d/%d", len(res.Parsed), len(res.Failed))
	}
	if res.Parsed[0].ID == "" {
		t.Error("Expected a generated id for the first item")
	}
	if f := res.Failed[0]; f.Index != 1 || f.ID != "broken" {
		t.Errorf("Unexpected failure %+v", f)
	}

	if _, err := ParseAll(`{"id":"single"}`); !errors.Is(err, ErrNotArray) {
		t.Errorf("Expected ErrNotArray, got %v", err)
	}
}

func TestSerialize(t *testing.T) {
	doc := document.FromText("hello world, said the world")
	a := model.Annotation{
		ID:     "anno-1",
		Bodies: []model.Body{{ID: "b1", Purpose: "tagging", Value: "greeting"}},
		Target: model.Target{
			Annotation: "anno-1",
			Creator:    &model.User{ID: "u1"},
			Created:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Selectors:  []model.TextSelector{{Quote: "world", Start: 6, End: 11}},
		},
	}

	out, err := Serialize(a, "doc.txt", doc.Root)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	checks := map[string]string{
		`\@context`:                  CONTEXT,
		"type":                       "Annotation",
		"creator.id":                 "u1",
		"created":                    "2024-03-01T10:00:00.000Z",
		"body.0.value":               "greeting",
		"target.0.source":            "doc.txt",
		"target.0.selector.0.type":   TEXT_QUOTE_SELECTOR,
		"target.0.selector.0.exact":  "world",
		"target.0.selector.0.prefix": "hello ",
		"target.0.selector.0.suffix": ", said the world",
		"target.0.selector.1.type":   TEXT_POSITION_SELECTOR,
	}
	for path, want := range checks {
		if got := gjson.Get(out, path).String(); got != want {
			t.Errorf("%s: expected %q, got %q", path, want, got)
		}
	}
	if gjson.Get(out, "target.0.selector.1.end").Int() != 11 {
		t.Errorf("Unexpected position selector in %s", out)
	}
	if gjson.Get(out, "target.0.scope").Exists() {
		t.Error("Empty scope must be omitted")
	}

	// Round trip through the parser
	back := Parse(out)
	if back.Err != nil {
		t.Fatalf("Parse of serialized output failed: %v", back.Err)
	}
	if back.Annotation.Target.Quote() != "world" || back.Annotation.Target.Selectors[0].Suffix != ", said the world" {
		t.Errorf("Round trip lost data: %+v", back.Annotation.Target)
	}
}

func TestSerializeWithoutContainerKeepsStoredContext(t *testing.T) {
	a := model.Annotation{
		ID: "a",
		Target: model.Target{Selectors: []model.TextSelector{
			{Quote: "x", Start: 0, End: 1, Prefix: "pre", Scope: "s1"},
		}},
	}

	out, err := SerializeAll([]model.Annotation{a, a}, "src", nil)
	if err != nil {
		t.Fatalf("SerializeAll failed: %v", err)
	}
	if n := len(gjson.Parse(out).Array()); n != 2 {
		t.Fatalf("Expected 2 items, got %d", n)
	}
	if got := gjson.Get(out, "0.target.0.selector.0.prefix").String(); got != "pre" {
		t.Errorf("Expected stored prefix, got %q", got)
	}
	if got := gjson.Get(out, "1.target.0.scope").String(); got != "s1" {
		t.Errorf("Expected scope, got %q", got)
	}
}
