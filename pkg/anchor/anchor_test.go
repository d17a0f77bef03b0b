// ABOUTME: Tests for selector creation, revival and reanchoring
// ABOUTME: Covers round-trips, edits before the target, scopes and structural paths

package anchor

import (
	"errors"
	"testing"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

// buildDoc creates:
//
//	<root><p id="intro">Hello   world, hello there.</p>
//	      <div class="not-annotatable">menu</div>
//	      <p>Second <em>para</em>graph hello.</p></root>
func buildDoc() (*document.Document, map[string]*document.Node) {
	d := document.New()
	nodes := map[string]*document.Node{
		"intro": d.NewText("Hello   world, hello there."),
		"menu":  d.NewText("menu"),
		"sec":   d.NewText("Second "),
		"em":    d.NewText("para"),
		"tail":  d.NewText("graph hello."),
	}
	d.Root.AppendChild(d.NewElement("p", map[string]string{"id": "intro"}, nodes["intro"]))
	d.Root.AppendChild(d.NewElement("div", map[string]string{"class": "not-annotatable"}, nodes["menu"]))
	d.Root.AppendChild(d.NewElement("p", nil, nodes["sec"], d.NewElement("em", nil, nodes["em"]), nodes["tail"]))
	return d, nodes
}

func TestRoundTrip(t *testing.T) {
	d, nodes := buildDoc()

	ranges := []document.Range{
		document.NewRange(nodes["intro"], 0, nodes["intro"], 13),
		document.NewRange(nodes["sec"], 3, nodes["tail"], 5),
		document.NewRange(nodes["intro"], 15, nodes["tail"], 2),
	}

	for _, r := range ranges {
		sel, err := ToSelector(r, d.Root, Options{})
		if err != nil {
			t.Fatalf("ToSelector(%s) failed: %v", r.Describe(), err)
		}

		res, err := Revive(sel.Persisted(), d.Root)
		if err != nil {
			t.Fatalf("Revive(%q) failed: %v", sel.Quote, err)
		}
		if res.Reanchored {
			t.Errorf("Expected offset revival for %q", sel.Quote)
		}
		if res.Start != sel.Start || res.End != sel.End {
			t.Errorf("Offsets changed: [%d,%d) -> [%d,%d)", sel.Start, sel.End, res.Start, res.End)
		}
		if got := CollapseWhitespace(res.Range.String()); got != sel.Quote {
			t.Errorf("Expected quote %q, got %q", sel.Quote, got)
		}
	}
}

func TestToSelectorCollapsesWhitespace(t *testing.T) {
	d, nodes := buildDoc()

	sel, err := ToSelector(document.NewRange(nodes["intro"], 0, nodes["intro"], 13), d.Root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Quote != "Hello world" {
		t.Errorf("Expected collapsed quote, got %q", sel.Quote)
	}
	if sel.Start != 0 || sel.End != 13 {
		t.Errorf("Expected raw offsets [0,13), got [%d,%d)", sel.Start, sel.End)
	}
	if !sel.Revived() {
		t.Error("Expected selector to carry the live range")
	}
}

func TestReanchorAfterEditBefore(t *testing.T) {
	d, nodes := buildDoc()

	sel, err := ToSelector(document.NewRange(nodes["tail"], 0, nodes["tail"], 5), d.Root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	persisted := sel.Persisted()

	// Unrelated edit before the target shifts every offset
	if err := nodes["intro"].InsertText(0, "Preface. "); err != nil {
		t.Fatal(err)
	}

	res, err := Revive(persisted, d.Root)
	if err != nil {
		t.Fatalf("Revive failed after edit: %v", err)
	}
	if !res.Reanchored {
		t.Error("Expected reanchoring")
	}
	if got := res.Range.String(); got != "graph" {
		t.Errorf("Expected %q, got %q", "graph", got)
	}
	if res.Start != persisted.Start+9 {
		t.Errorf("Expected start %d, got %d", persisted.Start+9, res.Start)
	}
}

func TestReanchorPrefersContext(t *testing.T) {
	d, nodes := buildDoc()

	// Second "hello" in the document, in the last paragraph
	r := document.NewRange(nodes["tail"], 6, nodes["tail"], 11)
	sel, err := ToSelector(r, d.Root, Options{ContextLength: 8})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Prefix == "" || sel.Suffix != "." {
		t.Fatalf("Unexpected context %q / %q", sel.Prefix, sel.Suffix)
	}

	persisted := sel.Persisted()
	// Stale offsets next to the first "hello": proximity favors it, context does not
	persisted.Start, persisted.End = 14, 19
	persisted.Quote = "hello"

	res, err := Revive(persisted, d.Root)
	if err != nil {
		t.Fatal(err)
	}
	if res.Range.Start.Node != nodes["tail"] || res.Range.Start.Offset != 6 {
		t.Errorf("Expected match in last paragraph, got %s", res.Range.Describe())
	}
}

func TestReviveNotFoundAndMalformed(t *testing.T) {
	d, _ := buildDoc()

	_, err := Revive(model.TextSelector{Quote: "absent", Start: 0, End: 6}, d.Root)
	if reason, ok := ReasonOf(err); !ok || reason != NOT_FOUND {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}

	_, err = Revive(model.TextSelector{Quote: "Hello", Start: 5, End: 5}, d.Root)
	if reason, ok := ReasonOf(err); !ok || reason != MALFORMED {
		t.Errorf("Expected MALFORMED, got %v", err)
	}

	_, err = Revive(model.TextSelector{Quote: "Hello", Start: 0, End: 5, Scope: "missing"}, d.Root)
	if reason, _ := ReasonOf(err); reason != NOT_FOUND {
		t.Errorf("Expected NOT_FOUND for unknown scope, got %v", err)
	}
}

func TestOffsetReferenceScope(t *testing.T) {
	d, nodes := buildDoc()

	r := document.NewRange(nodes["intro"], 15, nodes["intro"], 20)
	sel, err := ToSelector(r, d.Root, Options{OffsetReference: ByName("p")})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Scope != "intro" || sel.Start != 15 || sel.End != 20 {
		t.Fatalf("Unexpected scoped selector %+v", sel)
	}

	res, err := Revive(sel.Persisted(), d.Root)
	if err != nil {
		t.Fatal(err)
	}
	if res.Range.String() != "hello" {
		t.Errorf("Expected %q, got %q", "hello", res.Range.String())
	}
}

func TestReviveTargetMarksOutdated(t *testing.T) {
	d, _ := buildDoc()

	target := model.Target{
		Annotation: "a1",
		Selectors: []model.TextSelector{
			{Quote: "Hello world", Start: 0, End: 13},
			{Quote: "nowhere", Start: 40, End: 47},
		},
	}

	revived, err := ReviveTarget(target, d.Root)
	if err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}
	if !revived.Outdated {
		t.Error("Expected target to be marked outdated")
	}
	if len(revived.Selectors) != 1 || !revived.Selectors[0].Revived() {
		t.Errorf("Expected one revived selector, got %+v", revived.Selectors)
	}
	if target.Selectors[0].Revived() {
		t.Error("ReviveTarget must not modify its input")
	}

	target.Selectors = target.Selectors[1:]
	_, err = ReviveTarget(target, d.Root)
	var ae *AnchorError
	if !errors.As(err, &ae) || ae.Reason != NOT_FOUND {
		t.Errorf("Expected NOT_FOUND when nothing anchors, got %v", err)
	}
}

func TestSplitAnnotatableRanges(t *testing.T) {
	_, nodes := buildDoc()

	r := document.NewRange(nodes["intro"], 15, nodes["sec"], 6)
	parts := SplitAnnotatableRanges(r)
	if len(parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(parts))
	}
	if parts[0].String() != "hello there." || parts[1].String() != "Second" {
		t.Errorf("Unexpected parts %q / %q", parts[0].String(), parts[1].String())
	}

	if !IsWhitespaceOrEmpty(document.NewRange(nodes["intro"], 5, nodes["intro"], 8)) {
		t.Error("Expected whitespace-only range")
	}
}

func TestStructuralRoundTrip(t *testing.T) {
	d, nodes := buildDoc()

	sel, err := ToSelector(document.NewRange(nodes["sec"], 0, nodes["tail"], 5), d.Root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	s, err := ToStructural(sel, d.Root)
	if err != nil {
		t.Fatal(err)
	}
	if s.StartPath != "/p[2]::0" || s.EndPath != "/p[2]::16" {
		t.Errorf("Unexpected paths %q / %q", s.StartPath, s.EndPath)
	}

	revived, err := ReviveStructural(s, d.Root)
	if err != nil {
		t.Fatal(err)
	}
	if revived.Quote != "Second paragraph" || revived.Start != sel.Start || revived.End != sel.End {
		t.Errorf("Unexpected revived selector %+v", revived)
	}

	intro, err := ToSelector(document.NewRange(nodes["intro"], 15, nodes["intro"], 20), d.Root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s, _ = ToStructural(intro, d.Root)
	if s.StartPath != "//p[@id='intro']::15" {
		t.Errorf("Expected id path, got %q", s.StartPath)
	}
}

func TestStructuralMalformed(t *testing.T) {
	d, _ := buildDoc()

	cases := []StructuralSelector{
		{Quote: "x", StartPath: "/p[1]::0"},
		{Quote: "x", StartPath: "/p[1]", EndPath: "/p[1]::1"},
		{Quote: "x", StartPath: "/p[zero]::0", EndPath: "/p[1]::1"},
	}
	for _, c := range cases {
		_, err := ReviveStructural(c, d.Root)
		if reason, _ := ReasonOf(err); reason != MALFORMED {
			t.Errorf("Expected MALFORMED for %+v, got %v", c, err)
		}
	}

	_, err := ReviveStructural(StructuralSelector{Quote: "x", StartPath: "/p[9]::0", EndPath: "/p[9]::1"}, d.Root)
	if reason, _ := ReasonOf(err); reason != NOT_FOUND {
		t.Errorf("Expected NOT_FOUND for missing element, got %v", err)
	}
}
