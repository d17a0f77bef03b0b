// ABOUTME: Typed client for the Annotator gRPC service
// ABOUTME: Wraps Struct messages in Go values for callers and tests

package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/textanchor/pkg/geom"
)

// Client calls the Annotator service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Hit is one annotation returned by a spatial query
type Hit struct {
	ID    string
	Rects []geom.Rect
}

// ReloadStats is the index state after a recalculation
type ReloadStats struct {
	Annotations int
	Indexed     int
	Rects       int
	Outdated    int
	Warning     string
}

// LoadFailure is one rejected item of a batch load
type LoadFailure struct {
	Index int
	ID    string
	Error string
}

// Invoke calls a method with raw Struct messages
func (c *Client) Invoke(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AddAnnotation sends one W3C annotation and returns its id
func (c *Client) AddAnnotation(ctx context.Context, annotationJSON string) (string, error) {
	out, err := c.Invoke(ctx, "AddAnnotation", map[string]any{"annotation": annotationJSON})
	if err != nil {
		return "", err
	}
	return stringField(out, "id"), nil
}

func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	_, err := c.Invoke(ctx, "DeleteAnnotation", map[string]any{"id": id})
	return err
}

// LoadAnnotations sends a W3C JSON array and returns the parsed count
func (c *Client) LoadAnnotations(ctx context.Context, annotationsJSON string, replace bool) (int, []LoadFailure, error) {
	out, err := c.Invoke(ctx, "LoadAnnotations", map[string]any{
		"annotations": annotationsJSON,
		"replace":     replace,
	})
	if err != nil {
		return 0, nil, err
	}

	var failed []LoadFailure
	for _, v := range out.GetFields()["failed"].GetListValue().GetValues() {
		f := v.GetStructValue()
		idx, _ := numberField(f, "index")
		failed = append(failed, LoadFailure{
			Index: int(idx),
			ID:    stringField(f, "id"),
			Error: stringField(f, "error"),
		})
	}
	parsed, _ := numberField(out, "parsed")
	return int(parsed), failed, nil
}

// ExportAnnotations returns every annotation as a W3C JSON array
func (c *Client) ExportAnnotations(ctx context.Context) (string, error) {
	out, err := c.Invoke(ctx, "ExportAnnotations", map[string]any{})
	if err != nil {
		return "", err
	}
	return stringField(out, "annotations"), nil
}

// ExportAnnotation returns one annotation as W3C JSON
func (c *Client) ExportAnnotation(ctx context.Context, id string) (string, error) {
	out, err := c.Invoke(ctx, "ExportAnnotations", map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	return stringField(out, "annotation"), nil
}

// GetAt returns the id of the annotation under a point
func (c *Client) GetAt(ctx context.Context, x, y float64) (string, bool, error) {
	out, err := c.Invoke(ctx, "GetAt", map[string]any{"x": x, "y": y})
	if err != nil {
		return "", false, err
	}
	return stringField(out, "id"), boolField(out, "found"), nil
}

func (c *Client) GetIntersecting(ctx context.Context, minX, minY, maxX, maxY float64) ([]Hit, error) {
	out, err := c.Invoke(ctx, "GetIntersecting", map[string]any{
		"min_x": minX,
		"min_y": minY,
		"max_x": maxX,
		"max_y": maxY,
	})
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, v := range out.GetFields()["annotations"].GetListValue().GetValues() {
		h := v.GetStructValue()
		hits = append(hits, Hit{
			ID:    stringField(h, "id"),
			Rects: decodeRects(h.GetFields()["rects"]),
		})
	}
	return hits, nil
}

func (c *Client) GetAnnotationBounds(ctx context.Context, id string) (geom.Rect, error) {
	out, err := c.Invoke(ctx, "GetAnnotationBounds", map[string]any{"id": id})
	if err != nil {
		return geom.Rect{}, err
	}
	return decodeRect(out.GetFields()["bounds"].GetStructValue()), nil
}

func (c *Client) Recalculate(ctx context.Context) (ReloadStats, error) {
	out, err := c.Invoke(ctx, "Recalculate", map[string]any{})
	if err != nil {
		return ReloadStats{}, err
	}
	return decodeStats(out), nil
}

// ReloadText replaces the document with plain text
func (c *Client) ReloadText(ctx context.Context, text string) (ReloadStats, error) {
	return c.reload(ctx, map[string]any{"text": text})
}

// ReloadHTML replaces the document with an HTML page
func (c *Client) ReloadHTML(ctx context.Context, page string) (ReloadStats, error) {
	return c.reload(ctx, map[string]any{"html": page})
}

// Reload asks the server to re-read its document source
func (c *Client) Reload(ctx context.Context) (ReloadStats, error) {
	return c.reload(ctx, map[string]any{})
}

func (c *Client) reload(ctx context.Context, req map[string]any) (ReloadStats, error) {
	out, err := c.Invoke(ctx, "Reload", req)
	if err != nil {
		return ReloadStats{}, err
	}
	return decodeStats(out), nil
}

// Health returns the raw health struct
func (c *Client) Health(ctx context.Context) (*structpb.Struct, error) {
	return c.Invoke(ctx, "Health", map[string]any{})
}

func decodeStats(s *structpb.Struct) ReloadStats {
	n := func(name string) int {
		v, _ := numberField(s, name)
		return int(v)
	}
	return ReloadStats{
		Annotations: n("annotations"),
		Indexed:     n("indexed"),
		Rects:       n("rects"),
		Outdated:    n("outdated"),
		Warning:     stringField(s, "warning"),
	}
}

func decodeRect(s *structpb.Struct) geom.Rect {
	x, _ := numberField(s, "x")
	y, _ := numberField(s, "y")
	w, _ := numberField(s, "width")
	h, _ := numberField(s, "height")
	return geom.Rect{X: x, Y: y, Width: w, Height: h}
}

func decodeRects(v *structpb.Value) []geom.Rect {
	var out []geom.Rect
	for _, r := range v.GetListValue().GetValues() {
		out = append(out, decodeRect(r.GetStructValue()))
	}
	return out
}
