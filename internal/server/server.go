// Package server implements the gRPC Annotator service
package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/textanchor/internal/logger"
	"github.com/nainya/textanchor/internal/metrics"
	"github.com/nainya/textanchor/pkg/annotator"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/store"
	"github.com/nainya/textanchor/pkg/w3c"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "textanchor.v1.Annotator"

// Version is reported by Health
const Version = "1.0.0"

// AnnotatorServer is the service contract. Every message is a
// google.protobuf.Struct; field names are listed on the Server methods.
type AnnotatorServer interface {
	AddAnnotation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAnnotation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadAnnotations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportAnnotations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetIntersecting(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAnnotationBounds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Recalculate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Annotator service for grpc.Server
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnnotatorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("AddAnnotation", AnnotatorServer.AddAnnotation),
		unary("DeleteAnnotation", AnnotatorServer.DeleteAnnotation),
		unary("LoadAnnotations", AnnotatorServer.LoadAnnotations),
		unary("ExportAnnotations", AnnotatorServer.ExportAnnotations),
		unary("GetAt", AnnotatorServer.GetAt),
		unary("GetIntersecting", AnnotatorServer.GetIntersecting),
		unary("GetAnnotationBounds", AnnotatorServer.GetAnnotationBounds),
		unary("Recalculate", AnnotatorServer.Recalculate),
		unary("Reload", AnnotatorServer.Reload),
		unary("Health", AnnotatorServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "textanchor/v1/annotator.proto",
}

type unaryCall func(AnnotatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AnnotatorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AnnotatorServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RegisterAnnotatorServer registers srv with a gRPC server
func RegisterAnnotatorServer(s grpc.ServiceRegistrar, srv AnnotatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Options configures a Server
type Options struct {
	// LoadDocument re-reads the document for Reload requests without inline text
	LoadDocument func() (*document.Document, error)
	DocumentPath string
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

// Server implements AnnotatorServer over one annotator. The annotator is
// single-threaded, so every request holds the server lock.
type Server struct {
	mu   sync.Mutex
	ann  *annotator.Annotator
	opts Options
	log  *logger.Logger

	startTime time.Time
	opCounts  map[string]int64
}

// NewServer creates a new gRPC server instance
func NewServer(ann *annotator.Annotator, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		ann:       ann,
		opts:      opts,
		log:       log,
		startTime: time.Now(),
		opCounts:  make(map[string]int64),
	}
}

// Close detaches the annotator
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ann.Close()
	return nil
}

// Do runs fn with exclusive access to the annotator
func (s *Server) Do(fn func(*annotator.Annotator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ann)
}

// ReloadDocument swaps in doc and re-anchors every target
func (s *Server) ReloadDocument(doc *document.Document) (annotator.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(doc)
}

func (s *Server) reload(doc *document.Document) (annotator.Stats, error) {
	err := s.ann.Reload(doc)
	st := s.ann.Stats()
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordReload()
	}
	s.log.LogDocumentReload(s.opts.DocumentPath, st.Annotations, st.Outdated)
	return st, err
}

func (s *Server) count(op string) {
	s.opCounts[op]++
}

// ========== Annotation Operations ==========

// AddAnnotation takes {"annotation": <W3C JSON string>} and returns {"id"}
func (s *Server) AddAnnotation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := stringField(req, "annotation")
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "annotation is required")
	}

	res := w3c.Parse(raw)
	if res.Err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid annotation: %v", res.Err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("AddAnnotation")

	if err := s.ann.AddAnnotation(res.Annotation); err != nil {
		return nil, storeError(err)
	}

	an, _ := s.ann.GetAnnotation(res.Annotation.ID)
	return newStruct(map[string]any{
		"id":       an.ID,
		"indexed":  s.ann.Index().Has(an.ID),
		"outdated": an.Target.Outdated,
	})
}

// DeleteAnnotation takes {"id"} and returns {"deleted": true}
func (s *Server) DeleteAnnotation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("DeleteAnnotation")

	if err := s.ann.DeleteAnnotation(id); err != nil {
		return nil, storeError(err)
	}
	return newStruct(map[string]any{"deleted": true})
}

// LoadAnnotations takes {"annotations": <W3C JSON array>, "replace"} and
// returns {"parsed", "failed": [{"index", "id", "error"}]}
func (s *Server) LoadAnnotations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := stringField(req, "annotations")
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "annotations is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("LoadAnnotations")

	res, err := s.ann.LoadAnnotations(raw, boolField(req, "replace"))
	if err != nil {
		if errors.Is(err, w3c.ErrInvalidJSON) || errors.Is(err, w3c.ErrNotArray) {
			return nil, status.Errorf(codes.InvalidArgument, "failed to load annotations: %v", err)
		}
		return nil, storeError(err)
	}

	failed := make([]any, len(res.Failed))
	for i, f := range res.Failed {
		failed[i] = map[string]any{
			"index": f.Index,
			"id":    f.ID,
			"error": f.Err.Error(),
		}
	}
	return newStruct(map[string]any{
		"parsed": len(res.Parsed),
		"failed": failed,
	})
}

// ExportAnnotations returns {"annotations": <W3C JSON array>}, or
// {"annotation"} when the request names an id
func (s *Server) ExportAnnotations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ExportAnnotations")

	if id := stringField(req, "id"); id != "" {
		out, ok, err := s.ann.ExportAnnotation(id)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "annotation %s not found", id)
		}
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to export annotation: %v", err)
		}
		return newStruct(map[string]any{"annotation": out})
	}

	out, err := s.ann.ExportAnnotations()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to export annotations: %v", err)
	}
	return newStruct(map[string]any{
		"annotations": out,
		"count":       s.ann.Store().Len(),
	})
}

// ========== Spatial Queries ==========

// GetAt takes {"x", "y"} and returns {"found", "id", "annotation"}
func (s *Server) GetAt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	x, okX := numberField(req, "x")
	y, okY := numberField(req, "y")
	if !okX || !okY {
		return nil, status.Error(codes.InvalidArgument, "x and y are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetAt")

	an, ok := s.ann.GetAt(x, y)
	if !ok {
		return newStruct(map[string]any{"found": false})
	}
	out, _, err := s.ann.ExportAnnotation(an.ID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to export annotation: %v", err)
	}
	return newStruct(map[string]any{
		"found":      true,
		"id":         an.ID,
		"annotation": out,
	})
}

// GetIntersecting takes {"min_x", "min_y", "max_x", "max_y"} and returns
// {"annotations": [{"id", "rects": [rect]}]}
func (s *Server) GetIntersecting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var box [4]float64
	for i, name := range []string{"min_x", "min_y", "max_x", "max_y"} {
		v, ok := numberField(req, name)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "%s is required", name)
		}
		box[i] = v
	}
	if box[0] > box[2] || box[1] > box[3] {
		return nil, status.Error(codes.InvalidArgument, "min must not exceed max")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetIntersecting")

	hits := s.ann.GetIntersecting(box[0], box[1], box[2], box[3])
	list := make([]any, len(hits))
	for i, h := range hits {
		list[i] = map[string]any{
			"id":    h.Annotation,
			"rects": rectList(h.Rects),
		}
	}
	return newStruct(map[string]any{"annotations": list})
}

// GetAnnotationBounds takes {"id"} and returns {"bounds": rect, "rects": [rect]}
func (s *Server) GetAnnotationBounds(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetAnnotationBounds")

	b, ok := s.ann.GetAnnotationBounds(id)
	if !ok {
		if _, exists := s.ann.GetAnnotation(id); exists {
			return nil, status.Errorf(codes.FailedPrecondition, "annotation %s has no geometry", id)
		}
		return nil, status.Errorf(codes.NotFound, "annotation %s not found", id)
	}
	return newStruct(map[string]any{
		"bounds": rectValue(b),
		"rects":  rectList(s.ann.GetAnnotationRects(id)),
	})
}

// ========== Document Lifecycle ==========

// Recalculate rebuilds every highlight and returns stats
func (s *Server) Recalculate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Recalculate")

	err := s.ann.Recalculate()
	return statsStruct(s.ann.Stats(), err)
}

// Reload takes {"text"} or {"html"} with the new document content, or
// nothing to re-read the document from its source, and returns stats
func (s *Server) Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var (
		doc *document.Document
		err error
	)
	switch {
	case hasField(req, "html"):
		doc, err = document.ParseHTML(strings.NewReader(stringField(req, "html")))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid html: %v", err)
		}
	case hasField(req, "text"):
		doc = document.FromText(stringField(req, "text"))
	case s.opts.LoadDocument != nil:
		doc, err = s.opts.LoadDocument()
		if err != nil {
			return nil, status.Errorf(codes.Unavailable, "failed to load document: %v", err)
		}
	default:
		return nil, status.Error(codes.FailedPrecondition, "no document source configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Reload")

	st, rerr := s.reload(doc)
	return statsStruct(st, rerr)
}

// ========== Health & Status ==========

func (s *Server) Health(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make(map[string]any, len(s.opCounts))
	for k, v := range s.opCounts {
		ops[k] = v
	}
	st := s.ann.Stats()
	return newStruct(map[string]any{
		"healthy":        true,
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"annotations":    st.Annotations,
		"indexed":        st.Indexed,
		"outdated":       st.Outdated,
		"operations":     ops,
	})
}

// ========== Helpers ==========

func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateID):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrEmptyID):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Errorf(codes.Internal, "store failure: %v", err)
	}
}

func statsStruct(st annotator.Stats, err error) (*structpb.Struct, error) {
	m := map[string]any{
		"annotations": st.Annotations,
		"indexed":     st.Indexed,
		"rects":       st.Rects,
		"outdated":    st.Outdated,
	}
	if err != nil {
		m["warning"] = err.Error()
	}
	return newStruct(m)
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func rectValue(r geom.Rect) map[string]any {
	return map[string]any{
		"x":      r.X,
		"y":      r.Y,
		"width":  r.Width,
		"height": r.Height,
	}
}

func rectList(rects []geom.Rect) []any {
	out := make([]any, len(rects))
	for i, r := range rects {
		out[i] = rectValue(r)
	}
	return out
}

func hasField(s *structpb.Struct, name string) bool {
	_, ok := s.GetFields()[name]
	return ok
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func boolField(s *structpb.Struct, name string) bool {
	return s.GetFields()[name].GetBoolValue()
}

func numberField(s *structpb.Struct, name string) (float64, bool) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, false
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false
	}
	return v.GetNumberValue(), true
}
