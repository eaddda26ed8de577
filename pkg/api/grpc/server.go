// Package grpcapi serves the parse service over gRPC. Requests and responses
// are google.protobuf.Struct messages carrying the same fields as the JSON
// API, so any gRPC client can call it without generated stubs.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/config"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/store"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uriparser"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uripath"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "odata.uri.v1.ParseService"

// Full method names, for clients calling through grpc.ClientConn.Invoke.
const (
	ParseMethod      = "/" + ServiceName + "/Parse"
	ListModelsMethod = "/" + ServiceName + "/ListModels"
)

// ParseServiceServer is the server side of the parse service.
type ParseServiceServer interface {
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListModels(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ParseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: unaryHandler(ParseMethod, ParseServiceServer.Parse)},
		{MethodName: "ListModels", Handler: unaryHandler(ListModelsMethod, ParseServiceServer.ListModels)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "odata/uri/v1/parse_service.proto",
}

func unaryHandler(method string, call func(ParseServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ParseServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ParseServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Option configures a Server.
type Option func(*Server)

// WithSettings sets the parser settings used for every request.
func WithSettings(s *config.Settings) Option {
	return func(srv *Server) {
		if s != nil {
			srv.settings = s
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// Server implements ParseServiceServer over a model store.
type Server struct {
	store    *store.Store
	settings *config.Settings
	logger   *slog.Logger
	grpc     *grpc.Server
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store, opts ...Option) *Server {
	srv := &Server{store: s, settings: config.Default(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(srv)
	}
	srv.logger = srv.logger.With("component", "grpcapi")

	gs := grpc.NewServer(grpc.UnaryInterceptor(srv.logCalls))
	gs.RegisterService(&serviceDesc, srv)
	srv.grpc = gs
	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "elapsed", time.Since(start))
	return resp, err
}

// Parse parses the request URI in field "uri" against model "model". An
// optional "serviceRoot" makes the URI absolute.
func (s *Server) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := fields["model"].GetStringValue()
	uri := fields["uri"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "model is required")
	}
	if uri == "" {
		return nil, status.Error(codes.InvalidArgument, "uri is required")
	}
	e, err := s.store.Get(name)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	p, err := uriparser.New(e.Model, fields["serviceRoot"].GetStringValue(), uri,
		uriparser.WithSettings(s.settings), uriparser.WithLogger(s.logger))
	if err != nil {
		return nil, parseStatus(err)
	}
	u, err := p.Parse()
	if err != nil {
		return nil, parseStatus(err)
	}

	clauses := make([]any, 0)
	for _, c := range u.Clauses() {
		clauses = append(clauses, map[string]any{"name": c.Name, "text": c.Text})
	}
	out, err := structpb.NewStruct(map[string]any{
		"model":    e.Name,
		"revision": e.RevisionID,
		"segments": segments(u.Path),
		"clauses":  clauses,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ListModels lists the stored models.
func (s *Server) ListModels(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	entries := s.store.List()
	models := make([]any, len(entries))
	for i, e := range entries {
		models[i] = map[string]any{
			"name":       e.Name,
			"namespace":  e.Namespace,
			"revisionId": e.RevisionID,
			"updateTime": e.UpdateTime.Format(time.RFC3339),
		}
	}
	out, err := structpb.NewStruct(map[string]any{"models": models})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func segments(path *uripath.Path) []any {
	out := make([]any, 0)
	if path == nil {
		return out
	}
	for _, seg := range path.Segments {
		m := map[string]any{
			"kind":       seg.Kind.String(),
			"identifier": seg.String(),
			"target":     seg.Target.String(),
			"collection": seg.Collection,
		}
		if seg.Type != nil {
			m["type"] = seg.Type.FullName()
		}
		if seg.Source != nil {
			m["navigationSource"] = seg.Source.Name
		}
		out = append(out, m)
	}
	return out
}

// parseStatus maps a parse failure to NotFound or InvalidArgument. The error
// kind and the path resolution context travel as a Struct detail.
func parseStatus(err error) error {
	code := codes.InvalidArgument
	if types.StatusOf(err) == types.CodeNotFound {
		code = codes.NotFound
	}
	st := status.New(code, err.Error())

	var pe *types.ParseError
	if !errors.As(err, &pe) {
		return st.Err()
	}
	detail := map[string]any{"kind": string(pe.Kind)}
	if pe.Kind == types.KindSyntax && pe.Position >= 0 {
		detail["position"] = pe.Position
	}
	if pe.Path != nil {
		detail["path"] = map[string]any{
			"parsed":    anyList(pe.Path.Parsed),
			"segment":   pe.Path.Segment,
			"remaining": anyList(pe.Path.Remaining),
		}
	}
	d, derr := structpb.NewStruct(detail)
	if derr != nil {
		return st.Err()
	}
	withDetail, derr := st.WithDetails(d)
	if derr != nil {
		return st.Err()
	}
	return withDetail.Err()
}

func anyList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
