// Package grpcserver exposes the view service over gRPC. Messages are
// protobuf well-known types, so the service needs no generated code.
package grpcserver

import (
	"context"
	"encoding/base64"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"weakgate/infra/store"
	"weakgate/service"
)

const ServiceName = "weakgate.v1.Views"

// ViewsServer is the server API of weakgate.v1.Views.
type ViewsServer interface {
	// Open leases a new view and returns its ID.
	Open(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	// Close drops a lease taken with Open.
	Close(context.Context, *wrapperspb.UInt64Value) (*emptypb.Empty, error)
	// Get reads {"view": <id>, "key": <string>} through a view. Without
	// "view" it reads the latest value.
	Get(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	// Scan lists {"view": <id>, "prefix": <string>} as
	// {"items": [{"key": <string>, "value": <base64>}]}.
	Scan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Put writes {"key": <string>, "value": <base64>}.
	Put(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// Delete removes a key.
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// Stats reports registry counters.
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ViewsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: unary("Open", ViewsServer.Open)},
		{MethodName: "Close", Handler: unary("Close", ViewsServer.Close)},
		{MethodName: "Get", Handler: unary("Get", ViewsServer.Get)},
		{MethodName: "Scan", Handler: unary("Scan", ViewsServer.Scan)},
		{MethodName: "Put", Handler: unary("Put", ViewsServer.Put)},
		{MethodName: "Delete", Handler: unary("Delete", ViewsServer.Delete)},
		{MethodName: "Stats", Handler: unary("Stats", ViewsServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "weakgate/v1/views.proto",
}

func Register(s grpc.ServiceRegistrar, srv ViewsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](
	name string,
	call func(ViewsServer, context.Context, *Req) (*Resp, error),
) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ViewsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ViewsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server adapts ViewService to gRPC.
type Server struct {
	svc *service.ViewService
}

func NewServer(svc *service.ViewService) *Server {
	return &Server{svc: svc}
}

func (s *Server) Open(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	id, err := s.svc.Lease()
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt64(id), nil
}

func (s *Server) Close(ctx context.Context, req *wrapperspb.UInt64Value) (*emptypb.Empty, error) {
	if err := s.svc.Close(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Get(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	key, err := stringField(req, "key")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var val []byte
	if _, ok := req.GetFields()["view"]; ok {
		id, perr := viewField(req)
		if perr != nil {
			return nil, status.Error(codes.InvalidArgument, perr.Error())
		}
		val, err = s.svc.Get(id, []byte(key), nil)
	} else {
		val, err = s.svc.Latest([]byte(key), nil)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(val), nil
}

func (s *Server) Scan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := viewField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	prefix := req.GetFields()["prefix"].GetStringValue()

	items := []interface{}{}
	err = s.svc.Scan(id, []byte(prefix), func(key, value []byte) error {
		items = append(items, map[string]interface{}{
			"key":   string(key),
			"value": base64.StdEncoding.EncodeToString(value),
		})
		return ctx.Err()
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, toStatus(err)
	}

	out, err := structpb.NewStruct(map[string]interface{}{"items": items})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Put(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	key, err := stringField(req, "key")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	value, err := base64.StdEncoding.DecodeString(req.GetFields()["value"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "value is not base64")
	}
	if err := s.svc.Put([]byte(key), value); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "missing key")
	}
	if err := s.svc.Delete([]byte(req.GetValue())); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.svc.Stats()
	views := make([]interface{}, len(st.Views))
	for i, id := range st.Views {
		views[i] = float64(id)
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"live":    st.Live,
		"leased":  st.Leased,
		"retired": st.Retired,
		"last_id": float64(st.LastID),
		"views":   views,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// maxExactID is the largest view ID a JSON number carries exactly.
const maxExactID = 1 << 53

func viewField(req *structpb.Struct) (uint64, error) {
	view, ok := req.GetFields()["view"]
	if !ok {
		return 0, errors.New("missing field view")
	}
	n := view.GetNumberValue()
	if n <= 0 || n > maxExactID || n != math.Trunc(n) {
		return 0, errors.Errorf("invalid view id %v", view.AsInterface())
	}
	return uint64(n), nil
}

func stringField(req *structpb.Struct, name string) (string, error) {
	v := req.GetFields()[name].GetStringValue()
	if v == "" {
		return "", errors.Errorf("missing field %s", name)
	}
	return v, nil
}

func toStatus(err error) error {
	switch errors.Cause(err) {
	case service.ErrViewNotFound:
		return status.Error(codes.NotFound, err.Error())
	case service.ErrViewGone:
		return status.Error(codes.FailedPrecondition, err.Error())
	case store.ErrNotFound:
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
