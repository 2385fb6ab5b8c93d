// Package grpc exposes the dispatcher as the clautod.v1.Clautod service. The
// service has one unary method per route; requests and responses are
// google.protobuf.Struct values, so no generated code is needed.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/dispatch"
)

// Dispatcher runs a request against an already resolved route.
type Dispatcher interface {
	Call(ctx context.Context, route dispatch.Route, req dispatch.Request) (dispatch.Response, error)
}

type clautodServer interface {
	handle(ctx context.Context, route dispatch.Route, in *structpb.Struct) (*structpb.Struct, error)
}

type GRPCServer struct {
	address    string
	dispatcher Dispatcher
	logger     logging.Logger
	options    []grpc.ServerOption
}

// NewGRPCServer builds a server listening on a. Extra options, such as TLS
// credentials, are passed to grpc.NewServer.
func NewGRPCServer(a string, l logging.Logger, d Dispatcher, opts ...grpc.ServerOption) *GRPCServer {
	return &GRPCServer{
		address:    a,
		dispatcher: d,
		logger:     l.With("module", "grpc_server"),
		options:    opts,
	}
}

// ServiceDesc describes the service built from the route table.
func ServiceDesc() *grpc.ServiceDesc {
	routes := dispatch.Routes()
	methods := make([]grpc.MethodDesc, 0, len(routes))
	for _, route := range routes {
		methods = append(methods, grpc.MethodDesc{
			MethodName: route.Name,
			Handler:    methodHandler(route),
		})
	}
	return &grpc.ServiceDesc{
		ServiceName: common.GRPCServiceName,
		HandlerType: (*clautodServer)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "clautod/v1/clautod.proto",
	}
}

func methodHandler(route dispatch.Route) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(clautodServer)
		if interceptor == nil {
			return s.handle(ctx, route, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: common.GRPCMethod(route.Name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return s.handle(ctx, route, req.(*structpb.Struct))
		})
	}
}

// NewServer creates the grpc.Server with interceptors and registers the
// service on it.
func (s *GRPCServer) NewServer() *grpc.Server {
	opts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.loggingInterceptor),
	}, s.options...)

	srv := grpc.NewServer(opts...)
	srv.RegisterService(ServiceDesc(), s)
	return srv
}

// Run serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
