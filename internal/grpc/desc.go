package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rewind.v1.RewindControl"

// RewindControlServer is the server API of the control service.
type RewindControlServer interface {
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Spawn(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Despawn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DumpHistory(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchStatus(*emptypb.Empty, StatusStream) error
}

// StatusStream is the server side of WatchStatus.
type StatusStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type statusStream struct {
	grpclib.ServerStream
}

func (s *statusStream) Send(frame *structpb.Struct) error { return s.ServerStream.SendMsg(frame) }

// ServiceDesc describes RewindControl using well-known message types, so no generated stubs are needed.
var ServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RewindControlServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "Execute", Handler: unaryHandler("Execute", newStruct, RewindControlServer.Execute)},
		{MethodName: "Status", Handler: unaryHandler("Status", newEmpty, RewindControlServer.Status)},
		{MethodName: "Spawn", Handler: unaryHandler("Spawn", newEmpty, RewindControlServer.Spawn)},
		{MethodName: "Despawn", Handler: unaryHandler("Despawn", newStruct, RewindControlServer.Despawn)},
		{MethodName: "DumpHistory", Handler: unaryHandler("DumpHistory", newEmpty, RewindControlServer.DumpHistory)},
	},
	Streams: []grpclib.StreamDesc{
		{StreamName: "WatchStatus", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "rewind/v1/control.proto",
}

// Register attaches the control service to server.
func Register(server grpclib.ServiceRegistrar, service RewindControlServer) {
	server.RegisterService(&ServiceDesc, service)
}

// FullMethod returns the wire name of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

func unaryHandler[T proto.Message](method string, newReq func() T, call func(RewindControlServer, context.Context, T) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpclib.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(RewindControlServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(T))
		})
	}
}

func watchStatusHandler(srv any, stream grpclib.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RewindControlServer).WatchStatus(in, &statusStream{ServerStream: stream})
}
