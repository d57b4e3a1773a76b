package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "receiptsocr.v1.WorkerService"

const (
	methodProcessBatch      = "/" + ServiceName + "/ProcessBatch"
	methodQueueStats        = "/" + ServiceName + "/QueueStats"
	methodEnqueue           = "/" + ServiceName + "/Enqueue"
	methodExportDeadLetters = "/" + ServiceName + "/ExportDeadLetters"
)

// WorkerServer is the server API for the worker service. Messages are
// well-known protobuf types so no generated code is needed.
type WorkerServer interface {
	ProcessBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueueStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Enqueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportDeadLetters(context.Context, *wrapperspb.Int32Value) (*wrapperspb.BytesValue, error)
}

// RegisterWorkerServer registers srv on s.
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessBatch", Handler: processBatchHandler},
		{MethodName: "QueueStats", Handler: queueStatsHandler},
		{MethodName: "Enqueue", Handler: enqueueHandler},
		{MethodName: "ExportDeadLetters", Handler: exportDeadLettersHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func processBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).ProcessBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodProcessBatch}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).ProcessBatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func queueStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).QueueStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodQueueStats}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).QueueStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func enqueueHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Enqueue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodEnqueue}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Enqueue(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func exportDeadLettersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).ExportDeadLetters(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExportDeadLetters}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).ExportDeadLetters(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// WorkerClient calls a remote WorkerServer.
type WorkerClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerClient(cc grpc.ClientConnInterface) *WorkerClient {
	return &WorkerClient{cc: cc}
}

func (c *WorkerClient) ProcessBatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodProcessBatch, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorkerClient) QueueStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodQueueStats, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorkerClient) Enqueue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodEnqueue, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorkerClient) ExportDeadLetters(ctx context.Context, limit int32, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodExportDeadLetters, wrapperspb.Int32(limit), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
