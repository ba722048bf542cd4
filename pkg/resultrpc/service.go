package resultrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/qtcstream/qtcstream/pkg/types"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "qtcstream.v1.ResultService"

	publishMethod = "/" + ServiceName + "/Publish"
)

// ResultServiceServer is implemented by the collector.
type ResultServiceServer interface {
	Publish(context.Context, *types.Batch) (*types.Ack, error)
}

// UnimplementedResultServiceServer can be embedded to satisfy the interface.
type UnimplementedResultServiceServer struct{}

func (UnimplementedResultServiceServer) Publish(context.Context, *types.Batch) (*types.Ack, error) {
	return nil, status.Error(codes.Unimplemented, "method Publish not implemented")
}

// RegisterResultServiceServer registers srv on s.
func RegisterResultServiceServer(s grpc.ServiceRegistrar, srv ResultServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qtcstream/v1/result.proto",
}

func publishHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.Batch)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultServiceServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: publishMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ResultServiceServer).Publish(ctx, req.(*types.Batch))
	}
	return interceptor(ctx, in, info, handler)
}

// ResultServiceClient calls ResultService over an established connection.
type ResultServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewResultServiceClient wraps cc.
func NewResultServiceClient(cc grpc.ClientConnInterface) *ResultServiceClient {
	return &ResultServiceClient{cc: cc}
}

// Publish sends one batch and returns the collector's acknowledgement.
func (c *ResultServiceClient) Publish(ctx context.Context, in *types.Batch, opts ...grpc.CallOption) (*types.Ack, error) {
	out := new(types.Ack)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, publishMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
