package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// TrainerEngineServiceName is the fully qualified gRPC service name.
	TrainerEngineServiceName = "mirador.trainer.v1.TrainerEngine"
	// TrainerEngineTrainMethod is the full method name of Train.
	TrainerEngineTrainMethod = "/" + TrainerEngineServiceName + "/Train"
)

// TrainerEngineServer is the server API of the TrainerEngine service. Requests
// and responses are google.protobuf.Struct documents.
type TrainerEngineServer interface {
	Train(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedTrainerEngineServer can be embedded to have forward compatible implementations.
type UnimplementedTrainerEngineServer struct{}

func (UnimplementedTrainerEngineServer) Train(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Train not implemented")
}

// RegisterTrainerEngineServer registers srv on the given registrar.
func RegisterTrainerEngineServer(s grpc.ServiceRegistrar, srv TrainerEngineServer) {
	s.RegisterService(&trainerEngineServiceDesc, srv)
}

func trainerEngineTrainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrainerEngineServer).Train(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: TrainerEngineTrainMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TrainerEngineServer).Train(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var trainerEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: TrainerEngineServiceName,
	HandlerType: (*TrainerEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Train",
			Handler:    trainerEngineTrainHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/trainer/v1/trainer.proto",
}

// TrainerEngineClient is the client API of the TrainerEngine service.
type TrainerEngineClient interface {
	Train(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type trainerEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewTrainerEngineClient wraps a client connection.
func NewTrainerEngineClient(cc grpc.ClientConnInterface) TrainerEngineClient {
	return &trainerEngineClient{cc: cc}
}

func (c *trainerEngineClient) Train(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TrainerEngineTrainMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
