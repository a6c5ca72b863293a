package gameserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Requests and responses travel as google.protobuf.Struct; messages.go maps
// them onto typed Go structs.

const ServiceName = "turnsim.game.v1.GameService"

const (
	GameService_NewGame_FullMethodName      = "/" + ServiceName + "/NewGame"
	GameService_GameUpdates_FullMethodName  = "/" + ServiceName + "/GameUpdates"
	GameService_SubmitAction_FullMethodName = "/" + ServiceName + "/SubmitAction"
	GameService_WatchGame_FullMethodName    = "/" + ServiceName + "/WatchGame"
)

// GameServiceServer is the server API for GameService.
type GameServiceServer interface {
	NewGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GameUpdates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchGame(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedGameServiceServer can be embedded for forward compatibility.
type UnimplementedGameServiceServer struct{}

func (UnimplementedGameServiceServer) NewGame(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method NewGame not implemented")
}
func (UnimplementedGameServiceServer) GameUpdates(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GameUpdates not implemented")
}
func (UnimplementedGameServiceServer) SubmitAction(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitAction not implemented")
}
func (UnimplementedGameServiceServer) WatchGame(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method WatchGame not implemented")
}

// RegisterGameServiceServer registers srv on s.
func RegisterGameServiceServer(s grpc.ServiceRegistrar, srv GameServiceServer) {
	s.RegisterService(&GameService_ServiceDesc, srv)
}

func _GameService_NewGame_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameServiceServer).NewGame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GameService_NewGame_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameServiceServer).NewGame(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _GameService_GameUpdates_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameServiceServer).GameUpdates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GameService_GameUpdates_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameServiceServer).GameUpdates(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _GameService_SubmitAction_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameServiceServer).SubmitAction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GameService_SubmitAction_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameServiceServer).SubmitAction(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _GameService_WatchGame_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(GameServiceServer).WatchGame(m, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// GameService_ServiceDesc is the grpc.ServiceDesc for GameService.
var GameService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "NewGame", Handler: _GameService_NewGame_Handler},
		{MethodName: "GameUpdates", Handler: _GameService_GameUpdates_Handler},
		{MethodName: "SubmitAction", Handler: _GameService_SubmitAction_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchGame", Handler: _GameService_WatchGame_Handler, ServerStreams: true},
	},
	Metadata: "turnsim/game/v1/game.proto",
}

// GameServiceClient is the client API for GameService.
type GameServiceClient interface {
	NewGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GameUpdates(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SubmitAction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	WatchGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type gameServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewGameServiceClient(cc grpc.ClientConnInterface) GameServiceClient {
	return &gameServiceClient{cc}
}

func (c *gameServiceClient) NewGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GameService_NewGame_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gameServiceClient) GameUpdates(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GameService_GameUpdates_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gameServiceClient) SubmitAction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GameService_SubmitAction_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gameServiceClient) WatchGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &GameService_ServiceDesc.Streams[0], GameService_WatchGame_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
