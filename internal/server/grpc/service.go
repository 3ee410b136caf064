package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AuthServer is the server side of gophauth.v1.AuthService.
type AuthServer interface {
	Signup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	FederatedLogin(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Refresh(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Ping(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AuthServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes gophauth.v1.AuthService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Signup", Handler: unary(api.MethodSignup, AuthServer.Signup)},
		{MethodName: "Login", Handler: unary(api.MethodLogin, AuthServer.Login)},
		{MethodName: "FederatedLogin", Handler: unary(api.MethodFederatedLogin, AuthServer.FederatedLogin)},
		{MethodName: "Refresh", Handler: unary(api.MethodRefresh, AuthServer.Refresh)},
		{MethodName: "Logout", Handler: unary(api.MethodLogout, AuthServer.Logout)},
		{MethodName: "ChangePassword", Handler: unary(api.MethodChangePassword, AuthServer.ChangePassword)},
		{MethodName: "Ping", Handler: unary(api.MethodPing, AuthServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophauth/v1/auth.proto",
}
