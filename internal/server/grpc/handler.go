package grpc

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/gophauth/internal/api"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Signup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	id, err := s.auth.Signup(ctx,
		api.String(req, api.FieldEmail),
		api.String(req, api.FieldPassword),
		api.String(req, api.FieldDisplayName))
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info(ctx, "Signed up", "account_id", id)
	return api.Strings(map[string]string{api.FieldAccountID: strconv.FormatInt(id, 10)}), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	pair, err := s.auth.Login(ctx, api.String(req, api.FieldEmail), api.String(req, api.FieldPassword))
	if err != nil {
		return nil, toStatus(err)
	}

	return pairResponse(pair), nil
}

func (s *GRPCServer) FederatedLogin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	pair, err := s.auth.FederatedLogin(ctx, api.String(req, api.FieldAssertion))
	if err != nil {
		return nil, toStatus(err)
	}

	return pairResponse(pair), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	pair, err := s.auth.Refresh(ctx, api.String(req, api.FieldRefreshToken))
	if err != nil {
		return nil, toStatus(err)
	}

	return pairResponse(pair), nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	id, ok := AccountIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := s.auth.Logout(ctx, id); err != nil {
		return nil, toStatus(err)
	}

	return &structpb.Struct{}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	id, ok := AccountIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	err := s.auth.ChangePassword(ctx, id,
		api.String(req, api.FieldCurrentPassword),
		api.String(req, api.FieldNewPassword))
	if err != nil {
		return nil, toStatus(err)
	}

	return &structpb.Struct{}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	return api.Strings(map[string]string{api.FieldStatus: "OK"}), nil

}

func pairResponse(p *models.TokenPair) *structpb.Struct {
	out := api.Strings(map[string]string{
		api.FieldAccessToken:  p.AccessToken,
		api.FieldRefreshToken: p.RefreshToken,
		api.FieldTokenType:    p.TokenType,
	})
	out.Fields[api.FieldExpiresIn] = structpb.NewNumberValue(float64(p.AccessExpiresIn))
	return out
}

var unauthenticated = []error{
	common.ErrInvalidCredentials,
	common.ErrInvalidIdentityToken,
	common.ErrInvalidToken,
	common.ErrUnknownToken,
	common.ErrExpiredToken,
	common.ErrTokenExpired,
}

// toStatus maps service errors to gRPC codes. Anything unrecognised is
// reported as Internal without detail; the service has already logged it.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrDuplicateIdentity):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrInactiveAccount):
		return status.Error(codes.PermissionDenied, err.Error())
	}
	for _, target := range unauthenticated {
		if errors.Is(err, target) {
			return status.Error(codes.Unauthenticated, target.Error())
		}
	}
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}
