package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/api"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const callTimeout = 12 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        grpc.ClientConnInterface
	closer      io.Closer

	mu     sync.Mutex
	tokens Tokens
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

// accessTokenInterceptor attaches the current access token. When the server
// reports it expired, the interceptor trades the refresh token for a new pair
// and retries the call once.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	current := s.Tokens()

	err := invoker(withAccessToken(ctx, current.AccessToken), method, req, reply, cc, opts...)
	if err == nil || method == api.MethodRefresh {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	if st.Code() != codes.Unauthenticated {
		return err
	}
	if st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	if current.RefreshToken == "" {
		return err
	}

	refreshed := new(structpb.Struct)
	refreshReq := api.Strings(map[string]string{api.FieldRefreshToken: current.RefreshToken})
	if err := invoker(ctx, api.MethodRefresh, refreshReq, refreshed, cc, opts...); err != nil {
		return err
	}

	s.SetTokens(tokensFrom(refreshed))

	// TOKENS REFRESHED, creating context with new Access Token
	return invoker(withAccessToken(ctx, s.Tokens().AccessToken), method, req, reply, cc, opts...)
}

// NewGRPCClient connects to endpointURL. Extra dial options are appended
// after the defaults (insecure transport, token interceptor).
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.closer = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SetTokens replaces the pair used on authenticated calls.
func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

func (s *GRPCClient) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *GRPCClient) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func (s *GRPCClient) Signup(ctx context.Context, email string, password []byte, displayName string) (int64, error) {

	req := api.Strings(map[string]string{
		api.FieldEmail:       email,
		api.FieldPassword:    string(password),
		api.FieldDisplayName: displayName,
	})

	resp, err := s.call(ctx, api.MethodSignup, req)
	if err != nil {
		return 0, err
	}

	return api.AccountID(resp)
}

func (s *GRPCClient) Login(ctx context.Context, email string, password []byte) (Tokens, error) {

	req := api.Strings(map[string]string{api.FieldEmail: email, api.FieldPassword: string(password)})

	return s.issue(ctx, api.MethodLogin, req)
}

func (s *GRPCClient) FederatedLogin(ctx context.Context, assertion string) (Tokens, error) {

	req := api.Strings(map[string]string{api.FieldAssertion: assertion})

	return s.issue(ctx, api.MethodFederatedLogin, req)
}

// Refresh trades the held refresh token for a new pair.
func (s *GRPCClient) Refresh(ctx context.Context) (Tokens, error) {

	rt := s.Tokens().RefreshToken
	if rt == "" {
		return Tokens{}, ErrNotLoggedIn
	}

	return s.issue(ctx, api.MethodRefresh, api.Strings(map[string]string{api.FieldRefreshToken: rt}))
}

func (s *GRPCClient) issue(ctx context.Context, method string, req *structpb.Struct) (Tokens, error) {
	resp, err := s.call(ctx, method, req)
	if err != nil {
		return Tokens{}, err
	}

	t := tokensFrom(resp)
	s.SetTokens(t)
	return t, nil
}

// Logout ends the server session. The held tokens are dropped either way.
func (s *GRPCClient) Logout(ctx context.Context) error {

	_, err := s.call(ctx, api.MethodLogout, &structpb.Struct{})
	s.SetTokens(Tokens{})
	return err
}

func (s *GRPCClient) ChangePassword(ctx context.Context, current, next []byte) error {

	req := api.Strings(map[string]string{
		api.FieldCurrentPassword: string(current),
		api.FieldNewPassword:     string(next),
	})

	if _, err := s.call(ctx, api.MethodChangePassword, req); err != nil {
		return err
	}

	// the server ended the session along with the old password
	s.SetTokens(Tokens{})
	return nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.call(ctx, api.MethodPing, &structpb.Struct{})
	if err != nil {
		return err
	}

	if api.String(resp, api.FieldStatus) != "OK" {
		return ErrUnavailable
	}

	return nil

}

func tokensFrom(resp *structpb.Struct) Tokens {
	return Tokens{
		AccessToken:  api.String(resp, api.FieldAccessToken),
		RefreshToken: api.String(resp, api.FieldRefreshToken),
		ExpiresIn:    api.Int64(resp, api.FieldExpiresIn),
	}
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return ErrPermissionDenied
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
