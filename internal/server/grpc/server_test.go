package grpc

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/api"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/identity"
	"github.com/dmitrijs2005/gophauth/internal/server/keys"
	"github.com/dmitrijs2005/gophauth/internal/server/password"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Discard(), &fakeAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Discard(), &fakeAuth{})

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

// startBufconn serves a memory-backed AuthService and returns a client
// connection to it.
func startBufconn(t *testing.T) *grpc.ClientConn {
	t.Helper()

	key, err := keys.NewSigningKey([]byte(strings.Repeat("s", 32)))
	require.NoError(t, err)
	codec, err := auth.NewCodec(key, 15*time.Minute, 24*time.Hour, 30*time.Second, time.Now)
	require.NoError(t, err)
	hasher, err := password.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	mgr := memory.NewManager(time.Now)

	svc := services.NewAuthService(services.Deps{
		Tx:       mgr,
		Repos:    mgr,
		Hasher:   hasher,
		Identity: identity.Disabled{},
		Codec:    codec,
		Logger:   logging.Discard(),
	})

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewGRPCServer("bufnet", logging.Discard(), svc).Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := conn.Invoke(ctx, method, in, out)
	return out, err
}

func TestEndToEnd_AuthFlow(t *testing.T) {
	conn := startBufconn(t)
	ctx := context.Background()

	creds := map[string]string{api.FieldEmail: "ann@example.com", api.FieldPassword: "correct horse"}

	resp, err := invoke(ctx, conn, api.MethodSignup, api.Strings(creds))
	require.NoError(t, err)
	id, err := api.AccountID(resp)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = invoke(ctx, conn, api.MethodSignup, api.Strings(creds))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = invoke(ctx, conn, api.MethodLogin, api.Strings(map[string]string{
		api.FieldEmail: "ann@example.com", api.FieldPassword: "wrong",
	}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	pair, err := invoke(ctx, conn, api.MethodLogin, api.Strings(creds))
	require.NoError(t, err)
	assert.Equal(t, common.TokenTypeBearer, api.String(pair, api.FieldTokenType))
	assert.Equal(t, int64(900), api.Int64(pair, api.FieldExpiresIn))

	rotated, err := invoke(ctx, conn, api.MethodRefresh, api.Strings(map[string]string{
		api.FieldRefreshToken: api.String(pair, api.FieldRefreshToken),
	}))
	require.NoError(t, err)

	// the old refresh token no longer works
	_, err = invoke(ctx, conn, api.MethodRefresh, api.Strings(map[string]string{
		api.FieldRefreshToken: api.String(pair, api.FieldRefreshToken),
	}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// logout requires the access token
	_, err = invoke(ctx, conn, api.MethodLogout, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	authed := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, api.String(rotated, api.FieldAccessToken))
	_, err = invoke(authed, conn, api.MethodLogout, &structpb.Struct{})
	require.NoError(t, err)

	_, err = invoke(ctx, conn, api.MethodRefresh, api.Strings(map[string]string{
		api.FieldRefreshToken: api.String(rotated, api.FieldRefreshToken),
	}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestEndToEnd_FederatedDisabled(t *testing.T) {
	conn := startBufconn(t)

	_, err := invoke(context.Background(), conn, api.MethodFederatedLogin, api.Strings(map[string]string{
		api.FieldAssertion: "anything",
	}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestEndToEnd_PingAndHealth(t *testing.T) {
	conn := startBufconn(t)
	ctx := context.Background()

	resp, err := invoke(ctx, conn, api.MethodPing, &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, "OK", api.String(resp, api.FieldStatus))

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())
}
