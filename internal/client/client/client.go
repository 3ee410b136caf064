package client

import (
	"context"
)

// Tokens is the pair the server hands out on login and refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type Client interface {
	Close() error
	Signup(ctx context.Context, email string, password []byte, displayName string) (int64, error)
	Login(ctx context.Context, email string, password []byte) (Tokens, error)
	FederatedLogin(ctx context.Context, assertion string) (Tokens, error)
	Refresh(ctx context.Context) (Tokens, error)
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, current, next []byte) error
	Ping(ctx context.Context) error
	SetTokens(t Tokens)
	Tokens() Tokens
}
