// Package client contains client-side building blocks for GophAuth.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) to talk
//     to the GophAuth backend: Signup, Login, FederatedLogin, Refresh, Logout,
//     ChangePassword and Ping.
//  2. A concrete gRPC implementation (see GRPCClient) that manages a
//     connection, injects the access token via an interceptor, transparently
//     refreshes an expired access token once, and maps gRPC status codes to
//     sentinel errors.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations) for
//     the CLI, wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrAlreadyExists,
// ErrPermissionDenied, ErrInvalidArgument.
//
// See Also
//
//   - Interface:  Client
//   - gRPC impl:  GRPCClient
//   - DB helpers: InitDatabase, RunMigrations
package client
