// Package api names the gophauth.v1.AuthService wire surface shared by the
// server and the client. Requests and responses are google.protobuf.Struct
// values keyed by the field names below.
package api

import (
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gophauth.v1.AuthService"

const (
	MethodSignup         = "/" + ServiceName + "/Signup"
	MethodLogin          = "/" + ServiceName + "/Login"
	MethodFederatedLogin = "/" + ServiceName + "/FederatedLogin"
	MethodRefresh        = "/" + ServiceName + "/Refresh"
	MethodLogout         = "/" + ServiceName + "/Logout"
	MethodChangePassword = "/" + ServiceName + "/ChangePassword"
	MethodPing           = "/" + ServiceName + "/Ping"
)

// Field names.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldAssertion       = "assertion"
	FieldRefreshToken    = "refresh_token"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldAccountID       = "account_id"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldStatus          = "status"
)

// String returns the string field key of s, or "" when absent or not a
// string.
func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Int64 returns the numeric field key of s truncated to int64.
func Int64(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

// AccountID reads the account id, which travels as a decimal string so
// large ids survive the float64 number encoding.
func AccountID(s *structpb.Struct) (int64, error) {
	return strconv.ParseInt(String(s, FieldAccountID), 10, 64)
}

// Strings builds a Struct from string fields only. It cannot fail.
func Strings(kv map[string]string) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(kv))
	for k, v := range kv {
		fields[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: fields}
}
