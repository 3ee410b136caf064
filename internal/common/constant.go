package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on authenticated calls.
const AccessTokenHeaderName = "access_token"

// TokenTypeBearer is reported as the token type of every issued pair.
const TokenTypeBearer = "Bearer"
