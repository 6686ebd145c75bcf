package auth

import "errors"

// Sentinel errors for token handling.
var (
	// ErrTokenInvalid indicates a token that failed signature, expiry or
	// claim validation.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrInvalidRole indicates a role name that is not one of the known roles.
	ErrInvalidRole = errors.New("invalid role")

	// ErrSecretRequired indicates signing was attempted without a secret.
	ErrSecretRequired = errors.New("jwt secret is required")
)
