package auth

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates that presented credentials failed
	// validation.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates that a bearer token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidAPIKey indicates that an API key is unknown.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrUnknownUser indicates that a basic-auth user is not configured.
	ErrUnknownUser = errors.New("unknown user")

	// ErrNoVerificationKey indicates that bearer tokens were presented but
	// no JWT key is configured.
	ErrNoVerificationKey = errors.New("no JWT verification key configured")
)
