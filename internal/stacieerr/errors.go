// Package stacieerr defines the sentinel error taxonomy shared by the STACIE
// key-derivation and realm-encryption components.
//
// Callers should match on these with errors.Is; wrapped errors carry the
// offending field name but never secret material.
package stacieerr

import "errors"

var (
	// ErrInvalidLength indicates a length precondition failed (salt, shard,
	// key, nonce, plaintext, envelope).
	ErrInvalidLength = errors.New("stacie: invalid length")

	// ErrInvalidArgument indicates a non-length precondition failed (serial
	// out of range, empty realm, malformed base64url).
	ErrInvalidArgument = errors.New("stacie: invalid argument")

	// ErrInvalidPadding indicates an envelope's trailing pad bytes disagree,
	// or its length header is inconsistent with its total length.
	ErrInvalidPadding = errors.New("stacie: invalid padding")

	// ErrAuthenticationFailure indicates AES-GCM tag verification failed.
	ErrAuthenticationFailure = errors.New("stacie: authentication failure")

	// ErrRandomSourceUnavailable indicates a secure random draw failed.
	ErrRandomSourceUnavailable = errors.New("stacie: secure random source unavailable")
)
