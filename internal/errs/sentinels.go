// Package errs holds the registry's error vocabulary: storage sentinels shared by every layer
// and the EPP result codes returned to registrars.
package errs

import "errors"

// Storage and session sentinels. Flows wrap them; the transport maps them to status codes.
var (
	// ErrNotFound indicates the requested domain, billing event, poll message or token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates the domain row changed after it was read. The store retries the
	// whole transaction on it.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates a bad password or an invalid access token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates login attempts for a registrar and address are temporarily blocked.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a registrar ID or live domain name is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNegativeCost indicates a fee schedule or customized fee produced a negative amount.
	ErrNegativeCost = errors.New("negative cost")
)
