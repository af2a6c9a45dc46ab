// Package provider holds errors shared by the external data providers.
package provider

import "errors"

// ErrRateLimited is returned when a provider answers 429. Callers are
// expected to stop calling that provider for a backoff window instead of
// retrying immediately.
var ErrRateLimited = errors.New("provider rate limited")
