package marketdata

import "errors"

// errNoFetcher is returned internally when a key's source has no
// registered Fetcher; it surfaces to callers as an Absent result.
var errNoFetcher = errors.New("marketdata: no fetcher registered for source")

// ErrUpstreamUnavailable is the sentinel spec.md §7 names for a fetch that
// failed after its timeout. Providers should wrap their errors with it so
// callers (and tests) can distinguish transient upstream failure from a
// programming error.
var ErrUpstreamUnavailable = errors.New("marketdata: upstream unavailable")
