// Package ids issues the identifiers used as storage keys.
package ids

import "github.com/oklog/ulid/v2"

// New returns a ULID string. Lexical order follows creation time, which
// keeps index inserts append-mostly. The shared entropy source is
// monotonic, so ids minted in the same millisecond still sort by call
// order.
func New() string {
	return ulid.Make().String()
}
