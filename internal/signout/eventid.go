package signout

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Crockford base32, matching the alphabet used elsewhere for row ids.
const discriminatorAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const discriminatorLength = 4

// NewEventID derives a human-legible event identifier from the creation
// time: SO-YYYYMMDD-HHMMSS plus a short random discriminator. Collisions
// within the same second are overwhelmingly unlikely (~1 in 2^20) but not
// impossible; callers must not treat the id as globally unique beyond that.
func NewEventID(t time.Time) string {
	return fmt.Sprintf("SO-%s-%s", t.UTC().Format("20060102-150405"), discriminator())
}

func discriminator() string {
	var raw [discriminatorLength]byte
	_, _ = rand.Read(raw[:])
	out := make([]byte, discriminatorLength)
	for i, b := range raw {
		out[i] = discriminatorAlphabet[int(b)%len(discriminatorAlphabet)]
	}
	return string(out)
}
