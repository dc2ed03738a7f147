// internal/daily/daily.go
//
// Daily deal: every player gets the same board layout on a given UTC date.
// The layout seed is HMAC-SHA256(salt, YYYY-MM-DD), so it cannot be guessed
// ahead of time without the server's salt.

package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed returns the shuffle seed for the date of t.
func Seed(t time.Time, salt string) uint64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(t)))
	sum := h.Sum(nil)
	// first 8 bytes are plenty for a PCG seed
	return binary.BigEndian.Uint64(sum[:8])
}
