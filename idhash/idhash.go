// Package idhash derives stable identifiers and tags from strings.
package idhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/jxskiss/base62"
)

// ServerID returns a 32 character lowercase hex id derived from name, the
// format Jellyfin clients expect for server and user ids.
func ServerID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:16])
}

// Hash returns a base62-encoded id, based upon sha256 of string.
func Hash(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes returns a base62-encoded id, based upon sha256 of bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return base62.StdEncoding.EncodeToString(sum[:16])
}

// NewRandomID generates a random base62-encoded id.
func NewRandomID() string {
	var r [16]byte
	if _, err := rand.Read(r[:]); err != nil {
		panic(err)
	}
	return base62.StdEncoding.EncodeToString(r[:])
}
