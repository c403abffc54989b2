// Package hasher derives the content identifier used to de-duplicate uploads.
// The identifier depends only on the bytes, never on the file name or type.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the length of an identifier in hex characters.
const Size = sha256.Size * 2

// Sum streams r through SHA-256 and returns the lowercase hex digest.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	// 32 KiB reads keep memory flat for large media files.
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}


// Valid reports whether id looks like an identifier produced by this package.
func Valid(id string) bool {
	if len(id) != Size {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
