package manifest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Hash is a 40-character lowercase hex-encoded SHA-1 digest.
type Hash string

// HashSize is the length of a hex-encoded Hash.
const HashSize = 2 * sha1.Size

// HashBytes computes the SHA-1 of data.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// NewHasher returns a running SHA-1 whose result is read back with HashSum.
func NewHasher() hash.Hash {
	return sha1.New()
}

// HashSum finalizes h into a Hash.
func HashSum(h hash.Hash) Hash {
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashReader streams r through SHA-1.
func HashReader(r io.Reader) (Hash, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return HashSum(h), nil
}

// HashFile streams the file at path through SHA-1.
func HashFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return h, nil
}

// ParseHash normalizes a hex digest read from a manifest.
func ParseHash(raw string) (Hash, error) {
	h := Hash(strings.ToLower(strings.TrimSpace(raw)))
	if err := h.Validate(); err != nil {
		return "", err
	}
	return h, nil
}

// Validate checks that h is a well-formed SHA-1 hex digest.
func (h Hash) Validate() error {
	if len(h) != HashSize {
		return fmt.Errorf("invalid hash %q: want %d hex characters, got %d", string(h), HashSize, len(h))
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid hash %q: non-hex character %q", string(h), c)
		}
	}
	return nil
}
