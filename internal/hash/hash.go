// Package hash computes the SHA-256 content hashes used to skip unchanged
// documents and to deduplicate media blobs
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// File hashes a file on disk
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, _, err := Reader(f)
	return sum, err
}

// Reader hashes everything read from r and reports how many bytes it saw
func Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Bytes hashes a byte slice
func Bytes(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// String hashes a string
func String(content string) string {
	return Bytes([]byte(content))
}

// Short returns the first 12 hex characters of a string's hash
func Short(content string) string {
	return String(content)[:12]
}
