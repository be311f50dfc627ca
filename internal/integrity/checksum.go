// Package integrity verifies installed files by SHA-256 checksum.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMismatch is returned by VerifyFile when the checksum differs.
var ErrMismatch = errors.New("integrity: checksum mismatch")

// HashFile computes the hex-encoded SHA-256 checksum of the file at path
// using streaming I/O.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("integrity: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("integrity: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex-encoded SHA-256 checksum of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyFile checks that the file at path hashes to expected.
func VerifyFile(path, expected string) error {
	if expected == "" {
		return errors.New("integrity: expected checksum is required")
	}
	actual, err := HashFile(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrMismatch, path, actual, expected)
	}
	return nil
}
