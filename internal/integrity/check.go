// Package integrity verifies the running binary against a checksum fixed at
// build time or installed next to the config. A gateway whose binary was
// swapped cannot be trusted to write its own audit trail, so serve refuses
// to start on a mismatch.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/accessgate/internal/alert"
)

// ExpectedHash is set at build time via:
//
//	-ldflags "-X github.com/ppiankov/accessgate/internal/integrity.ExpectedHash=<sha256hex>"
//
// When empty (dev builds), verification falls back to a checksum file.
var ExpectedHash string

// ChecksumPaths are the paths checked (in order) for a sha256 checksum file.
// The file should contain a single hex-encoded SHA-256 hash.
var ChecksumPaths = []string{
	"/etc/accessgate/binary.sha256",
	"$HOME/.accessgate/binary.sha256",
}

// ErrMismatch is returned when the binary does not match the expected hash.
var ErrMismatch = errors.New("integrity: binary checksum mismatch")

// Result describes one verification.
type Result struct {
	Binary   string `json:"binary"`
	Expected string `json:"expected_hash,omitempty"`
	Actual   string `json:"actual_hash,omitempty"`
	// Skipped is true when no expected hash is available.
	Skipped bool `json:"skipped"`
}

// VerifySelf checks the running executable.
func VerifySelf() (Result, error) {
	exePath, err := os.Executable()
	if err != nil {
		return Result{}, fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}
	return Verify(exePath)
}

// Verify checks the file at path against ExpectedHash or the first valid
// checksum file. No expected hash is not an error: the result is Skipped.
func Verify(path string) (Result, error) {
	res := Result{Binary: path, Expected: ExpectedHash}
	if res.Expected == "" {
		res.Expected = loadChecksumFile()
	}
	if res.Expected == "" {
		res.Skipped = true
		return res, nil
	}

	actual, err := hashFile(path)
	if err != nil {
		return res, fmt.Errorf("integrity: cannot hash binary: %w", err)
	}
	res.Actual = actual
	if !strings.EqualFold(actual, res.Expected) {
		return res, fmt.Errorf("%w (expected %s, got %s)", ErrMismatch, res.Expected, actual)
	}
	return res, nil
}

// HashSelf returns the SHA-256 hex digest of the running binary, for writing
// the checksum file after install.
func HashSelf() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}
	return hashFile(exePath)
}

// TamperEvent builds the alert sent when Verify reports a mismatch.
func TamperEvent(res Result, at time.Time) alert.Event {
	host, _ := os.Hostname()
	return alert.Event{
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		TenantID:  host,
		Action:    "start",
		Resource:  "binary/" + res.Binary,
		Decision:  "deny",
		Reason:    fmt.Sprintf("binary checksum mismatch: expected %s, got %s", res.Expected, res.Actual),
		PolicyID:  "integrity.binary_tamper",
	}
}

// loadChecksumFile reads the expected hash from a checksum file.
// Returns empty string if no file is found or readable.
func loadChecksumFile() string {
	for _, p := range ChecksumPaths {
		data, err := os.ReadFile(os.ExpandEnv(p))
		if err != nil {
			continue
		}
		hash := strings.TrimSpace(string(data))
		// sha256sum output carries the file name after the digest.
		if i := strings.IndexAny(hash, " \t"); i > 0 {
			hash = hash[:i]
		}
		if len(hash) == 64 && isHex(hash) {
			return hash
		}
	}
	return ""
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
