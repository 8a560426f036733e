package systemd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// RecordUnitHash writes the SHA-256 of the unit file at unitPath to
// hashPath. Called at install time to record the baseline.
func RecordUnitHash(unitPath, hashPath string) error {
	hash, err := hashUnit(unitPath)
	if err != nil {
		return err
	}
	return os.WriteFile(hashPath, []byte(hash+"\n"), 0o600)
}

// CheckUnitHash compares the unit file against the recorded hash. It returns
// a warning if the unit was modified, or "" if it matches or there is no
// baseline to compare with.
func CheckUnitHash(unitPath, hashPath string) string {
	stored, err := os.ReadFile(hashPath)
	if err != nil {
		return ""
	}
	expected := strings.TrimSpace(string(stored))
	if len(expected) != 64 {
		return ""
	}

	actual, err := hashUnit(unitPath)
	if err != nil {
		return fmt.Sprintf("cannot read unit file %s: %v", unitPath, err)
	}
	if actual == expected {
		return ""
	}
	return fmt.Sprintf("unit file %s has been modified since installation (expected %s, got %s)",
		unitPath, expected[:16], actual[:16])
}

func hashUnit(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("systemd: read unit: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
