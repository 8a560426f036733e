package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/accessgate/internal/model"
)

// Entry is one immutable record in the audit chain.
type Entry struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	UserID          string         `json:"user_id"`
	Action          string         `json:"action"`
	ResourceType    string         `json:"resource_type"`
	ResourceID      string         `json:"resource_id"`
	Decision        model.Decision `json:"decision"`
	PolicyID        string         `json:"policy_id,omitempty"`
	RequestDetails  map[string]any `json:"request_details,omitempty"`
	ResponseDetails map[string]any `json:"response_details,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	ChainHash       string         `json:"chain_hash"`
}

// TimestampFormat is the layout hashed into the chain.
const TimestampFormat = time.RFC3339Nano

// ComputeHash returns the hex SHA-256 of the entry's identifying fields
// followed by prevHash. The genesis prevHash is "".
func ComputeHash(e *Entry, prevHash string) string {
	var b strings.Builder
	b.WriteString(e.ID)
	b.WriteString(e.TenantID)
	b.WriteString(e.UserID)
	b.WriteString(e.Action)
	b.WriteString(e.ResourceType)
	b.WriteString(e.ResourceID)
	b.WriteString(string(e.Decision))
	b.WriteString(e.Timestamp.UTC().Format(TimestampFormat))
	b.WriteString(prevHash)
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}
