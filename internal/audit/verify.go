package audit

import "fmt"

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
	// ErrorIndex is the zero-based position of the first bad entry, -1 if none.
	ErrorIndex int `json:"error_index"`
}

func verifyEntries(entries []Entry, prev string) VerifyResult {
	for i := range entries {
		want := ComputeHash(&entries[i], prev)
		if entries[i].ChainHash != want {
			return VerifyResult{
				Entries:    len(entries),
				Error:      fmt.Sprintf("hash mismatch at entry %s: expected %s, got %s", entries[i].ID, want, entries[i].ChainHash),
				ErrorIndex: i,
			}
		}
		prev = entries[i].ChainHash
	}
	return VerifyResult{Valid: true, Entries: len(entries), ErrorIndex: -1}
}

// VerifyEntries checks a full history, oldest first, linked from genesis.
func VerifyEntries(entries []Entry) VerifyResult {
	return verifyEntries(entries, "")
}
