package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxLineSize bounds a single JSONL record; request details can be large.
const maxLineSize = 4 << 20

var (
	_ Sink       = (*FileSink)(nil)
	_ Rollbacker = (*FileSink)(nil)
)

// FileSink appends entries to a JSONL file, one entry per line, and syncs
// each write to disk.
type FileSink struct {
	path string
	file *os.File
	mu   sync.Mutex
	size int64
	tail string
	// last write, kept so Rollback can truncate it away
	lastID     string
	lastOffset int64
	prevTail   string
}

// OpenFileSink opens (or creates) a JSONL audit file for appending and
// recovers the hash of its newest entry.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	entries, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	s := &FileSink{path: path, file: file, size: info.Size()}
	if n := len(entries); n > 0 {
		s.tail = entries[n-1].ChainHash
	}
	return s, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.path }

// Tail returns the chain hash of the newest entry in the file, "" when the
// file is empty.
func (s *FileSink) Tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail
}

func (s *FileSink) Write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("audit: write to closed sink %s", s.path)
	}
	offset := s.size
	n, err := s.file.Write(append(line, '\n'))
	if err != nil {
		if n > 0 {
			_ = s.file.Truncate(offset)
		}
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Truncate(offset)
		return fmt.Errorf("audit: sync: %w", err)
	}
	s.size = offset + int64(n)
	s.lastID, s.lastOffset, s.prevTail = e.ID, offset, s.tail
	s.tail = e.ChainHash
	return nil
}

// Rollback truncates the file to before the entry with the given id. Only
// the most recent write can be rolled back.
func (s *FileSink) Rollback(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil || s.lastID != id {
		return fmt.Errorf("audit: %s: entry %s is not the last write", s.path, id)
	}
	if err := s.file.Truncate(s.lastOffset); err != nil {
		return fmt.Errorf("audit: truncate %s: %w", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	s.size = s.lastOffset
	s.lastID = ""
	s.tail = s.prevTail
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// LoadFile reads every entry from a JSONL audit file, oldest first. A missing
// file yields no entries.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: %s line %d: %w", path, lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", path, err)
	}
	return entries, nil
}

// VerifyFile recomputes the hash chain of a JSONL audit file from genesis.
// ErrorIndex is the zero-based line of the first bad entry.
func VerifyFile(path string) VerifyResult {
	entries, err := LoadFile(path)
	if err != nil {
		return VerifyResult{Error: err.Error(), ErrorIndex: -1}
	}
	return verifyEntries(entries, "")
}
