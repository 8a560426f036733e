package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/accessgate/internal/model"
)

func testEntry(tenant, user string, decision model.Decision) Entry {
	return Entry{
		TenantID:     tenant,
		UserID:       user,
		Action:       "read",
		ResourceType: "case",
		ResourceID:   "c-1",
		Decision:     decision,
		PolicyID:     "p1",
	}
}

func TestEmptyChainIsValid(t *testing.T) {
	c := NewChain()
	if !c.Verify() {
		t.Fatal("empty chain must verify")
	}
	if c.LastHash() != "" {
		t.Fatal("genesis hash must be empty")
	}
}

func TestAppendLinksEntries(t *testing.T) {
	c := NewChain()
	first, err := c.Append(testEntry("t", "u", model.Allow))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Fatal("append must assign id and timestamp")
	}
	if first.ChainHash != ComputeHash(&first, "") {
		t.Fatal("first entry must chain from genesis")
	}
	second, _ := c.Append(testEntry("t", "u", model.Deny))
	if second.ChainHash != ComputeHash(&second, first.ChainHash) {
		t.Fatal("second entry must chain from the first")
	}
	if c.LastHash() != second.ChainHash {
		t.Fatal("last hash must track the tail")
	}
}

func TestComputeHashCoversFields(t *testing.T) {
	base := Entry{ID: "1", TenantID: "t", UserID: "u", Action: "read", ResourceType: "case",
		ResourceID: "c", Decision: model.Allow, Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC)}
	h := ComputeHash(&base, "")
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}

	mutations := []func(*Entry){
		func(e *Entry) { e.ID = "2" },
		func(e *Entry) { e.TenantID = "x" },
		func(e *Entry) { e.UserID = "x" },
		func(e *Entry) { e.Action = "write" },
		func(e *Entry) { e.ResourceType = "x" },
		func(e *Entry) { e.ResourceID = "x" },
		func(e *Entry) { e.Decision = model.Deny },
		func(e *Entry) { e.Timestamp = e.Timestamp.Add(time.Nanosecond) },
	}
	for i, mutate := range mutations {
		e := base
		mutate(&e)
		if ComputeHash(&e, "") == h {
			t.Errorf("mutation %d did not change the hash", i)
		}
	}
	if ComputeHash(&base, "prev") == h {
		t.Error("prev hash must be part of the digest")
	}
}

func TestVerifyDetectsTamperedDecision(t *testing.T) {
	c := NewChain()
	for i := 0; i < 5; i++ {
		c.Append(testEntry("t", "u", model.Allow))
	}
	c.entries[2].Decision = model.Deny

	res := c.VerifyDetailed()
	if res.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if res.ErrorIndex != 2 {
		t.Fatalf("expected failure at entry 2, got %d", res.ErrorIndex)
	}
}

func TestConcurrentAppendsFormOneChain(t *testing.T) {
	c := NewChain()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Append(testEntry("t", "u", model.Allow)); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	if c.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", c.Len())
	}
	if !c.Verify() {
		t.Fatalf("concurrent appends broke the chain: %+v", c.VerifyDetailed())
	}
}

func TestRetentionKeepsAnchor(t *testing.T) {
	c := NewChain(WithMaxEntries(3))
	var all []Entry
	for i := 0; i < 5; i++ {
		e, _ := c.Append(testEntry("t", "u", model.Allow))
		all = append(all, e)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 retained entries, got %d", c.Len())
	}
	if c.Anchor() != all[1].ChainHash {
		t.Fatal("anchor must be the hash of the newest evicted entry")
	}
	if !c.Verify() {
		t.Fatal("retained window must verify from the anchor")
	}
	got := c.Query(Filter{})
	if got[0].ID != all[2].ID {
		t.Fatal("oldest entries must be evicted first")
	}
}

func TestQueryFiltersAndLimit(t *testing.T) {
	c := NewChain()
	c.Append(testEntry("a", "u1", model.Allow))
	c.Append(testEntry("b", "u1", model.Deny))
	c.Append(testEntry("a", "u2", model.Deny))
	c.Append(testEntry("a", "u1", model.Deny))

	got := c.Query(Filter{TenantID: "a", Decision: model.Deny})
	if len(got) != 2 || got[0].UserID != "u2" || got[1].UserID != "u1" {
		t.Fatalf("unexpected query result %+v", got)
	}

	latest := c.Query(Filter{TenantID: "a", Limit: 2})
	if len(latest) != 2 || latest[1].UserID != "u1" || latest[0].UserID != "u2" {
		t.Fatalf("limit must keep the newest entries, oldest first: %+v", latest)
	}

	future := c.Query(Filter{Since: time.Now().Add(time.Hour)})
	if len(future) != 0 {
		t.Fatalf("expected no entries since the future, got %d", len(future))
	}
}

type failingSink struct{ writes int }

func (s *failingSink) Write(Entry) error { s.writes++; return errors.New("disk full") }
func (s *failingSink) Close() error      { return nil }

func TestSinkFailureDoesNotCommit(t *testing.T) {
	sink := &failingSink{}
	c := NewChain(WithSink(sink))
	if _, err := c.Append(testEntry("t", "u", model.Allow)); err == nil {
		t.Fatal("expected sink error")
	}
	if c.Len() != 0 || c.LastHash() != "" {
		t.Fatal("failed append must not move the chain")
	}
	if sink.writes != 1 {
		t.Fatalf("expected 1 write attempt, got %d", sink.writes)
	}
}

type countingSink struct{ writes, closes int }

func (s *countingSink) Write(Entry) error { s.writes++; return nil }
func (s *countingSink) Close() error      { s.closes++; return nil }

// recordingSink keeps what it accepted, like a database table would.
type recordingSink struct {
	entries []Entry
	closes  int
}

func (s *recordingSink) Write(e Entry) error { s.entries = append(s.entries, e); return nil }
func (s *recordingSink) Close() error        { s.closes++; return nil }

func (s *recordingSink) Rollback(id string) error {
	n := len(s.entries)
	if n == 0 || s.entries[n-1].ID != id {
		return errors.New("not the last entry")
	}
	s.entries = s.entries[:n-1]
	return nil
}

// flakySink fails exactly on write number failOn.
type flakySink struct{ writes, failOn int }

func (s *flakySink) Write(Entry) error {
	s.writes++
	if s.writes == s.failOn {
		return errors.New("disk full")
	}
	return nil
}
func (s *flakySink) Close() error { return nil }

func TestMultiSink(t *testing.T) {
	if MultiSink(nil, nil) != nil {
		t.Fatal("no live sinks must yield nil")
	}
	one := &countingSink{}
	if MultiSink(nil, one) != Sink(one) {
		t.Fatal("a single sink must be returned unwrapped")
	}

	first, bad, last := &recordingSink{}, &failingSink{}, &countingSink{}
	c := NewChain(WithSink(MultiSink(first, bad, last)))
	_, err := c.Append(testEntry("t", "u", model.Deny))
	if err == nil {
		t.Fatal("expected error from the failing sink")
	}
	if errors.Is(err, ErrSinkDiverged) {
		t.Fatalf("rolled back write must not report divergence: %v", err)
	}
	if len(first.entries) != 0 || last.writes != 0 {
		t.Fatalf("first holds %d entries, last saw %d writes, want 0 and 0", len(first.entries), last.writes)
	}
	if c.Len() != 0 {
		t.Fatal("rejected entry must not be committed")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if first.closes != 1 || last.closes != 1 {
		t.Fatal("every sink must be closed")
	}
}

func TestMultiSinkFailureKeepsPersistedChainLinear(t *testing.T) {
	db, file := &recordingSink{}, &flakySink{failOn: 2}
	c := NewChain(WithSink(MultiSink(db, file)))

	var errs int
	for i := 0; i < 3; i++ {
		if _, err := c.Append(testEntry("t", "u", model.Allow)); err != nil {
			errs++
		}
	}
	if errs != 1 || c.Len() != 2 {
		t.Fatalf("expected 1 failed append and 2 committed, got %d and %d", errs, c.Len())
	}
	if len(db.entries) != c.Len() {
		t.Fatalf("persisted %d entries, chain holds %d", len(db.entries), c.Len())
	}
	if res := VerifyEntries(db.entries); !res.Valid {
		t.Fatalf("persisted chain must verify: %+v", res)
	}
	if err := NewChain().Restore(db.entries); err != nil {
		t.Fatalf("restart from persisted entries: %v", err)
	}
}

func TestDivergedSinksFailClosed(t *testing.T) {
	first, bad := &countingSink{}, &flakySink{failOn: 1}
	c := NewChain(WithSink(MultiSink(first, bad)))

	if _, err := c.Append(testEntry("t", "u", model.Allow)); !errors.Is(err, ErrSinkDiverged) {
		t.Fatalf("expected ErrSinkDiverged, got %v", err)
	}
	if _, err := c.Append(testEntry("t", "u", model.Allow)); !errors.Is(err, ErrSinkDiverged) {
		t.Fatalf("later appends must keep failing, got %v", err)
	}
	if first.writes != 1 || c.Len() != 0 {
		t.Fatalf("diverged chain wrote %d more times and holds %d entries", first.writes-1, c.Len())
	}
}

func TestFileSinkRollbackAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("OpenFileSink: %v", err)
	}
	c := NewChain(WithSink(MultiSink(sink, &flakySink{failOn: 3})))
	for i := 0; i < 3; i++ {
		c.Append(testEntry("t", "u", model.Allow))
	}
	if sink.Tail() != c.LastHash() {
		t.Fatal("sink tail must follow the committed chain after a rollback")
	}
	c.Close()

	if res := VerifyFile(path); !res.Valid || res.Entries != 2 {
		t.Fatalf("expected valid 2-entry file, got %+v", res)
	}
	reopened, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Tail() != c.LastHash() {
		t.Fatal("reopened sink must recover the file's tail hash")
	}
	if err := reopened.Rollback("unknown"); err == nil {
		t.Fatal("rollback of an entry this sink did not just write must fail")
	}
}

func TestFileSinkRoundTripAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	sink, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("OpenFileSink: %v", err)
	}
	c := NewChain(WithSink(sink))
	for i := 0; i < 4; i++ {
		c.Append(testEntry("t", "u", model.Allow))
	}
	last := c.LastHash()
	c.Close()

	if res := VerifyFile(path); !res.Valid || res.Entries != 4 {
		t.Fatalf("expected valid 4-entry file, got %+v", res)
	}

	entries, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	sink2, _ := OpenFileSink(path)
	restarted := NewChain(WithSink(sink2))
	if err := restarted.Restore(entries); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restarted.LastHash() != last {
		t.Fatal("restored chain must continue from the persisted tail")
	}
	restarted.Append(testEntry("t", "u", model.Deny))
	restarted.Close()

	if res := VerifyFile(path); !res.Valid || res.Entries != 5 {
		t.Fatalf("expected valid 5-entry file after restart, got %+v", res)
	}
}

func TestVerifyFileDetectsTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, _ := OpenFileSink(path)
	c := NewChain(WithSink(sink))
	for i := 0; i < 3; i++ {
		c.Append(testEntry("t", "u", model.Allow))
	}
	c.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"decision":"allow"`, `"decision":"deny"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600)

	res := VerifyFile(path)
	if res.Valid || res.ErrorIndex != 1 {
		t.Fatalf("expected failure at line index 1, got %+v", res)
	}

	entries, _ := LoadFile(path)
	if err := NewChain().Restore(entries); !errors.Is(err, ErrBrokenChain) {
		t.Fatalf("expected ErrBrokenChain, got %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	entries, err := LoadFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil || entries != nil {
		t.Fatalf("missing file should yield no entries, got %v, %v", entries, err)
	}
}

func TestFormatTimeline(t *testing.T) {
	c := NewChain()
	c.Append(testEntry("tenant-a", "u1", model.Allow))
	c.Append(testEntry("tenant-a", "u1", model.Deny))

	out := FormatTimeline(c.Query(Filter{}))
	for _, want := range []string{"Audit: 2 entries", "ALLOW", "DENY", "case/c-1", "Summary: 1 allow, 1 deny"} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q:\n%s", want, out)
		}
	}
	if FormatTimeline(nil) != "No audit entries found.\n" {
		t.Error("unexpected empty timeline")
	}
}
