package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLog_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixed := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	l := New(Config{Writer: &buf, Now: func() time.Time { return fixed }})

	if err := l.Log(Entry{AlertID: "ALT-1", Category: "insider_trading", Determination: "ESCALATE", GenuineConfidence: 85}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(Entry{AlertID: "ALT-2", Determination: "CLOSE"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got Entry
	if err := json.Unmarshal(lines[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.AlertID != "ALT-1" || got.GenuineConfidence != 85 || !got.Timestamp.Equal(fixed) {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestLog_OnEntryWithoutWriter(t *testing.T) {
	t.Parallel()

	var seen []Entry
	l := New(Config{OnEntry: func(e Entry) { seen = append(seen, e) }})
	if err := l.Log(Entry{AlertID: "ALT-3"}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0].Timestamp.IsZero() {
		t.Errorf("unexpected entries: %+v", seen)
	}
}

func TestOpen_AppendsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	for i := range 2 {
		l, err := Open(path, nil)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := l.Log(Entry{AlertID: "ALT"}); err != nil {
			t.Fatal(err)
		}
		if err := l.Close(); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	for s := bufio.NewScanner(f); s.Scan(); {
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 lines after reopen, got %d", n)
	}
}

func TestLog_Concurrent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Config{Writer: &buf})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Log(Entry{AlertID: "ALT"})
		}()
	}
	wg.Wait()

	dec := json.NewDecoder(&buf)
	n := 0
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			t.Fatalf("interleaved output: %v", err)
		}
		n++
	}
	if n != 50 {
		t.Errorf("decoded %d entries, want 50", n)
	}
}
