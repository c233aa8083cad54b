package display

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func TestAppendAssignsSequenceAndKeepsOrder(t *testing.T) {
	testlog.Start(t)
	l := NewMemoryLog()
	a := l.Append(Record{Direction: DirectionSent, Text: "A", Hex: "41"})
	b := l.Append(Record{Direction: DirectionReceived, Text: "B", Hex: "42"})
	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("unexpected seqs a=%d b=%d", a.Seq, b.Seq)
	}
	if a.At.IsZero() {
		t.Fatalf("append should stamp time")
	}
	got := l.Records(0)
	if len(got) != 2 || got[0].Text != "A" || got[1].Text != "B" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if tail := l.Records(1); len(tail) != 1 || tail[0].Seq != 2 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestOpenReplaysPersistedRecords(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "display", "records.jsonl")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	l, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := []Record{
		l.Append(Record{Direction: DirectionSent, Text: "ping", Hex: "70696e67", Peer: "p1", At: at}),
		l.Append(Record{Direction: DirectionReceived, Text: "pong", Hex: "706f6e67", Peer: "p1", At: at}),
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if diff := cmp.Diff(want, reopened.Records(0)); diff != "" {
		t.Fatalf("replayed records mismatch (-want +got):\n%s", diff)
	}
	next := reopened.Append(Record{Direction: DirectionSent, Text: "x", Hex: "78"})
	if next.Seq != 3 {
		t.Fatalf("sequence should continue after replay, got %d", next.Seq)
	}
}

func TestOpenSkipsCorruptLines(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "records.jsonl")
	content := "{\"seq\":1,\"direction\":\"sent\",\"text\":\"a\",\"hex\":\"61\"}\nnot-json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()
	if l.Len() != 1 {
		t.Fatalf("expected 1 replayed record, got %d", l.Len())
	}
}

func TestClearTruncatesBackingFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "records.jsonl")
	l, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()
	l.Append(Record{Direction: DirectionSent, Text: "a", Hex: "61"})
	if err := l.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty log after clear")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected truncated file, size=%d", info.Size())
	}
	l.Append(Record{Direction: DirectionReceived, Text: "b", Hex: "62"})
	if l.Len() != 1 {
		t.Fatalf("append after clear failed")
	}
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpenReplaysRotatedBackupsOldestFirst(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")
	writeLines(t, filepath.Join(dir, "records-2026-01-02T00-00-00.000.jsonl"),
		`{"seq":2,"direction":"sent","text":"b","hex":"62"}`)
	writeLines(t, filepath.Join(dir, "records-2026-01-01T00-00-00.000.jsonl"),
		`{"seq":1,"direction":"sent","text":"a","hex":"61"}`)
	writeLines(t, filepath.Join(dir, "records-notes.jsonl"),
		`{"seq":9,"direction":"sent","text":"z","hex":"7a"}`)
	writeLines(t, path, `{"seq":3,"direction":"received","text":"c","hex":"63"}`)

	l, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	var got []string
	for _, rec := range l.Records(0) {
		got = append(got, rec.Text)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("replay order mismatch (-want +got):\n%s", diff)
	}
	if next := l.Append(Record{Direction: DirectionSent, Text: "d", Hex: "64"}); next.Seq != 4 {
		t.Fatalf("sequence should continue after backups, got %d", next.Seq)
	}
}

func TestClearRemovesRotatedBackups(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")
	backup := filepath.Join(dir, "records-2026-01-01T00-00-00.000.jsonl")
	unrelated := filepath.Join(dir, "records-notes.jsonl")
	writeLines(t, backup, `{"seq":1,"direction":"sent","text":"a","hex":"61"}`)
	writeLines(t, unrelated, "keep")

	l, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(backup); !os.IsNotExist(err) {
		t.Fatalf("backup should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("unrelated file should survive: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Len() != 0 {
		t.Fatalf("expected nothing to replay after clear, got %d", reopened.Len())
	}
}

func TestSubscribeReceivesAppends(t *testing.T) {
	testlog.Start(t)
	l := NewMemoryLog()
	ch, cancel := l.Subscribe(4)
	defer cancel()
	l.Append(Record{Direction: DirectionReceived, Text: "z", Hex: "7a"})
	select {
	case rec := <-ch:
		if rec.Text != "z" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber did not receive record")
	}
	cancel()
	cancel()
	l.Append(Record{Direction: DirectionReceived, Text: "y", Hex: "79"})
}
