package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	if err := Append(Entry{Symbol: "AAPL", Side: "BUY", Qty: 1.5, Price: 100.25, OrderID: "O1", Reason: ReasonEntryBasic}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := Append(Entry{Symbol: "AAPL", Side: "SELL", Qty: 1.5, Price: 101.00, OrderID: "O2", Reason: ReasonExitStop, PnL: 1.125}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	p := filepath.Join(dir, time.Now().Format("2006-01-02")+".txt")
	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("Expected daily log file: %v", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("Bad JSONL line: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Time == "" {
		t.Error("Expected Append to stamp the entry time")
	}
	if entries[1].Reason != ReasonExitStop || entries[1].PnL != 1.125 {
		t.Errorf("Unexpected exit entry %+v", entries[1])
	}
}

func TestCompressOlderGzipsAndRemoves(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	old := filepath.Join(dir, "2025-01-02.txt")
	if err := os.WriteFile(old, []byte(`{"symbol":"AAPL"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(dir, time.Now().Format("2006-01-02")+".txt")
	if err := os.WriteFile(fresh, []byte(`{"symbol":"AAPL"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CompressOlder(7); err != nil {
		t.Fatalf("CompressOlder failed: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected the old log to be removed")
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Error("Expected the old log to be gzipped")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Expected the fresh log to be left alone")
	}
}

func TestCompressOlderDisabled(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	old := filepath.Join(dir, "2025-01-02.txt")
	if err := os.WriteFile(old, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -30)
	_ = os.Chtimes(old, past, past)

	if err := CompressOlder(0); err != nil {
		t.Fatalf("CompressOlder failed: %v", err)
	}
	if _, err := os.Stat(old); err != nil {
		t.Error("Expected compression to be disabled with zero retention")
	}
}
