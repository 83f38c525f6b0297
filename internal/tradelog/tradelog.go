package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

// Entry is one executed order leg. PnL is set on exits only.
type Entry struct {
	Time    string         `json:"time"`
	Symbol  string         `json:"symbol"`
	Side    string         `json:"side"`
	Qty     float64        `json:"qty"`
	Price   float64        `json:"price"`
	OrderID string         `json:"order_id"`
	Reason  string         `json:"reason"`
	PnL     float64        `json:"pnl,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Reasons recorded against entries.
const (
	ReasonEntryBasic    = "ENTRY_BASIC"
	ReasonEntryCompound = "ENTRY_COMPOUND"
	ReasonEntryBuyback  = "ENTRY_BUYBACK"
	ReasonSellRedCandle = "SELL_RED_CANDLE"
	ReasonExitStop      = "EXIT_STOP"
	ReasonExitFailsafe  = "EXIT_FAILSAFE"
)

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.Format("2006-01-02")+".txt")
}

// Append writes one entry to the current day's JSONL file.
func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now()
	e.Time = now.Format("2006-01-02 15:04:05")
	p := dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(e)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips trade logs older than retentionDays and removes
// the originals. A non-positive retention disables compression.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			// already compressed on a previous run
			_ = os.Remove(p)
			return nil
		}
		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()
		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
