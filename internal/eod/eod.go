// Package eod turns a day's trade log into a one-file CSV summary:
// per-symbol fill totals, exit counts, and realized PnL.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"scalp-trading-bot/internal/tradelog"
)

type aggRow struct {
	Symbol        string
	Buys          int
	BuyQty        float64
	BuyValue      float64
	Sells         int
	SellQty       float64
	SellValue     float64
	StopExits     int
	FailsafeExits int
	Buybacks      int
	RealizedPnL   float64
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func tradeFile(t time.Time) string {
	return filepath.Join(logDir(), t.Format("2006-01-02")+".txt")
}

func csvPath(t time.Time) string {
	return filepath.Join(logDir(), "eod", t.Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates the trade log for t's date and writes the
// summary CSV. It returns the CSV path, or "" when no trades were
// logged that day.
func SummarizeDay(t time.Time) (string, error) {
	inPath := tradeFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e tradelog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		row := aggs[e.Symbol]
		if row == nil {
			row = &aggRow{Symbol: e.Symbol}
			aggs[e.Symbol] = row
		}
		switch e.Side {
		case "BUY":
			row.Buys++
			row.BuyQty += e.Qty
			row.BuyValue += e.Qty * e.Price
		case "SELL":
			row.Sells++
			row.SellQty += e.Qty
			row.SellValue += e.Qty * e.Price
		}
		switch e.Reason {
		case tradelog.ReasonExitStop:
			row.StopExits++
		case tradelog.ReasonExitFailsafe:
			row.FailsafeExits++
		case tradelog.ReasonEntryBuyback:
			row.Buybacks++
		}
		// Exit lines carry the realized PnL of the round trip;
		// red-candle re-pricing legs carry none.
		row.RealizedPnL += e.PnL
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{
		"symbol", "buys", "buy_qty", "buy_avg", "sells", "sell_qty", "sell_avg",
		"stop_exits", "failsafe_exits", "buybacks", "realized_pnl",
	}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, k := range keys {
		r := aggs[k]
		var buyAvg, sellAvg float64
		if r.BuyQty > 0 {
			buyAvg = r.BuyValue / r.BuyQty
		}
		if r.SellQty > 0 {
			sellAvg = r.SellValue / r.SellQty
		}
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Buys),
			fmt.Sprintf("%.4f", r.BuyQty),
			fmt.Sprintf("%.4f", buyAvg),
			strconv.Itoa(r.Sells),
			fmt.Sprintf("%.4f", r.SellQty),
			fmt.Sprintf("%.4f", sellAvg),
			strconv.Itoa(r.StopExits),
			strconv.Itoa(r.FailsafeExits),
			strconv.Itoa(r.Buybacks),
			fmt.Sprintf("%.2f", r.RealizedPnL),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	return outPath, nil
}

// SummarizeToday is SummarizeDay for the current local date.
func SummarizeToday() (string, error) {
	return SummarizeDay(time.Now())
}
