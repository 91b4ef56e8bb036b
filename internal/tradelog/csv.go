// Package tradelog persists closed trades as an append-only CSV file, one
// row per trade lifecycle.
package tradelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"ironfly/internal/trader"
)

var header = []string{
	"mode", "date", "entry_time", "exit_time", "option", "type", "qty",
	"entry_price", "exit_price", "pnl", "identifier", "order_id",
}

// Writer appends closed trades to a CSV file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter opens or creates the log file at path, writing the header row
// only when the file is created.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create trade log dir: %w", err)
		}
	}
	info, err := os.Stat(path)
	fresh := err != nil || info.Size() == 0
	w := &Writer{path: path}
	if fresh {
		if err := w.writeRow(header); err != nil {
			return nil, fmt.Errorf("write trade log header: %w", err)
		}
	}
	return w, nil
}

// Append writes one closed trade to the log.
func (w *Writer) Append(t trader.Trade) error {
	exitTime := ""
	if t.ExitTime != nil {
		exitTime = t.ExitTime.Format("15:04:05")
	}
	exitPrice := ""
	if t.ExitPrice != nil {
		exitPrice = strconv.FormatFloat(*t.ExitPrice, 'f', 2, 64)
	}
	pnl := ""
	if t.PnL != nil {
		pnl = strconv.FormatFloat(*t.PnL, 'f', 2, 64)
	}
	row := []string{
		string(t.Mode),
		t.EntryTime.Format("2006-01-02"),
		t.EntryTime.Format("15:04:05"),
		exitTime,
		t.Option(),
		string(t.OptionType),
		strconv.Itoa(t.Qty),
		strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
		exitPrice,
		pnl,
		t.Identifier,
		t.OrderID,
	}
	if err := w.writeRow(row); err != nil {
		return fmt.Errorf("append trade %s: %w", t.Identifier, err)
	}
	return nil
}

func (w *Writer) writeRow(row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
