package tradelog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironfly/internal/market"
	"ironfly/internal/trader"
)

func closedTrade() trader.Trade {
	entry := time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)
	exit := entry.Add(45 * time.Minute)
	exitPrice := 113.0
	pnl := 325.0
	return trader.Trade{
		Mode:       trader.ModePaper,
		EntryTime:  entry,
		ExitTime:   &exit,
		Strike:     24000,
		OptionType: market.SideCall,
		Qty:        25,
		EntryPrice: 100,
		ExitPrice:  &exitPrice,
		PnL:        &pnl,
		Identifier: "NIFTY24000CE",
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_HeaderThenRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(closedTrade()))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "PAPER", rows[1][0])
	assert.Equal(t, "2025-06-02", rows[1][1])
	assert.Equal(t, "11:30:00", rows[1][2])
	assert.Equal(t, "12:15:00", rows[1][3])
	assert.Equal(t, "24000 CALL", rows[1][4])
	assert.Equal(t, "CALL", rows[1][5])
	assert.Equal(t, "25", rows[1][6])
	assert.Equal(t, "100.00", rows[1][7])
	assert.Equal(t, "113.00", rows[1][8])
	assert.Equal(t, "325.00", rows[1][9])
	assert.Equal(t, "NIFTY24000CE", rows[1][10])
}

func TestWriter_HeaderStableAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(closedTrade()))

	// A second writer on the same file must append, not rewrite the header.
	w2, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w2.Append(closedTrade()))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.NotEqual(t, header, rows[1])
	assert.NotEqual(t, header, rows[2])
}

func TestWriter_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "trades.csv")
	_, err := NewWriter(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
