package storage

import (
	"database/sql"
	"time"
)

// TickerColumn is the header of the ticker list file and the key column of
// the results table
const TickerColumn = "Tickers"

// Schema is the ordered set of snapshot fields. Order is both extraction
// order and column order.
type Schema struct {
	Version int
	Fields  []string
	Probe   string
}

// SnapshotFields is the attributes table of a quote page, read value column
// by value column (13 rows per column, 6 columns).
var SnapshotFields = []string{
	"Index", "Market Cap", "Income", "Sales", "Book/sh", "Cash/sh", "Dividend Est.",
	"Dividend TTM", "Dividend Ex-Date", "Employees", "Option/Short", "Sales Surprise",
	"SMA20", "P/E", "Forward P/E", "PEG", "P/S", "P/B", "P/C", "P/FCF",
	"Quick Ratio", "Current Ratio", "Debt/Eq", "LT Debt/Eq", "EPS Surprise", "SMA50",
	"EPS (ttm)", "EPS next Y", "EPS next Q", "EPS this Y", "EPS Growth next Y", "EPS next 5Y",
	"EPS past 5Y", "Sales past 5Y", "EPS Y/Y TTM", "Sales Y/Y TTM", "EPS Q/Q", "Sales Q/Q",
	"SMA200", "Insider Own", "Insider Trans", "Inst Own", "Inst Trans", "ROA", "ROE",
	"ROI", "Gross Margin", "Oper. Margin", "Profit Margin", "Payout", "Earnings", "Trades",
	"Shs Outstand", "Shs Float", "Short Float", "Short Ratio", "Short Interest", "52W Range",
	"52W High", "52W Low", "RSI (14)", "Recom", "Rel Volume", "Avg Volume", "Volume",
	"Perf Week", "Perf Month", "Perf Quarter", "Perf Half Y", "Perf Year", "Perf YTD",
	"Beta", "ATR (14)", "Volatility", "Target Price", "Prev Close", "Price", "Change",
}

// DefaultSchema is the current snapshot schema
var DefaultSchema = Schema{
	Version: 1,
	Fields:  SnapshotFields,
	Probe:   "Market Cap",
}

// Width returns the number of fields
func (s Schema) Width() int {
	return len(s.Fields)
}

// Index returns the column position of a field, or -1
func (s Schema) Index(field string) int {
	for i, f := range s.Fields {
		if f == field {
			return i
		}
	}
	return -1
}

// Row is one ticker's field vector in schema order. An invalid entry has not
// been collected yet.
type Row []sql.NullString

// Records is a header plus data rows as read from or written to a CSV file
type Records struct {
	Header []string
	Rows   [][]string
}

// Progress is the persisted position of a component
type Progress struct {
	Component string
	Page      int
	LastKey   string
	UpdatedAt time.Time
}

// Metrics tracks run statistics for export on exit
type Metrics struct {
	Command            string    `json:"command"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	PagesFetched       int       `json:"pages_fetched"`
	RateLimited        int       `json:"rate_limited"`
	TickersDiscovered  int       `json:"tickers_discovered"`
	SnapshotsCollected int       `json:"snapshots_collected"`
	Checkpoints        int       `json:"checkpoints"`
	TotalFetchTimeMs   int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs     int64     `json:"avg_fetch_time_ms"`
	TerminationReason  string    `json:"termination_reason"`
}
