package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/alvmarrod/ticker-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnexpectedColumn means a stored results file has a column the schema does not know
	ErrUnexpectedColumn = errors.New("unexpected column")

	// ErrWidth means a field vector does not match the schema width
	ErrWidth = errors.New("field vector width does not match schema")
)

// Table maps tickers to field vectors in schema order. Rows are appended or
// overwritten, never removed.
type Table struct {
	schema storage.Schema
	probe  int
	keys   []string
	rows   map[string]storage.Row
	dirty  map[string]bool // rows set since the last flush
}

// NewTable creates a table with one empty row per key
func NewTable(schema storage.Schema, keys []string) *Table {
	t := &Table{
		schema: schema,
		probe:  schema.Index(schema.Probe),
		rows:   make(map[string]storage.Row, len(keys)),
		dirty:  make(map[string]bool),
	}
	for _, k := range keys {
		t.addKey(k)
	}
	return t
}

// LoadTable reads the results file, or starts a fresh table from keys when
// there is none. Keys missing from a loaded table are appended as empty rows.
func LoadTable(path string, schema storage.Schema, keys []string) (*Table, error) {
	recs, err := storage.ReadRecords(path)
	if errors.Is(err, os.ErrNotExist) {
		logrus.Infof("No results file at %s, creating a new table", path)
		return NewTable(schema, keys), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	t, err := TableFromRecords(schema, recs)
	if err != nil {
		return nil, fmt.Errorf("failed to load results from %s: %w", path, err)
	}

	appended := 0
	for _, k := range keys {
		if t.addKey(k) {
			appended++
		}
	}
	if appended > 0 {
		logrus.Infof("Added %d tickers missing from %s", appended, path)
	}

	return t, nil
}

// TableFromRecords reconciles stored records with the schema. The key is the
// "Tickers" column when present, otherwise the first column. Unnamed columns
// are positional indexes and are dropped. Schema fields missing from the
// records stay empty; columns unknown to the schema are an error.
func TableFromRecords(schema storage.Schema, recs *storage.Records) (*Table, error) {
	t := NewTable(schema, nil)
	if len(recs.Header) == 0 {
		return t, nil
	}

	keyCol := 0
	for i, h := range recs.Header {
		if h == storage.TickerColumn {
			keyCol = i
			break
		}
	}

	// record column -> schema position
	mapping := make(map[int]int)
	for i, h := range recs.Header {
		if i == keyCol || isIndexColumn(h) {
			continue
		}
		pos := schema.Index(h)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnexpectedColumn, h)
		}
		mapping[i] = pos
	}

	for _, rec := range recs.Rows {
		if keyCol >= len(rec) || rec[keyCol] == "" {
			continue
		}
		key := rec[keyCol]
		t.addKey(key)

		row := t.rows[key]
		for i, pos := range mapping {
			if i < len(rec) {
				row[pos] = value(rec[i])
			}
		}
	}

	return t, nil
}

func isIndexColumn(header string) bool {
	return header == "" || strings.HasPrefix(header, "Unnamed:")
}

func value(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (t *Table) addKey(key string) bool {
	if _, ok := t.rows[key]; ok {
		return false
	}
	t.keys = append(t.keys, key)
	t.rows[key] = make(storage.Row, t.schema.Width())
	return true
}

// Schema returns the table schema
func (t *Table) Schema() storage.Schema {
	return t.schema
}

// Keys returns the row keys in table order
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Worklist returns the keys of the table that belong to set, in table
// order. Rows left over from tickers no longer in set are kept in the table
// but are not collected.
func (t *Table) Worklist(set *TickerSet) []string {
	out := make([]string, 0, len(t.keys))
	for _, k := range t.keys {
		if set.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Row returns a copy of the row for key
func (t *Table) Row(key string) (storage.Row, bool) {
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	out := make(storage.Row, len(row))
	copy(out, row)
	return out, true
}

// Set overwrites every column of key's row
func (t *Table) Set(key string, values []string) error {
	if len(values) != t.schema.Width() {
		return fmt.Errorf("%w: %s has %d values, schema has %d", ErrWidth, key, len(values), t.schema.Width())
	}

	t.addKey(key)
	row := t.rows[key]
	for i, v := range values {
		row[i] = value(v)
	}
	t.dirty[key] = true
	return nil
}

// Complete reports whether key's probe column holds a value
func (t *Table) Complete(key string) bool {
	row, ok := t.rows[key]
	if !ok || t.probe < 0 {
		return false
	}
	return row[t.probe].Valid
}

// CompleteCount returns the number of complete rows
func (t *Table) CompleteCount() int {
	n := 0
	for _, k := range t.keys {
		if t.Complete(k) {
			n++
		}
	}
	return n
}

// ResumeIndex returns the position of the first key without a complete row,
// or len(keys) when every row is complete
func (t *Table) ResumeIndex(keys []string) int {
	for i, k := range keys {
		if !t.Complete(k) {
			return i
		}
	}
	return len(keys)
}

// Records renders the table in the given file layout
func (t *Table) Records(layout string) *storage.Records {
	recs := &storage.Records{}
	if layout == config.LayoutColumn {
		recs.Header = append([]string{"", storage.TickerColumn}, t.schema.Fields...)
	} else {
		recs.Header = append([]string{storage.TickerColumn}, t.schema.Fields...)
	}

	for i, k := range t.keys {
		rec := make([]string, 0, len(recs.Header))
		if layout == config.LayoutColumn {
			rec = append(rec, strconv.Itoa(i))
		}
		rec = append(rec, k)
		for _, v := range t.rows[k] {
			rec = append(rec, v.String)
		}
		recs.Rows = append(recs.Rows, rec)
	}

	return recs
}

// Flush overwrites the results file and, when store is set, mirrors the
// complete rows set since the previous flush into SQLite
func (t *Table) Flush(path, layout string, store *storage.Storage) error {
	if err := storage.WriteRecords(path, t.Records(layout)); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if store != nil {
		changed := make(map[string]storage.Row)
		for k := range t.dirty {
			if t.Complete(k) {
				changed[k] = t.rows[k]
			}
		}
		if err := store.UpsertSnapshots(t.schema, changed); err != nil {
			return err
		}
	}
	t.dirty = make(map[string]bool)

	logrus.Infof("Saved results: %d snapshots collected so far", t.CompleteCount())
	return nil
}
