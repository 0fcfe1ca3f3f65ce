package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoTickers is returned when the ticker list file does not exist
var ErrNoTickers = errors.New("ticker list file not found")

// ReadTickers loads the ticker list file. Blank cells are skipped.
func ReadTickers(path string) ([]string, error) {
	recs, err := ReadRecords(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoTickers, path)
	}
	if err != nil {
		return nil, err
	}

	col := -1
	for i, h := range recs.Header {
		if h == TickerColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("ticker list %s has no %q column", path, TickerColumn)
	}

	tickers := make([]string, 0, len(recs.Rows))
	for _, row := range recs.Rows {
		if col >= len(row) || row[col] == "" {
			continue
		}
		tickers = append(tickers, row[col])
	}
	return tickers, nil
}

// WriteTickers overwrites the ticker list file with the sorted, deduplicated
// tickers under a single header
func WriteTickers(path string, tickers []string) error {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)

	recs := &Records{Header: []string{TickerColumn}}
	for i, t := range sorted {
		if i > 0 && t == sorted[i-1] {
			continue
		}
		recs.Rows = append(recs.Rows, []string{t})
	}
	return WriteRecords(path, recs)
}

// ReadRecords reads a whole CSV file. Rows may have differing widths.
func ReadRecords(path string) (*Records, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	recs := &Records{Header: header}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		recs.Rows = append(recs.Rows, row)
	}
	return recs, nil
}

// WriteRecords replaces path wholesale. The data goes to a temporary file in
// the same directory first, so an interrupted write leaves the previous
// checkpoint intact.
func WriteRecords(path string, recs *Records) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(recs.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(recs.Rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
