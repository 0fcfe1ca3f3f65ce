package memory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/alvmarrod/ticker-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

// TickerSet is the accumulated universe of discovered tickers. It only grows.
type TickerSet struct {
	tickers map[string]struct{}
}

// NewTickerSet creates a set holding the given tickers
func NewTickerSet(tickers ...string) *TickerSet {
	s := &TickerSet{tickers: make(map[string]struct{}, len(tickers))}
	s.Add(tickers...)
	return s
}

// LoadTickerSet reads the ticker list file. A missing file yields an empty set.
func LoadTickerSet(path string) (*TickerSet, error) {
	tickers, err := storage.ReadTickers(path)
	if errors.Is(err, storage.ErrNoTickers) {
		logrus.Infof("No ticker list at %s, starting with an empty set", path)
		return NewTickerSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tickers: %w", err)
	}

	logrus.Infof("Loaded %d tickers from %s", len(tickers), path)
	return NewTickerSet(tickers...), nil
}

// Add inserts tickers and returns how many were new
func (s *TickerSet) Add(tickers ...string) int {
	added := 0
	for _, t := range tickers {
		if _, ok := s.tickers[t]; ok {
			continue
		}
		s.tickers[t] = struct{}{}
		added++
	}
	return added
}

// Contains reports whether the ticker is in the set
func (s *TickerSet) Contains(ticker string) bool {
	_, ok := s.tickers[ticker]
	return ok
}

// Len returns the number of tickers
func (s *TickerSet) Len() int {
	return len(s.tickers)
}

// Sorted returns the tickers in ascending order
func (s *TickerSet) Sorted() []string {
	out := make([]string, 0, len(s.tickers))
	for t := range s.tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Flush overwrites the ticker list file and, when store is set, mirrors the
// tickers into SQLite
func (s *TickerSet) Flush(path string, store *storage.Storage) error {
	sorted := s.Sorted()

	if err := storage.WriteTickers(path, sorted); err != nil {
		return fmt.Errorf("failed to write tickers: %w", err)
	}

	if store != nil {
		if err := store.UpsertTickers(sorted); err != nil {
			return err
		}
	}

	logrus.Infof("Saved progress: %d tickers in total", len(sorted))
	return nil
}
