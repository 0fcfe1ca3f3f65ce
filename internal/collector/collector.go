// Package collector fills the results table one ticker at a time, resuming
// from whatever an earlier run already collected.
package collector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/alvmarrod/ticker-weaver/internal/crawler"
	"github.com/alvmarrod/ticker-weaver/internal/extract"
	"github.com/alvmarrod/ticker-weaver/internal/memory"
	"github.com/alvmarrod/ticker-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

// Component is the progress key of a collection run
const Component = "collector"

// Fetcher returns a page once it answered 200
type Fetcher interface {
	Get(ctx context.Context, url string, headers http.Header) (*crawler.Page, error)
}

// Checkpointer persists the whole results table. lastKey is the most
// recently collected ticker, empty if nothing was collected this run.
type Checkpointer interface {
	Checkpoint(table *memory.Table, lastKey string) error
}

// Collector fetches one quote page per ticker and writes its field vector
type Collector struct {
	quoteURL        string
	checkpointEvery int
	headers         http.Header
	fetcher         Fetcher
	checkpointer    Checkpointer
	metricsCallback func(collected int)
	lastKey         string
}

// NewCollector creates a new collector
func NewCollector(cfg *config.Config, fetcher Fetcher, checkpointer Checkpointer, metricsCallback func(int)) *Collector {
	return &Collector{
		quoteURL:        cfg.QuoteURL,
		checkpointEvery: cfg.CheckpointEvery,
		headers:         crawler.QuoteHeaders(cfg.Headers),
		fetcher:         fetcher,
		checkpointer:    checkpointer,
		metricsCallback: metricsCallback,
	}
}

// Collect walks keys in order starting at the first incomplete row. Rows
// that are already complete are skipped. The table is checkpointed whenever
// the number of complete rows reaches a multiple of the checkpoint interval,
// and once more when every key has been handled. Any error aborts the run
// without a further checkpoint.
func (c *Collector) Collect(ctx context.Context, keys []string, table *memory.Table) error {
	start := table.ResumeIndex(keys)
	complete := table.CompleteCount()
	logrus.Infof("Resuming collection at index %d of %d (%d complete)", start, len(keys), complete)

	c.lastKey = ""
	for _, key := range keys[start:] {
		if table.Complete(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		logrus.Infof("Collecting %s", key)
		values, err := c.fetchSnapshot(ctx, key, table.Schema().Width())
		if err != nil {
			return err
		}

		if err := table.Set(key, values); err != nil {
			return err
		}
		c.lastKey = key

		if !table.Complete(key) {
			logrus.Warnf("Snapshot for %s has no %s value", key, table.Schema().Probe)
			continue
		}
		if c.metricsCallback != nil {
			c.metricsCallback(1)
		}

		complete++
		if complete%c.checkpointEvery == 0 {
			if err := c.checkpointer.Checkpoint(table, c.lastKey); err != nil {
				return fmt.Errorf("failed to checkpoint results: %w", err)
			}
		}
	}

	if err := c.checkpointer.Checkpoint(table, c.lastKey); err != nil {
		return fmt.Errorf("failed to checkpoint results: %w", err)
	}
	logrus.Infof("Collection finished: %d of %d snapshots collected", table.CompleteCount(), len(keys))
	return nil
}

// Flush checkpoints the table as it stands, recording the last ticker
// collected by the current run. It is used to save an interrupted run.
func (c *Collector) Flush(table *memory.Table) error {
	return c.checkpointer.Checkpoint(table, c.lastKey)
}

// CheckResume compares the stored last collected ticker with the resume point
// derived from the table and warns when they disagree. It reports whether they
// agree; a run without stored progress always agrees.
func CheckResume(store *storage.Storage, table *memory.Table, keys []string) (bool, error) {
	p, err := store.LoadProgress(Component)
	if err != nil {
		return false, err
	}
	if p == nil || p.LastKey == "" {
		return true, nil
	}

	resume := table.ResumeIndex(keys)
	for i, k := range keys {
		if k != p.LastKey {
			continue
		}
		if resume != i+1 {
			logrus.Warnf("Last collected ticker was %s but the results file resumes at index %d of %d", p.LastKey, resume, len(keys))
			return false, nil
		}
		return true, nil
	}

	logrus.Warnf("Last collected ticker %s is no longer in the ticker list", p.LastKey)
	return false, nil
}

func (c *Collector) fetchSnapshot(ctx context.Context, key string, width int) ([]string, error) {
	page, err := c.fetcher.Get(ctx, crawler.QuoteURL(c.quoteURL, key), c.headers)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", key, err)
	}

	values, err := extract.Snapshot(page.Body, width)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", key, err)
	}
	return values, nil
}

// FileCheckpointer writes the results file and mirrors it to SQLite.
// OnSave, when set, runs after every successful checkpoint.
type FileCheckpointer struct {
	Path   string
	Layout string
	Store  *storage.Storage
	OnSave func()
}

// Checkpoint implements Checkpointer
func (f *FileCheckpointer) Checkpoint(table *memory.Table, lastKey string) error {
	if err := table.Flush(f.Path, f.Layout, f.Store); err != nil {
		return err
	}
	if f.Store != nil && lastKey != "" {
		if err := f.Store.SaveProgress(storage.Progress{Component: Component, LastKey: lastKey}); err != nil {
			return err
		}
	}
	if f.OnSave != nil {
		f.OnSave()
	}
	return nil
}
