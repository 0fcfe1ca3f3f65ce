// Package discovery walks the paginated listing and accumulates tickers
// until the listing starts repeating itself.
package discovery

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

// Component is the progress key of a discovery run
const Component = "discovery"

// Fetcher returns a page once it answered 200
type Fetcher interface {
	Get(ctx context.Context, url string, headers http.Header) (*crawler.Page, error)
}

// Checkpointer persists the ticker set together with the next page to fetch
type Checkpointer interface {
	Checkpoint(set *memory.TickerSet, page int) error
}

// Result summarizes a run. Page is the page the run stopped at.
type Result struct {
	Page         int
	PagesFetched int
	Added        int
}

// Discoverer runs the Init -> Paging -> Done state machine over the listing
type Discoverer struct {
	listingURL      string
	pageSize        int
	checkpointEvery int
	headers         http.Header
	fetcher         Fetcher
	checkpointer    Checkpointer
	metricsCallback func(pagesFetched, tickersAdded int)
}

// NewDiscoverer creates a new discoverer
func NewDiscoverer(cfg *config.Config, fetcher Fetcher, checkpointer Checkpointer, metricsCallback func(int, int)) *Discoverer {
	return &Discoverer{
		listingURL:      cfg.ListingURL,
		pageSize:        cfg.PageSize,
		checkpointEvery: cfg.CheckpointEvery,
		headers:         crawler.ListingHeaders(cfg.Headers),
		fetcher:         fetcher,
		checkpointer:    checkpointer,
		metricsCallback: metricsCallback,
	}
}

// Run pages through the listing from start, adding every ticker to set. It
// stops when a page is empty or carries exactly the tickers of the page
// before it, and always checkpoints on that transition.
func (d *Discoverer) Run(ctx context.Context, set *memory.TickerSet, start int) (Result, error) {
	res := Result{Page: start}
	var previous []string

	logrus.Infof("Starting discovery at page %d with %d known tickers", start, set.Len())

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		url, err := crawler.ListingPageURL(d.listingURL, res.Page, d.pageSize)
		if err != nil {
			return res, err
		}

		page, err := d.fetcher.Get(ctx, url, d.headers)
		if err != nil {
			return res, fmt.Errorf("listing page %d: %w", res.Page, err)
		}
		res.PagesFetched++

		tickers, err := extract.Tickers(page.Body)
		if err != nil {
			return res, fmt.Errorf("listing page %d: %w", res.Page, err)
		}

		if len(tickers) == 0 || sameTickers(tickers, previous) {
			logrus.Infof("Reached the last listing page (page %d)", res.Page)
			if d.metricsCallback != nil {
				d.metricsCallback(1, 0)
			}
			if err := d.checkpointer.Checkpoint(set, res.Page); err != nil {
				return res, fmt.Errorf("failed to checkpoint tickers: %w", err)
			}
			return res, nil
		}

		added := set.Add(tickers...)
		res.Added += added
		previous = tickers
		res.Page++

		logrus.Infof("Listing page %d: %d tickers, %d new, %d total", res.Page-1, len(tickers), added, set.Len())
		if d.metricsCallback != nil {
			d.metricsCallback(1, added)
		}

		if res.Page%d.checkpointEvery == 0 {
			if err := d.checkpointer.Checkpoint(set, res.Page); err != nil {
				return res, fmt.Errorf("failed to checkpoint tickers: %w", err)
			}
		}
	}
}

// sameTickers compares two pages as sets
func sameTickers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		seen[t] = true
	}
	for _, t := range a {
		if !seen[t] {
			return false
		}
	}
	return true
}

// StartPage picks the first page to fetch. Restart mode always begins at
// page zero. Resume mode continues from the stored progress, or from the page
// implied by the number of known tickers when nothing was stored.
func StartPage(mode string, set *memory.TickerSet, store *storage.Storage, pageSize int) (int, error) {
	if mode != config.ModeResume {
		return 0, nil
	}

	if store != nil {
		p, err := store.LoadProgress(Component)
		if err != nil {
			return 0, err
		}
		if p != nil {
			return p.Page, nil
		}
	}

	return set.Len() / pageSize, nil
}

// FileCheckpointer writes the ticker list file and mirrors it to SQLite.
// OnSave, when set, runs after every successful checkpoint.
type FileCheckpointer struct {
	Path   string
	Store  *storage.Storage
	OnSave func()
}

// Checkpoint implements Checkpointer
func (c *FileCheckpointer) Checkpoint(set *memory.TickerSet, page int) error {
	if err := set.Flush(c.Path, c.Store); err != nil {
		return err
	}
	if c.Store != nil {
		if err := c.Store.SaveProgress(storage.Progress{Component: Component, Page: page}); err != nil {
			return err
		}
	}
	if c.OnSave != nil {
		c.OnSave()
	}
	return nil
}
