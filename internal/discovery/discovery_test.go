package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alvmarrod/ticker-weaver/internal/config"
	"github.com/alvmarrod/ticker-weaver/internal/crawler"
	"github.com/alvmarrod/ticker-weaver/internal/memory"
	"github.com/alvmarrod/ticker-weaver/internal/storage"
	"github.com/stretchr/testify/require"
)

func listingHTML(tickers []string) []byte {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	for _, t := range tickers {
		fmt.Fprintf(&b, `<tr><td align="left" data-boxover="cssbody=[hoverchart] body=[x]"><a href="quote.ashx?t=%s">%s</a></td></tr>`, t, t)
	}
	b.WriteString("</table></body></html>")
	return []byte(b.String())
}

// pagedListing serves pages[i] for page i and repeats the last page for
// every offset past the end, the way the real listing behaves
type pagedListing struct {
	pages     [][]string
	pageSize  int
	requested []int
	fail      map[int]error
}

func (l *pagedListing) Get(ctx context.Context, rawURL string, headers http.Header) (*crawler.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	offset, err := strconv.Atoi(u.Query().Get(crawler.OffsetParam))
	if err != nil {
		return nil, err
	}
	page := (offset - 1) / l.pageSize
	l.requested = append(l.requested, page)

	if err := l.fail[page]; err != nil {
		return nil, err
	}

	idx := page
	if idx >= len(l.pages) {
		idx = len(l.pages) - 1
	}
	return &crawler.Page{URL: rawURL, StatusCode: http.StatusOK, Body: listingHTML(l.pages[idx])}, nil
}

type checkpoint struct {
	page    int
	tickers []string
}

type recordingCheckpointer struct {
	saves []checkpoint
}

func (r *recordingCheckpointer) Checkpoint(set *memory.TickerSet, page int) error {
	r.saves = append(r.saves, checkpoint{page: page, tickers: set.Sorted()})
	return nil
}

func makePages(n, size int) [][]string {
	pages := make([][]string, n)
	for p := range pages {
		for i := 0; i < size; i++ {
			pages[p] = append(pages[p], fmt.Sprintf("T%03d", p*size+i))
		}
	}
	return pages
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ListingURL = "https://listing.test/screener.ashx?v=111"
	cfg.PageSize = 3
	cfg.CheckpointEvery = 10
	return cfg
}

func TestRunStopsWhenListingRepeats(t *testing.T) {
	cfg := testConfig()
	listing := &pagedListing{pages: makePages(3, cfg.PageSize), pageSize: cfg.PageSize}
	cp := &recordingCheckpointer{}

	set := memory.NewTickerSet()
	res, err := NewDiscoverer(cfg, listing, cp, nil).Run(context.Background(), set, 0)
	require.NoError(t, err)

	require.Equal(t, []int{0, 1, 2, 3}, listing.requested)
	require.Equal(t, 3, res.Page)
	require.Equal(t, 4, res.PagesFetched)
	require.Equal(t, 9, res.Added)
	require.Equal(t, 9, set.Len())

	require.Len(t, cp.saves, 1)
	require.Equal(t, 3, cp.saves[0].page)
	require.Equal(t, set.Sorted(), cp.saves[0].tickers)
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	cfg := testConfig()
	pages := append(makePages(2, cfg.PageSize), nil)
	listing := &pagedListing{pages: pages, pageSize: cfg.PageSize}
	cp := &recordingCheckpointer{}

	set := memory.NewTickerSet()
	res, err := NewDiscoverer(cfg, listing, cp, nil).Run(context.Background(), set, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Page)
	require.Equal(t, 6, set.Len())
	require.Len(t, cp.saves, 1)
}

func TestRunNeverShrinksSet(t *testing.T) {
	cfg := testConfig()
	listing := &pagedListing{pages: makePages(2, cfg.PageSize), pageSize: cfg.PageSize}

	set := memory.NewTickerSet("ZZZ", "DELISTED")
	before := set.Sorted()

	_, err := NewDiscoverer(cfg, listing, &recordingCheckpointer{}, nil).Run(context.Background(), set, 0)
	require.NoError(t, err)

	for _, t0 := range before {
		require.True(t, set.Contains(t0), "lost %s", t0)
	}
	require.Equal(t, len(before)+6, set.Len())
}

func TestRunCheckpointsEveryTenPages(t *testing.T) {
	cfg := testConfig()
	listing := &pagedListing{pages: makePages(25, cfg.PageSize), pageSize: cfg.PageSize}
	cp := &recordingCheckpointer{}

	set := memory.NewTickerSet()
	_, err := NewDiscoverer(cfg, listing, cp, nil).Run(context.Background(), set, 0)
	require.NoError(t, err)

	var pages []int
	for _, s := range cp.saves {
		pages = append(pages, s.page)
	}
	require.Equal(t, []int{10, 20, 25}, pages)
	require.Len(t, cp.saves[0].tickers, 10*cfg.PageSize)
}

func TestRunFatalFetchError(t *testing.T) {
	cfg := testConfig()
	boom := &crawler.StatusError{URL: "x", Code: http.StatusForbidden}
	listing := &pagedListing{
		pages:    makePages(5, cfg.PageSize),
		pageSize: cfg.PageSize,
		fail:     map[int]error{2: boom},
	}
	cp := &recordingCheckpointer{}

	set := memory.NewTickerSet()
	res, err := NewDiscoverer(cfg, listing, cp, nil).Run(context.Background(), set, 0)

	var statusErr *crawler.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, 2, res.Page)
	require.Empty(t, cp.saves)
	require.Equal(t, 6, set.Len())
}

func TestRunResumesFromStartPage(t *testing.T) {
	cfg := testConfig()
	listing := &pagedListing{pages: makePages(4, cfg.PageSize), pageSize: cfg.PageSize}

	set := memory.NewTickerSet()
	_, err := NewDiscoverer(cfg, listing, &recordingCheckpointer{}, nil).Run(context.Background(), set, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4}, listing.requested)
}

func TestRunReportsMetrics(t *testing.T) {
	cfg := testConfig()
	listing := &pagedListing{pages: makePages(2, cfg.PageSize), pageSize: cfg.PageSize}

	var fetched, added int
	callback := func(pages, tickers int) {
		fetched += pages
		added += tickers
	}

	_, err := NewDiscoverer(cfg, listing, &recordingCheckpointer{}, callback).Run(context.Background(), memory.NewTickerSet(), 0)
	require.NoError(t, err)
	require.Equal(t, 3, fetched)
	require.Equal(t, 6, added)
}

func TestStartPage(t *testing.T) {
	set := memory.NewTickerSet(makePages(3, 20)[0]...)
	set.Add(makePages(3, 20)[1]...)
	set.Add("EXTRA")

	page, err := StartPage(config.ModeRestart, set, nil, 20)
	require.NoError(t, err)
	require.Equal(t, 0, page)

	page, err = StartPage(config.ModeResume, set, nil, 20)
	require.NoError(t, err)
	require.Equal(t, 2, page)

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "weaver.db"))
	require.NoError(t, err)
	defer store.Close()

	page, err = StartPage(config.ModeResume, set, store, 20)
	require.NoError(t, err)
	require.Equal(t, 2, page)

	require.NoError(t, store.SaveProgress(storage.Progress{Component: Component, Page: 17}))
	page, err = StartPage(config.ModeResume, set, store, 20)
	require.NoError(t, err)
	require.Equal(t, 17, page)
}

func TestFileCheckpointer(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "weaver.db"))
	require.NoError(t, err)
	defer store.Close()

	cp := &FileCheckpointer{Path: filepath.Join(dir, "tickers.csv"), Store: store}
	require.NoError(t, cp.Checkpoint(memory.NewTickerSet("B", "A"), 4))

	tickers, err := storage.ReadTickers(cp.Path)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, tickers)

	p, err := store.LoadProgress(Component)
	require.NoError(t, err)
	require.Equal(t, 4, p.Page)
}

func TestRunOverHTTPWithRateLimiting(t *testing.T) {
	pages := makePages(2, 3)
	var limited atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// every page answers 429 once before serving content
		if limited.Add(1)%2 == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get(crawler.OffsetParam))
		idx := (offset - 1) / 3
		if idx >= len(pages) {
			idx = len(pages) - 1
		}
		w.Write(listingHTML(pages[idx]))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ListingURL = server.URL + "/screener.ashx?v=111"

	client := crawler.NewClient(cfg, nil)
	client.SetRetryPolicy(crawler.RetryPolicy{
		Attempts:   3,
		Initial:    time.Millisecond,
		Max:        2 * time.Millisecond,
		Multiplier: 2,
	})

	dir := t.TempDir()
	cp := &FileCheckpointer{Path: filepath.Join(dir, "tickers.csv")}

	set := memory.NewTickerSet()
	res, err := NewDiscoverer(cfg, client, cp, nil).Run(context.Background(), set, 0)
	require.NoError(t, err)
	require.Equal(t, 2, res.Page)
	require.Equal(t, 3, res.PagesFetched)
	require.Equal(t, int32(6), limited.Load())

	tickers, err := storage.ReadTickers(cp.Path)
	require.NoError(t, err)
	require.Equal(t, []string{"T000", "T001", "T002", "T003", "T004", "T005"}, tickers)
}
