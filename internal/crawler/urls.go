package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// OffsetParam is the listing query parameter holding the 1-based index of
// the first row on a page
const OffsetParam = "r"

// ListingPageURL returns the URL of the zero-based listing page
func ListingPageURL(listingURL string, page, pageSize int) (string, error) {
	parsed, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid listing URL %q: missing scheme or host", listingURL)
	}

	q := parsed.Query()
	q.Set(OffsetParam, strconv.Itoa(1+page*pageSize))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// QuoteURL substitutes the ticker into a quote URL template
func QuoteURL(template, ticker string) string {
	return strings.ReplaceAll(template, "{ticker}", url.QueryEscape(ticker))
}
