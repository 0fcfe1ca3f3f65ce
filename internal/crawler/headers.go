package crawler

import "net/http"

// The listing and quote pages reject requests that do not look like they
// come from a browser. Accept-Encoding is left to the transport so bodies
// are decompressed transparently.

// ListingHeaders returns the header set used for listing pages
func ListingHeaders(extra map[string]string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9,ko;q=0.8")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Referer", "https://finviz.com/")
	h.Set("Cache-Control", "max-age=0")
	return merge(h, extra)
}

// QuoteHeaders returns the header set used for quote pages
func QuoteHeaders(extra map[string]string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "ko-KR,ko;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("Referer", "https://finviz.com/")
	return merge(h, extra)
}

func merge(h http.Header, extra map[string]string) http.Header {
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}
