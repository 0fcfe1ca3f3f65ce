// Package extract pulls records out of listing and quote pages.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrTableNotFound means the quote page has no attributes table
	ErrTableNotFound = errors.New("attributes table not found")

	// ErrShapeMismatch means the attributes table does not have the expected layout
	ErrShapeMismatch = errors.New("attributes table shape mismatch")
)

const (
	// attributesTable is the selector of the label/value table on a quote page
	attributesTable = "table.snapshot-table2"

	// PairsPerRow is the number of label/value pairs on each attributes row
	PairsPerRow = 6
)

var hoverChart = regexp.MustCompile(`cssbody=\[hoverchart\]`)

// Tickers returns the ticker links of a listing page in document order,
// without duplicates. An empty slice means the page has no result rows.
func Tickers(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]bool)
	tickers := []string{}

	doc.Find(`td[align="left"][data-boxover]`).Each(func(i int, s *goquery.Selection) {
		if !hoverChart.MatchString(s.AttrOr("data-boxover", "")) {
			return
		}

		a := s.Find("a").First()
		if a.Length() == 0 {
			return
		}

		ticker := strings.TrimSpace(a.Text())
		if ticker == "" || seen[ticker] {
			return
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	})

	return tickers, nil
}

// Snapshot returns the value cells of the attributes table, all rows of the
// first pair, then all rows of the second pair, and so on. The result must
// hold exactly width values.
func Snapshot(body []byte, width int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find(attributesTable).First()
	if table.Length() == 0 {
		return nil, ErrTableNotFound
	}

	var cells [][]string
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var row []string
		tr.ChildrenFiltered("td").Each(func(j int, td *goquery.Selection) {
			row = append(row, strippedText(td))
		})
		cells = append(cells, row)
	})

	for i, row := range cells {
		if len(row) < 2*PairsPerRow {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrShapeMismatch, i, len(row), 2*PairsPerRow)
		}
	}

	values := make([]string, 0, len(cells)*PairsPerRow)
	for pair := 0; pair < PairsPerRow; pair++ {
		for _, row := range cells {
			values = append(values, row[2*pair+1])
		}
	}

	if len(values) != width {
		return nil, fmt.Errorf("%w: extracted %d values, schema has %d", ErrShapeMismatch, len(values), width)
	}

	return values, nil
}

// strippedText joins the trimmed text nodes under s with no separator, so
// "<b>1</b> - <b>2</b>" reads "1-2".
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			switch goquery.NodeName(node) {
			case "#text":
				b.WriteString(strings.TrimSpace(node.Text()))
			case "#comment":
			default:
				walk(node)
			}
		})
	}
	walk(s)
	return b.String()
}
