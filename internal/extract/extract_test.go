package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func listingPage(tickers ...string) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><table class="screener_table"><tr><th>No.</th><th>Ticker</th></tr>`)
	for i, t := range tickers {
		fmt.Fprintf(&b, `<tr><td align="right">%d</td>`, i+1)
		fmt.Fprintf(&b, `<td align="left" data-boxover="cssbody=[hoverchart] cssheader=[tabchrthdr] body=[x]"><a href="quote.ashx?t=%s">%s</a></td>`, t, t)
		fmt.Fprintf(&b, `<td align="left"><a href="screener.ashx?f=sec_%d">Sector</a></td></tr>`, i)
	}
	b.WriteString(`</table></body></html>`)
	return []byte(b.String())
}

// snapshotPage renders rows × pairs label/value cells. Values are "v<pair>.<row>".
func snapshotPage(rows, pairs int, short map[int]bool) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><table class="fullview-title"><tr><td>noise</td></tr></table>`)
	b.WriteString(`<table class="snapshot-table2">`)
	for r := 0; r < rows; r++ {
		b.WriteString("<tr>")
		for p := 0; p < pairs; p++ {
			fmt.Fprintf(&b, `<td class="snapshot-td2-cp">L%d.%d</td>`, p, r)
			if short[r] && p == pairs-1 {
				continue
			}
			fmt.Fprintf(&b, `<td class="snapshot-td2"><b> v%d.%d </b></td>`, p, r)
		}
		b.WriteString("</tr>")
	}
	b.WriteString(`</table></body></html>`)
	return []byte(b.String())
}

func TestTickers(t *testing.T) {
	got, err := Tickers(listingPage("A", "AA", "AACG", "AA"))
	require.NoError(t, err)
	require.Equal(t, []string{"A", "AA", "AACG"}, got)
}

func TestTickersIgnoresCellsWithoutHoverChart(t *testing.T) {
	page := []byte(`<table>
		<tr><td align="left" data-boxover="cssbody=[tooltip]"><a>NOPE</a></td></tr>
		<tr><td align="right" data-boxover="cssbody=[hoverchart]"><a>RIGHT</a></td></tr>
		<tr><td align="left" data-boxover="cssbody=[hoverchart]">NOLINK</td></tr>
		<tr><td align="left" data-boxover="cssbody=[hoverchart]"><a> MSFT </a></td></tr>
	</table>`)

	got, err := Tickers(page)
	require.NoError(t, err)
	require.Equal(t, []string{"MSFT"}, got)
}

func TestTickersEmptyPage(t *testing.T) {
	got, err := Tickers([]byte(`<html><body>No results</body></html>`))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSnapshotFullTable(t *testing.T) {
	got, err := Snapshot(snapshotPage(13, PairsPerRow, nil), 78)
	require.NoError(t, err)
	require.Len(t, got, 78)

	// pair-major: the first 13 values are the first value column
	require.Equal(t, "v0.0", got[0])
	require.Equal(t, "v0.12", got[12])
	require.Equal(t, "v1.0", got[13])
	require.Equal(t, "v5.12", got[77])
}

func TestSnapshotOrder(t *testing.T) {
	got, err := Snapshot(snapshotPage(2, PairsPerRow, nil), 12)
	require.NoError(t, err)

	want := []string{
		"v0.0", "v0.1",
		"v1.0", "v1.1",
		"v2.0", "v2.1",
		"v3.0", "v3.1",
		"v4.0", "v4.1",
		"v5.0", "v5.1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot order mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotShortRow(t *testing.T) {
	_, err := Snapshot(snapshotPage(6, PairsPerRow, map[int]bool{3: true}), 36)
	require.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
}

func TestSnapshotWidthMismatch(t *testing.T) {
	_, err := Snapshot(snapshotPage(6, PairsPerRow, nil), 78)
	require.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
}

func TestSnapshotMissingTable(t *testing.T) {
	_, err := Snapshot([]byte(`<html><body><table class="other"></table></body></html>`), 78)
	require.True(t, errors.Is(err, ErrTableNotFound), "got %v", err)
}

func TestSnapshotJoinsNestedText(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<table class="snapshot-table2"><tr>`)
	cells := []string{
		`<span>164.08</span> - <span>260.10</span>`,
		`<b> 2.1B </b>`,
		`<a href="#"><span class="is-positive">1.5%</span></a>`,
		` 12 <!-- prev -->`,
		`<small>Oct</small>
		<small>30</small>`,
		`-`,
	}
	for i, c := range cells {
		fmt.Fprintf(&b, `<td>L%d</td><td>%s</td>`, i, c)
	}
	b.WriteString(`</tr></table>`)

	got, err := Snapshot([]byte(b.String()), PairsPerRow)
	require.NoError(t, err)
	require.Equal(t, []string{"164.08-260.10", "2.1B", "1.5%", "12", "Oct30", "-"}, got)
}
