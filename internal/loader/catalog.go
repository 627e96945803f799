package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/taxico2/internal/contracts"
)

// PageGetter fetches an HTML page
type PageGetter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// CatalogEntry is one extract link published on the catalog page
type CatalogEntry struct {
	CabType contracts.CabType `json:"cab_type"`
	Year    int               `json:"year"`
	Month   int               `json:"month"`
	URL     string            `json:"url"`
}

// Key identifies the extract independent of its host
func (e CatalogEntry) Key() string {
	return ExtractName(e.CabType, e.Year, e.Month)
}

var extractLinkRe = regexp.MustCompile(`(yellow|green)_tripdata_(\d{4})-(\d{2})\.parquet`)

// FetchCatalog lists the yellow and green extracts linked from the catalog page
func FetchCatalog(ctx context.Context, client PageGetter, pageURL string) ([]CatalogEntry, error) {
	resp, err := client.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}

	return ParseCatalog(resp.Body)
}

// ParseCatalog extracts trip data links from catalog HTML, deduplicated and
// sorted by cab type then month
func ParseCatalog(r io.Reader) ([]CatalogEntry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	var entries []CatalogEntry

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)

		m := extractLinkRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		year, _ := strconv.Atoi(m[2])
		month, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 {
			return
		}

		entry := CatalogEntry{
			CabType: contracts.CabType(m[1]),
			Year:    year,
			Month:   month,
			URL:     href,
		}
		if seen[entry.Key()] {
			return
		}
		seen[entry.Key()] = true
		entries = append(entries, entry)
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CabType != entries[j].CabType {
			return entries[i].CabType > entries[j].CabType // yellow first
		}
		if entries[i].Year != entries[j].Year {
			return entries[i].Year < entries[j].Year
		}
		return entries[i].Month < entries[j].Month
	})

	return entries, nil
}

// MissingExtracts returns the scope months the catalog does not publish
func MissingExtracts(scope contracts.Scope, entries []CatalogEntry) []string {
	published := make(map[string]bool, len(entries))
	for _, e := range entries {
		published[e.Key()] = true
	}

	var missing []string
	for _, cab := range contracts.CabTypes {
		for _, m := range scope.Months() {
			name := ExtractName(cab, m.Year(), int(m.Month()))
			if !published[name] {
				missing = append(missing, name)
			}
		}
	}
	return missing
}
