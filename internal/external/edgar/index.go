package edgar

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seclens/rotograph/internal/contracts"
)

// ownershipForms are the filing types that move ownership state.
var ownershipForms = []string{"13F-HR", "SC 13G", "SC 13D"}

// FetchFilingIndex lists ownership filings for a CIK inside the period.
// EDGAR serves the company browse page as HTML; one request per form type.
func (c *Client) FetchFilingIndex(ctx context.Context, cik string, period contracts.Period) ([]*contracts.Filing, error) {
	if cik == "" {
		return nil, fmt.Errorf("%w: empty CIK", contracts.ErrInputInvalid)
	}

	var filings []*contracts.Filing
	for _, form := range ownershipForms {
		page, err := c.fetchBrowsePage(ctx, cik, form, period)
		if err != nil {
			return nil, err
		}
		filings = append(filings, page...)
	}

	sort.Slice(filings, func(i, j int) bool {
		if !filings[i].FiledAt.Equal(filings[j].FiledAt) {
			return filings[i].FiledAt.Before(filings[j].FiledAt)
		}
		return filings[i].Accession < filings[j].Accession
	})

	return filings, nil
}

func (c *Client) fetchBrowsePage(ctx context.Context, cik, form string, period contracts.Period) ([]*contracts.Filing, error) {
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", cik)
	q.Set("type", form)
	q.Set("datea", period.Start.Format("20060102"))
	q.Set("dateb", period.End.Format("20060102"))
	q.Set("owner", "include")
	q.Set("count", strconv.Itoa(c.pageSize))

	browseURL := c.baseURL + "/cgi-bin/browse-edgar?" + q.Encode()
	resp, err := c.httpClient.Get(ctx, browseURL)
	if err != nil {
		return nil, contracts.Retryable(fmt.Errorf("fetch filing index: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, classifyStatus(resp.StatusCode, "filing index")
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, contracts.Terminal(fmt.Errorf("parse filing index: %w", err))
	}

	var filings []*contracts.Filing
	doc.Find("table.tableFile2 tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return // header row
		}

		kind := strings.TrimSpace(cells.Eq(0).Text())
		description := cells.Eq(2).Text()
		filedAt, err := time.Parse("2006-01-02", strings.TrimSpace(cells.Eq(3).Text()))
		if err != nil {
			return
		}

		accession := extractAccession(description)
		if accession == "" || !period.Contains(filedAt) {
			return
		}

		filings = append(filings, &contracts.Filing{
			CIK:       cik,
			Accession: accession,
			Kind:      kind,
			FiledAt:   filedAt,
		})
	})

	return filings, nil
}

// FetchNewSubmissions returns ownership filings that landed in
// [windowStart, windowEnd), newest-first pages of EDGAR's current-events
// feed, plus the latest acceptance time observed as the next cursor hint.
func (c *Client) FetchNewSubmissions(ctx context.Context, windowStart, windowEnd time.Time) ([]*contracts.Filing, time.Time, error) {
	if !windowEnd.After(windowStart) {
		return nil, time.Time{}, fmt.Errorf("%w: empty submission window", contracts.ErrInputInvalid)
	}

	var (
		filings []*contracts.Filing
		hint    time.Time
	)

	for _, form := range ownershipForms {
		q := url.Values{}
		q.Set("action", "getcurrent")
		q.Set("type", form)
		q.Set("owner", "include")
		q.Set("count", strconv.Itoa(c.pageSize))
		q.Set("output", "atom")

		feedURL := c.baseURL + "/cgi-bin/browse-edgar?" + q.Encode()
		resp, err := c.httpClient.Get(ctx, feedURL)
		if err != nil {
			return nil, time.Time{}, contracts.Retryable(fmt.Errorf("fetch current filings: %w", err))
		}

		if resp.StatusCode != 200 {
			resp.Body.Close()
			return nil, time.Time{}, classifyStatus(resp.StatusCode, "current filings")
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, time.Time{}, contracts.Terminal(fmt.Errorf("parse current filings: %w", err))
		}

		doc.Find("entry").Each(func(i int, entry *goquery.Selection) {
			filedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Find("updated").Text()))
			if err != nil {
				return
			}
			filedAt = filedAt.UTC()
			if filedAt.After(hint) {
				hint = filedAt
			}
			if filedAt.Before(windowStart) || !filedAt.Before(windowEnd) {
				return
			}

			title := strings.TrimSpace(entry.Find("title").Text())
			accession := extractAccession(entry.Find("id").Text())
			if accession == "" {
				return
			}

			filings = append(filings, &contracts.Filing{
				CIK:       extractCIK(entry.Find("link").AttrOr("href", "")),
				Accession: accession,
				Kind:      form,
				FiledAt:   filedAt,
				Name:      filerName(title),
			})
		})
	}

	sort.Slice(filings, func(i, j int) bool {
		if !filings[i].FiledAt.Equal(filings[j].FiledAt) {
			return filings[i].FiledAt.Before(filings[j].FiledAt)
		}
		return filings[i].Accession < filings[j].Accession
	})

	return filings, hint, nil
}

// extractAccession pulls the accession number out of free text such as
// "Acc-no: 0001193125-24-012345 (34 Act)" or an atom id urn.
func extractAccession(s string) string {
	for _, marker := range []string{"Acc-no:", "accession-number="} {
		if idx := strings.Index(s, marker); idx >= 0 {
			rest := strings.TrimSpace(s[idx+len(marker):])
			end := 0
			for end < len(rest) && (rest[end] == '-' || (rest[end] >= '0' && rest[end] <= '9')) {
				end++
			}
			if end >= 18 { // 0000000000-00-000000
				return rest[:end]
			}
		}
	}
	return ""
}

// extractCIK parses a CIK out of a browse-edgar href.
func extractCIK(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("CIK")
}

// filerName strips the form prefix from an atom entry title:
// "SC 13D - Example Capital LP (0001234567) (Filed by)" -> "Example Capital LP".
func filerName(title string) string {
	if idx := strings.Index(title, " - "); idx >= 0 {
		title = title[idx+3:]
	}
	if idx := strings.Index(title, " ("); idx >= 0 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}
