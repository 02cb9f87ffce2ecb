package edgar

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seclens/rotograph/internal/contracts"
)

// infoTableDoc is the 13F information table XML.
type infoTableDoc struct {
	Entries []infoTableEntry `xml:"infoTable"`
}

type infoTableEntry struct {
	NameOfIssuer string `xml:"nameOfIssuer"`
	CUSIP        string `xml:"cusip"`
	Value        string `xml:"value"` // reported in $thousands
	Shares       string `xml:"shrsOrPrnAmt>sshPrnamt"`
}

// scheduleDoc is the structured Schedule 13D/13G primary document XML the
// SEC has required since December 2024.
type scheduleDoc struct {
	ReportingCIK    string `xml:"headerData>filerInfo>filer>filerCredentials>cik"`
	CUSIP           string `xml:"formData>coverPageHeader>issuerInfo>issuerCUSIP"`
	EventDate       string `xml:"formData>coverPageHeader>eventDateRequiresFilingThisStatement"`
	PercentOfClass  string `xml:"formData>reportingPersonDetails>percentOfClass"`
	SharesOwned     string `xml:"formData>reportingPersonDetails>aggregateAmountOwned"`
	ReportingPerson string `xml:"formData>reportingPersonDetails>reportingPersonName"`
}

// FetchHoldings returns the ordered holdings series for the issuer's CUSIPs
// across the period. Schedule 13D/13G filings carry a percent-of-class
// directly; 13F rows are normalized against the manager's peak position in
// the window so both land on the same fractional scale.
func (c *Client) FetchHoldings(ctx context.Context, cik string, cusips []string, period contracts.Period) ([]*contracts.HoldingPoint, error) {
	if len(cusips) == 0 {
		return nil, fmt.Errorf("%w: no CUSIPs to fetch", contracts.ErrInputInvalid)
	}

	filings, err := c.FetchFilingIndex(ctx, cik, period)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(cusips))
	for _, cusip := range cusips {
		wanted[cusip] = true
	}

	var points []*contracts.HoldingPoint
	for _, filing := range filings {
		var (
			batch []*contracts.HoldingPoint
			err   error
		)
		if strings.HasPrefix(filing.Kind, "13F") {
			batch, err = c.fetchInfoTable(ctx, filing, wanted)
		} else {
			batch, err = c.fetchSchedule(ctx, filing, wanted)
		}
		if err != nil {
			return nil, err
		}
		points = append(points, batch...)
	}

	normalizeFractions(points)

	sort.Slice(points, func(i, j int) bool {
		if points[i].CIK != points[j].CIK {
			return points[i].CIK < points[j].CIK
		}
		if points[i].CUSIP != points[j].CUSIP {
			return points[i].CUSIP < points[j].CUSIP
		}
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		return points[i].Accession < points[j].Accession
	})

	return points, nil
}

func (c *Client) fetchInfoTable(ctx context.Context, filing *contracts.Filing, wanted map[string]bool) ([]*contracts.HoldingPoint, error) {
	docURL := c.archiveURL(filing, "infotable.xml")
	resp, err := c.httpClient.Get(ctx, docURL)
	if err != nil {
		return nil, contracts.Retryable(fmt.Errorf("fetch info table %s: %w", filing.Accession, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		// Paper or pre-XML filing; nothing to extract
		return nil, nil
	}
	if resp.StatusCode != 200 {
		return nil, classifyStatus(resp.StatusCode, "info table")
	}

	var doc infoTableDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, contracts.Terminal(fmt.Errorf("decode info table %s: %w", filing.Accession, err))
	}

	var points []*contracts.HoldingPoint
	for _, entry := range doc.Entries {
		if !wanted[entry.CUSIP] {
			continue
		}
		shares, err := decimal.NewFromString(strings.TrimSpace(entry.Shares))
		if err != nil {
			return nil, contracts.Terminal(fmt.Errorf("info table %s: bad share count %q", filing.Accession, entry.Shares))
		}
		value, err := decimal.NewFromString(strings.TrimSpace(entry.Value))
		if err != nil {
			return nil, contracts.Terminal(fmt.Errorf("info table %s: bad value %q", filing.Accession, entry.Value))
		}

		points = append(points, &contracts.HoldingPoint{
			CIK:        filing.CIK,
			CUSIP:      entry.CUSIP,
			Date:       filing.FiledAt,
			Shares:     shares,
			ValueUSD:   value,
			Accession:  filing.Accession,
			FilingKind: "13F",
		})
	}

	return points, nil
}

func (c *Client) fetchSchedule(ctx context.Context, filing *contracts.Filing, wanted map[string]bool) ([]*contracts.HoldingPoint, error) {
	docURL := c.archiveURL(filing, "primary_doc.xml")
	resp, err := c.httpClient.Get(ctx, docURL)
	if err != nil {
		return nil, contracts.Retryable(fmt.Errorf("fetch schedule %s: %w", filing.Accession, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		// Legacy free-text schedule; nothing structured to extract
		return nil, nil
	}
	if resp.StatusCode != 200 {
		return nil, classifyStatus(resp.StatusCode, "schedule")
	}

	var doc scheduleDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, contracts.Terminal(fmt.Errorf("decode schedule %s: %w", filing.Accession, err))
	}
	if !wanted[doc.CUSIP] {
		return nil, nil
	}

	percent, err := decimal.NewFromString(strings.TrimSpace(doc.PercentOfClass))
	if err != nil {
		return nil, contracts.Terminal(fmt.Errorf("schedule %s: bad percent %q", filing.Accession, doc.PercentOfClass))
	}
	fraction, _ := percent.Div(decimal.NewFromInt(100)).Float64()

	shares := decimal.Zero
	if s := strings.TrimSpace(doc.SharesOwned); s != "" {
		if shares, err = decimal.NewFromString(s); err != nil {
			return nil, contracts.Terminal(fmt.Errorf("schedule %s: bad share count %q", filing.Accession, doc.SharesOwned))
		}
	}

	date := filing.FiledAt
	if d, err := time.Parse("2006-01-02", strings.TrimSpace(doc.EventDate)); err == nil {
		date = d
	}

	kind := "13G"
	if strings.Contains(filing.Kind, "13D") {
		kind = "13D"
	}

	return []*contracts.HoldingPoint{{
		CIK:        doc.ReportingCIK,
		CUSIP:      doc.CUSIP,
		Date:       date,
		Fraction:   fraction,
		Shares:     shares,
		Accession:  filing.Accession,
		FilingKind: kind,
	}}, nil
}

// archiveURL builds the document path under /Archives for a filing.
func (c *Client) archiveURL(filing *contracts.Filing, doc string) string {
	cikNum := strings.TrimLeft(filing.CIK, "0")
	accFlat := strings.ReplaceAll(filing.Accession, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.baseURL, cikNum, accFlat, doc)
}

// normalizeFractions fills Fraction on 13F points by scaling shares against
// the manager's peak position in the window. Schedule points already carry a
// percent-of-class and are left alone.
func normalizeFractions(points []*contracts.HoldingPoint) {
	peaks := make(map[string]decimal.Decimal)
	for _, p := range points {
		if p.FilingKind != "13F" {
			continue
		}
		key := p.CIK + "|" + p.CUSIP
		if p.Shares.GreaterThan(peaks[key]) {
			peaks[key] = p.Shares
		}
	}

	for _, p := range points {
		if p.FilingKind != "13F" {
			continue
		}
		peak := peaks[p.CIK+"|"+p.CUSIP]
		if peak.IsPositive() {
			p.Fraction, _ = p.Shares.Div(peak).Float64()
		}
	}
}
