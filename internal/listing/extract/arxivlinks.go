package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mboyd/paperflow/internal/listing"
)

// titleProbeLevels is how many ancestors are searched for a usable title.
const titleProbeLevels = 3

// ArxivLinks is the last-resort strategy: scan every anchor pointing at
// arxiv.org and synthesize records from the ids found.
type ArxivLinks struct{}

// NewArxivLinks returns the arxivlinks strategy.
func NewArxivLinks() *ArxivLinks {
	return &ArxivLinks{}
}

// Name identifies the strategy inside the registry.
func (s *ArxivLinks) Name() string { return "arxivlinks" }

// Extract scans anchors for arXiv ids.
func (s *ArxivLinks) Extract(body []byte, date time.Time) ([]listing.PaperRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	seen := map[string]struct{}{}
	var records []listing.PaperRecord
	doc.Find("a[href*='arxiv.org']").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		id := arxivIDPattern.FindString(href)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		records = append(records, listing.PaperRecord{
			ID:          id,
			Title:       probeTitle(link, id),
			SourceURL:   href,
			PDFURL:      ArxivPDFURL(id),
			ListingDate: date,
		})
	})
	return records, nil
}

// probeTitle walks up the DOM looking for text of plausible title length.
func probeTitle(link *goquery.Selection, id string) string {
	node := link.Parent()
	for i := 0; i < titleProbeLevels && node.Length() > 0; i++ {
		text := strings.TrimSpace(node.Text())
		if len(text) > 10 && len(text) < 300 {
			return text
		}
		node = node.Parent()
	}
	if text := strings.TrimSpace(link.Text()); text != "" {
		return text
	}
	return "Paper " + id
}
