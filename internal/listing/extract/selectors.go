package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mboyd/paperflow/internal/listing"
)

// candidateSelectors are tried in order; the first that matches anything
// on the page wins. The listing markup has cycled through all of these.
var candidateSelectors = []string{
	"article",
	"div[class*=paper]",
	"a[href*='/papers/']",
	"section article",
	"main article",
}

// Selectors extracts papers from rendered listing markup using layered
// CSS selectors.
type Selectors struct {
	baseURL string
}

// NewSelectors returns the selectors strategy.
func NewSelectors() *Selectors {
	return &Selectors{baseURL: "https://huggingface.co"}
}

// Name identifies the strategy inside the registry.
func (s *Selectors) Name() string { return "selectors" }

// Extract walks the first matching selector's elements and pulls a record
// from each.
func (s *Selectors) Extract(body []byte, date time.Time) ([]listing.PaperRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var elements *goquery.Selection
	for _, selector := range candidateSelectors {
		found := doc.Find(selector)
		if found.Length() > 0 {
			elements = found
			break
		}
	}
	if elements == nil {
		return nil, nil
	}

	seen := map[string]struct{}{}
	var records []listing.PaperRecord
	elements.Each(func(_ int, sel *goquery.Selection) {
		rec, ok := s.recordFromElement(sel, date)
		if !ok {
			return
		}
		if _, dup := seen[rec.ID]; dup {
			return
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	})
	return records, nil
}

func (s *Selectors) recordFromElement(sel *goquery.Selection, date time.Time) (listing.PaperRecord, bool) {
	var rec listing.PaperRecord

	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5", "a"} {
		title := strings.TrimSpace(sel.Find(tag).First().Text())
		if title != "" {
			rec.Title = title
			break
		}
	}

	sel.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		switch {
		case strings.Contains(href, "/papers/"):
			rec.SourceURL = s.absolute(href)
			rec.ID = arxivIDPattern.FindString(href)
		case strings.Contains(href, "arxiv.org"):
			rec.SourceURL = href
			rec.ID = arxivIDPattern.FindString(href)
		}
		return rec.ID == ""
	})

	// Anchor elements matched directly carry the href on themselves.
	if rec.ID == "" {
		if href, ok := sel.Attr("href"); ok && strings.Contains(href, "/papers/") {
			rec.SourceURL = s.absolute(href)
			rec.ID = arxivIDPattern.FindString(href)
			if rec.Title == "" {
				rec.Title = strings.TrimSpace(sel.Text())
			}
		}
	}

	if rec.ID == "" {
		return listing.PaperRecord{}, false
	}
	rec.PDFURL = ArxivPDFURL(rec.ID)
	rec.ListingDate = date
	if rec.Title == "" {
		rec.Title = "Paper " + rec.ID
	}
	return rec, true
}

func (s *Selectors) absolute(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}
