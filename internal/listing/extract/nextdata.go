package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mboyd/paperflow/internal/listing"
)

// maxDescendDepth bounds the recursive search through the page payload.
const maxDescendDepth = 10

var arxivIDPattern = regexp.MustCompile(`\d{4}\.\d{4,5}`)

// NextData extracts papers from the JSON blob embedded in the listing
// page's __NEXT_DATA__ script tag. This is the primary strategy: the
// payload carries the full listing even when the rendered markup hides it.
type NextData struct{}

// NewNextData returns the nextdata strategy.
func NewNextData() *NextData {
	return &NextData{}
}

// Name identifies the strategy inside the registry.
func (s *NextData) Name() string { return "nextdata" }

// Extract locates the embedded JSON payload and descends it for paper lists.
func (s *NextData) Extract(body []byte, date time.Time) ([]listing.PaperRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var payloads []string
	if raw := doc.Find("script#__NEXT_DATA__").Text(); raw != "" {
		payloads = append(payloads, raw)
	}
	// Some listing builds inline the data into other script tags.
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		raw := sel.Text()
		if raw != "" && strings.Contains(strings.ToLower(raw), "papers") {
			payloads = append(payloads, raw)
		}
	})

	for _, raw := range payloads {
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		if records := descend(data, date, 0); len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}

// descend walks arbitrary JSON looking for arrays of paper-shaped objects.
func descend(node any, date time.Time, depth int) []listing.PaperRecord {
	if depth > maxDescendDepth {
		return nil
	}
	switch v := node.(type) {
	case map[string]any:
		if papers, ok := v["papers"]; ok {
			if records := recordsFromList(papers, date); len(records) > 0 {
				return records
			}
		}
		for _, child := range v {
			if records := descend(child, date, depth+1); len(records) > 0 {
				return records
			}
		}
	case []any:
		if records := recordsFromList(v, date); len(records) > 0 {
			return records
		}
		for _, child := range v {
			if records := descend(child, date, depth+1); len(records) > 0 {
				return records
			}
		}
	}
	return nil
}

func recordsFromList(node any, date time.Time) []listing.PaperRecord {
	items, ok := node.([]any)
	if !ok {
		return nil
	}
	var records []listing.PaperRecord
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if rec, ok := recordFromObject(obj, date); ok {
			records = append(records, rec)
		}
	}
	return records
}

// recordFromObject normalizes one paper object; key names vary across
// listing builds so several aliases are tried per field.
func recordFromObject(obj map[string]any, date time.Time) (listing.PaperRecord, bool) {
	var rec listing.PaperRecord

	// Detail pages nest the paper under a "paper" key.
	if nested, ok := obj["paper"].(map[string]any); ok {
		obj = nested
	}

	for _, key := range []string{"title", "name", "paper_title"} {
		if v, ok := obj[key].(string); ok && v != "" {
			rec.Title = strings.TrimSpace(v)
			break
		}
	}
	for _, key := range []string{"arxiv_id", "paper_id", "id"} {
		if v, ok := obj[key].(string); ok && arxivIDPattern.MatchString(v) {
			rec.ID = arxivIDPattern.FindString(v)
			break
		}
	}
	for _, key := range []string{"url", "link", "href"} {
		if v, ok := obj[key].(string); ok && v != "" {
			rec.SourceURL = v
			break
		}
	}
	if rec.ID == "" && rec.SourceURL != "" {
		rec.ID = arxivIDPattern.FindString(rec.SourceURL)
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

// ArxivPDFURL returns the canonical PDF location for an arXiv id.
func ArxivPDFURL(id string) string {
	return fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", id)
}
