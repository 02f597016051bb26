// Package listing defines the paper-listing contract: the record produced
// for each published paper and the Fetcher interface that retrieves the
// day's listing. Extraction rules live behind the extract.Strategy
// interface so page-structure changes stay contained.
package listing

import (
	"context"
	"fmt"
	"time"
)

// PaperRecord identifies one paper published on a listing page.
// Records are immutable once produced by a Fetcher.
type PaperRecord struct {
	// ID uniquely identifies the paper within one listing (arXiv id form,
	// e.g. "2301.07041").
	ID string `json:"id"`
	// Title is the paper title as shown on the listing.
	Title string `json:"title"`
	// SourceURL is the listing detail page for the paper.
	SourceURL string `json:"source_url"`
	// PDFURL is the direct PDF location the download manager fetches.
	PDFURL string `json:"pdf_url"`
	// ListingDate is the date the paper appeared on the listing.
	ListingDate time.Time `json:"listing_date"`
}

// Fetcher retrieves the paper listing for a given date. Implementations
// perform no retry; the runner owns retry decisions.
type Fetcher interface {
	Fetch(ctx context.Context, date time.Time) ([]PaperRecord, error)
}

// FetchError reports a listing retrieval or parse failure. The runner
// treats it as terminal for the fetch stage and continues with an empty
// listing.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch listing %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
