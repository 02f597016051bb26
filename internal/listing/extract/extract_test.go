package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

const nextDataPage = `<html><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"dailyPapers":{"papers":[
  {"paper":{"id":"2301.07041","title":"Scaling Laws Revisited"}},
  {"paper":{"id":"2302.12345","title":"Sparse Attention at Scale"}}
]}}}}
</script>
</body></html>`

const selectorsPage = `<html><body><main>
<article>
  <h3>Scaling Laws Revisited</h3>
  <a href="/papers/2301.07041">read</a>
</article>
<article>
  <h3>Sparse Attention at Scale</h3>
  <a href="/papers/2302.12345">read</a>
</article>
</main></body></html>`

const arxivLinksPage = `<html><body>
<div><p>Scaling Laws Revisited and friends</p>
  <a href="https://arxiv.org/abs/2301.07041">arxiv</a></div>
<div><a href="https://arxiv.org/pdf/2302.12345.pdf">pdf</a></div>
</body></html>`

func TestNextDataExtract(t *testing.T) {
	t.Parallel()

	records, err := NewNextData().Extract([]byte(nextDataPage), testDate)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2301.07041", records[0].ID)
	require.Equal(t, "Scaling Laws Revisited", records[0].Title)
	require.Equal(t, "https://arxiv.org/pdf/2301.07041.pdf", records[0].PDFURL)
	require.Equal(t, testDate, records[0].ListingDate)
}

func TestNextDataExtractNoPayload(t *testing.T) {
	t.Parallel()

	records, err := NewNextData().Extract([]byte("<html><body>nothing</body></html>"), testDate)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSelectorsExtract(t *testing.T) {
	t.Parallel()

	records, err := NewSelectors().Extract([]byte(selectorsPage), testDate)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2301.07041", records[0].ID)
	require.Equal(t, "Scaling Laws Revisited", records[0].Title)
	require.Equal(t, "https://huggingface.co/papers/2301.07041", records[0].SourceURL)
}

func TestSelectorsDeduplicates(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<article><a href="/papers/2301.07041">one</a></article>
<article><a href="/papers/2301.07041">again</a></article>
</body></html>`
	records, err := NewSelectors().Extract([]byte(page), testDate)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestArxivLinksExtract(t *testing.T) {
	t.Parallel()

	records, err := NewArxivLinks().Extract([]byte(arxivLinksPage), testDate)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2301.07041", records[0].ID)
	require.Equal(t, "Scaling Laws Revisited and friends", records[0].Title)
	require.Equal(t, "2302.12345", records[1].ID)
}

func TestChainFallsThrough(t *testing.T) {
	t.Parallel()

	chain := NewChain(NewNextData(), NewSelectors(), NewArxivLinks())

	// Page with no JSON payload and no selector matches, only raw links.
	records, err := chain.Extract([]byte(arxivLinksPage), testDate)
	require.NoError(t, err)
	require.NotEmpty(t, records)
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	for _, name := range []string{"nextdata", "selectors", "arxivlinks"} {
		s, err := reg.Resolve(name)
		require.NoError(t, err)
		require.Equal(t, name, s.Name())
	}

	_, err := reg.Resolve("xpath")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown extraction strategy")
}
