package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robowatch/crawler/internal/crawl"
)

const productPage = `<html><head><title>Atlas V2 | RoboCorp</title></head><body>
<h1 class="product-name">  Atlas   V2 </h1>
<div class="description">A general purpose  humanoid platform.</div>
<span class="price">$150,000</span>
<ul class="spec-table">
  <li>Height: 1.8 m</li>
  <li>Payload: 25 kg</li>
  <li>Untethered</li>
</ul>
</body></html>`

func TestExtract_ProductPage(t *testing.T) {
	t.Parallel()

	pattern := crawl.Pattern{
		Type: crawl.PatternProductPage,
		Selectors: crawl.ContentSelectors{
			SelectorTitle:   "h1.product-name",
			SelectorContent: "div.description",
			SelectorPrice:   "span.price",
			SelectorSpecs:   "ul.spec-table li",
		},
	}

	fields, err := Extract([]byte(productPage), pattern)
	require.NoError(t, err)
	require.Equal(t, "Atlas V2", fields.Title)
	require.Equal(t, "A general purpose humanoid platform.", fields.Content)
	require.Equal(t, "$150,000", fields.Price)
	require.Equal(t, map[string]string{
		"Height":     "1.8 m",
		"Payload":    "25 kg",
		"Untethered": "",
	}, fields.Specs)
}

func TestExtract_FallsBackToDocumentTitle(t *testing.T) {
	t.Parallel()

	pattern := crawl.Pattern{Type: crawl.PatternArticle, Selectors: crawl.ContentSelectors{}}
	fields, err := Extract([]byte(productPage), pattern)
	require.NoError(t, err)
	require.Equal(t, "Atlas V2 | RoboCorp", fields.Title)
}

func TestExtract_NoMatchIsParseError(t *testing.T) {
	t.Parallel()

	pattern := crawl.Pattern{
		Type: crawl.PatternArticle,
		Selectors: crawl.ContentSelectors{
			SelectorTitle:   ".does-not-exist",
			SelectorContent: ".also-missing",
		},
	}
	_, err := Extract([]byte(`<html><body><p>hi</p></body></html>`), pattern)

	var parseErr *crawl.ParseError
	require.True(t, errors.As(err, &parseErr))
	require.Equal(t, crawl.ErrorKindParsing, crawl.Classify(err))
}
