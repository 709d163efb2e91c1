// Package extract applies content selectors to fetched HTML.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/robowatch/crawler/internal/crawl"
)

// Selector keys recognized in a pattern's ContentSelectors map.
const (
	SelectorTitle       = "title"
	SelectorContent     = "content"
	SelectorAuthor      = "author"
	SelectorPublishDate = "publish_date"
	SelectorPrice       = "price"
	SelectorSpecs       = "specs"
)

// Fields holds the raw values pulled out of a page. Any field may be
// empty; the caller decides which combinations are fatal.
type Fields struct {
	Title       string
	Content     string
	Author      string
	PublishDate string
	Price       string
	Specs       map[string]string
}

// Extract applies the pattern's selectors to the HTML body. Malformed
// documents and pages where both title and content come back empty are
// parse errors.
func Extract(html []byte, pattern crawl.Pattern) (Fields, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Fields{}, &crawl.ParseError{Reason: "malformed html: " + err.Error()}
	}

	fields := Fields{
		Title:       text(doc, pattern.Selectors[SelectorTitle]),
		Content:     text(doc, pattern.Selectors[SelectorContent]),
		Author:      text(doc, pattern.Selectors[SelectorAuthor]),
		PublishDate: text(doc, pattern.Selectors[SelectorPublishDate]),
		Price:       text(doc, pattern.Selectors[SelectorPrice]),
	}
	if sel := pattern.Selectors[SelectorSpecs]; sel != "" {
		fields.Specs = specs(doc, sel)
	}

	// Fall back to the document title when no selector is configured.
	if fields.Title == "" && pattern.Selectors[SelectorTitle] == "" {
		fields.Title = clean(doc.Find("title").First().Text())
	}

	if fields.Title == "" && fields.Content == "" {
		return Fields{}, &crawl.ParseError{Reason: "selectors matched no title and no content"}
	}
	return fields, nil
}

func text(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return clean(doc.Find(selector).First().Text())
}

// specs collects "name: value" rows from each matched element. Rows with
// no colon are kept under their full text with an empty value.
func specs(doc *goquery.Document, selector string) map[string]string {
	out := map[string]string{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		row := clean(sel.Text())
		if row == "" {
			return
		}
		if name, value, found := strings.Cut(row, ":"); found {
			out[clean(name)] = clean(value)
			return
		}
		out[row] = ""
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
