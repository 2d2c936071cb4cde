// Package extract turns fetched pages into result rows using goquery.
package extract

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

const structuralSelector = "a[href], img[src], h1, h2, h3, h4, h5, h6"

// Extractor implements crawler.Extractor. It holds no per-page state and is
// safe for concurrent use.
type Extractor struct {
	extended bool
	logger   *zap.Logger
	parse    func(io.Reader) (*goquery.Document, error)
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an Extractor. With extended set, links, images, and headings are
// collected alongside the title.
func New(extended bool, opts ...Option) *Extractor {
	e := &Extractor{extended: extended, logger: zap.NewNop(), parse: goquery.NewDocumentFromReader}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the result row for outcome and, in extended mode, its
// structural data. Failed fetches never carry an extended record.
func (e *Extractor) Extract(outcome crawler.FetchOutcome) (crawler.ResultRecord, *crawler.ExtendedRecord) {
	record := crawler.ResultRecord{
		URL:           outcome.URL,
		StatusCode:    outcome.StatusCode,
		BodySize:      len(outcome.Body),
		ElapsedMillis: outcome.Elapsed.Milliseconds(),
		Truncated:     outcome.Truncated,
	}
	if outcome.Failed() {
		record.Error = string(outcome.Err.Kind)
		return record, nil
	}

	var extended *crawler.ExtendedRecord
	if e.extended {
		extended = &crawler.ExtendedRecord{
			URL:      outcome.URL,
			Links:    []string{},
			Images:   []string{},
			Headings: []crawler.Heading{},
		}
	}
	if len(outcome.Body) == 0 {
		return record, extended
	}

	doc, err := e.parse(bytes.NewReader(outcome.Body))
	if err != nil {
		perr := &crawler.ParseError{URL: outcome.URL, Err: err}
		e.logger.Debug("html parse failed", zap.String("url", outcome.URL), zap.Error(perr))
		return record, extended
	}

	record.Title = Title(doc)
	if extended != nil {
		collect(doc, baseURL(doc, outcome.BaseURL()), extended)
	}
	return record, extended
}

// Title returns the first <title> text with whitespace runs collapsed.
func Title(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

func collect(doc *goquery.Document, base *url.URL, out *crawler.ExtendedRecord) {
	doc.Find(structuralSelector).Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); name {
		case "a":
			if href, ok := resolve(base, s.AttrOr("href", "")); ok {
				out.Links = append(out.Links, href)
			}
		case "img":
			if src, ok := resolve(base, s.AttrOr("src", "")); ok {
				out.Images = append(out.Images, src)
			}
		default:
			out.Headings = append(out.Headings, crawler.Heading{
				Level: int(name[1] - '0'),
				Text:  strings.TrimSpace(s.Text()),
			})
		}
	})
}

// baseURL honors a <base href> element when present.
func baseURL(doc *goquery.Document, pageURL string) *url.URL {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return page
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return page
	}
	return page.ResolveReference(ref)
}

// resolve makes raw absolute against base. Values that do not parse are kept
// as written; empty values are dropped.
func resolve(base *url.URL, raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if base == nil {
		return raw, true
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return raw, true
	}
	return base.ResolveReference(ref).String(), true
}

var _ crawler.Extractor = (*Extractor)(nil)
