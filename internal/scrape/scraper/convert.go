package scraper

import (
	"net/url"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/edgecomet/distill/internal/common/htmlprocessor"
)

// Converter turns body markup into Markdown
type Converter interface {
	Convert(pageURL, html string) (string, error)
}

// MarkdownConverter strips non-content elements, then converts with html-to-markdown.
// Relative link and image targets are resolved against the page URL.
type MarkdownConverter struct{}

// Convert implements Converter
func (MarkdownConverter) Convert(pageURL, html string) (string, error) {
	cleaned, err := htmlprocessor.CleanBody(html)
	if err != nil {
		return "", err
	}

	opts := &md.Options{GetAbsoluteURL: resolveAgainst(pageURL)}
	return md.NewConverter(md.DomainFromURL(pageURL), true, opts).ConvertString(cleaned)
}

// resolveAgainst returns a link resolver for html-to-markdown. Targets are left
// untouched when either the page URL or the target does not parse.
func resolveAgainst(pageURL string) func(*goquery.Selection, string, string) string {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}

	return func(_ *goquery.Selection, rawURL, _ string) string {
		if base == nil {
			return rawURL
		}
		ref, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		return base.ResolveReference(ref).String()
	}
}
