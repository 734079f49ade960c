package scraper

import (
	"encoding/json"
	"fmt"
)

// emptyBody stands in for pages without a body element
const emptyBody = "<body></body>"

// extractScript collects the title, og:* properties and body markup as a JSON string
const extractScript = `JSON.stringify((() => {
	const og = {};
	const metaTags = document.querySelectorAll('meta[property^="og:"]');
	for (let i = 0; i < metaTags.length; i++) {
		const prop = metaTags[i].getAttribute('property');
		const content = metaTags[i].getAttribute('content');
		if (prop && content) {
			og[prop] = content;
		}
	}
	return {
		title: document.title || '',
		og_tags: og,
		body_html: document.body ? document.body.outerHTML : '<body></body>'
	};
})())`

// PageExtract is the parsed result of the extraction script
type PageExtract struct {
	Title    string            `json:"title"`
	OGTags   map[string]string `json:"og_tags"`
	BodyHTML string            `json:"body_html"`
}

// ParseExtract decodes the JSON produced by the extraction script. A result
// without a body_html key (null, {} or a foreign object) is rejected.
func ParseExtract(raw string) (*PageExtract, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty extraction result")
	}

	var decoded struct {
		Title    string            `json:"title"`
		OGTags   map[string]string `json:"og_tags"`
		BodyHTML *string           `json:"body_html"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	if decoded.BodyHTML == nil {
		return nil, fmt.Errorf("extraction result has no body_html")
	}

	pe := &PageExtract{
		Title:    decoded.Title,
		OGTags:   decoded.OGTags,
		BodyHTML: *decoded.BodyHTML,
	}
	if pe.OGTags == nil {
		pe.OGTags = map[string]string{}
	}
	if pe.BodyHTML == "" {
		pe.BodyHTML = emptyBody
	}
	return pe, nil
}
