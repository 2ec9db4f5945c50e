package document

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// page is what a fetched HTML document yields: its visible text and the raw
// href of every anchor, in document order.
type page struct {
	text  string
	links []string
}

// isHTML reports whether a Content-Type header names text/html.
func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

func extract(r io.Reader, contentType string) (*page, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("decoding charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	p := &page{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href != "" {
			p.links = append(p.links, href)
		}
	})

	doc.Find("script, style, noscript, template").Remove()
	p.text = strings.Join(strings.Fields(doc.Text()), " ")
	return p, nil
}
