package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

// RemoteDocument is a web page. Its location is replaced by the final URL
// after redirects the first time it is fetched.
type RemoteDocument struct {
	fetcher *Fetcher

	mu          sync.Mutex
	location    string
	loaded      bool
	contentType string
	page        *page

	terms
}

func NewRemote(rawURL string, f *Fetcher) *RemoteDocument {
	return &RemoteDocument{location: rawURL, fetcher: f}
}

func (d *RemoteDocument) Location() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// Fetch performs the GET and returns the body, capped at the fetcher's
// body limit.
func (d *RemoteDocument) Fetch(ctx context.Context) (io.ReadCloser, error) {
	resp, err := d.get(ctx)
	if err != nil {
		return nil, err
	}
	return limitBody(resp, d.fetcher.maxBodyBytes), nil
}

func (d *RemoteDocument) get(ctx context.Context) (*http.Response, error) {
	resp, err := d.fetcher.Get(ctx, d.Location())
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	if resp.Request != nil && resp.Request.URL != nil {
		d.location = resp.Request.URL.String()
	}
	d.contentType = resp.Header.Get("Content-Type")
	d.mu.Unlock()
	return resp, nil
}

// Load fetches the page once and, for text/html responses, extracts its
// text and anchors. Later calls are no-ops.
func (d *RemoteDocument) Load(ctx context.Context) error {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	resp, err := d.get(ctx)
	if err != nil {
		return err
	}
	body := limitBody(resp, d.fetcher.maxBodyBytes)
	defer body.Close()

	contentType := resp.Header.Get("Content-Type")
	var p *page
	if isHTML(contentType) {
		p, err = extract(body, contentType)
		if err != nil {
			return &apperrors.FetchError{URL: d.Location(), Err: fmt.Errorf("reading body: %w", err)}
		}
	}

	d.mu.Lock()
	d.page = p
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// IsHTML reports whether the loaded response was text/html.
func (d *RemoteDocument) IsHTML() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page != nil
}

func (d *RemoteDocument) ContentType() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contentType
}

// Links returns the raw anchor hrefs of a loaded HTML page.
func (d *RemoteDocument) Links() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return nil
	}
	return append([]string(nil), d.page.links...)
}

// Read loads the page if needed. Non-HTML content has no text.
func (d *RemoteDocument) Read(ctx context.Context) (string, bool, error) {
	if err := d.Load(ctx); err != nil {
		return "", false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return "", false, nil
	}
	return d.page.text, true, nil
}

func (d *RemoteDocument) Tokenize(ctx context.Context) (map[string]int, error) {
	return d.tokenize(ctx, d.Read)
}

func (d *RemoteDocument) sealed() {}

type limitedBody struct {
	io.Reader
	io.Closer
}

func limitBody(resp *http.Response, limit int64) io.ReadCloser {
	if limit <= 0 {
		return resp.Body
	}
	return limitedBody{Reader: io.LimitReader(resp.Body, limit), Closer: resp.Body}
}
