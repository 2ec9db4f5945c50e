package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/daqol/information-retrieval/pkg/config"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
	"github.com/daqol/information-retrieval/pkg/resilience"
)

var ErrDisallowed = errors.New("disallowed by robots.txt")

const robotsTimeout = 10 * time.Second

// Fetcher performs the HTTP GETs of remote documents. It is shared by all
// documents of a crawl and is safe for concurrent use.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	maxBodyBytes  int64
	respectRobots bool
	robotsMu      sync.RWMutex
	robotsCache   map[string]*robotstxt.RobotsData
	breakers      *resilience.BreakerGroup
	logger        *slog.Logger
}

func NewFetcher(cfg config.CrawlerConfig) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:     cfg.UserAgent,
		maxBodyBytes:  cfg.MaxBodyBytes,
		respectRobots: cfg.RespectRobots,
		robotsCache:   make(map[string]*robotstxt.RobotsData),
		breakers: resilience.NewBreakerGroup("fetch", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.HostBreaker.FailureThreshold,
			ResetTimeout:     cfg.HostBreaker.ResetTimeout,
		}),
		logger: slog.Default().With("component", "fetcher"),
	}
}

// Get issues a GET for rawURL. Any outcome other than a 2xx response is
// returned as *errors.FetchError; on success the caller owns resp.Body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &apperrors.FetchError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &apperrors.FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if f.respectRobots && !f.allowed(ctx, u) {
		return nil, &apperrors.FetchError{URL: rawURL, Err: ErrDisallowed}
	}

	var resp *http.Response
	err = f.breakers.Get(u.Host).ExecuteCounting(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r, err := f.client.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			r.Body.Close()
			return &apperrors.FetchError{URL: rawURL, Status: r.StatusCode}
		}
		resp = r
		return nil
	}, countsAgainstHost)
	if err != nil {
		var fe *apperrors.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &apperrors.FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &apperrors.FetchError{URL: rawURL, Status: resp.StatusCode}
	}
	return resp, nil
}

// OpenHosts lists hosts currently short-circuited after repeated failures.
func (f *Fetcher) OpenHosts() []string {
	return f.breakers.Open()
}

func countsAgainstHost(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (f *Fetcher) allowed(ctx context.Context, u *url.URL) bool {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	f.robotsMu.RLock()
	robots, cached := f.robotsCache[robotsURL]
	f.robotsMu.RUnlock()

	if !cached {
		robots = f.fetchRobots(ctx, robotsURL)
		f.robotsMu.Lock()
		f.robotsCache[robotsURL] = robots
		f.robotsMu.Unlock()
	}
	if robots == nil {
		return true
	}
	return robots.FindGroup(f.userAgent).Test(u.EscapedPath())
}

func (f *Fetcher) fetchRobots(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	ctx, cancel := context.WithTimeout(ctx, robotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("robots.txt unavailable", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.logger.Debug("robots.txt unparsable", "url", robotsURL, "error", err)
		return nil
	}
	return robots
}
