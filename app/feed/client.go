package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lysyi3m/podcast-analyzer/app/database"
)

const maxRedirects = 10

// Client downloads and parses podcast feeds. Permanent redirects are written
// back to the podcast record before parsing.
type Client struct {
	httpClient *http.Client
	parser     *Parser
	podcasts   database.PodcastRepository
	userAgent  string
	timeout    time.Duration
}

func NewClient(httpClient *http.Client, parser *Parser, podcasts database.PodcastRepository, userAgent string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		parser:     parser,
		podcasts:   podcasts,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Fetch retrieves podcast.RSSFeed and returns the normalized feed. It returns
// *FetchError for network and HTTP failures and *ParseError for bad payloads.
func (c *Client) Fetch(ctx context.Context, podcast *database.Podcast) (*NormalizedFeed, error) {
	data, finalURL, permanent, err := c.download(ctx, podcast.RSSFeed)
	if err != nil {
		return nil, err
	}

	if permanent && finalURL != podcast.RSSFeed {
		if err := c.podcasts.UpdateFeedURL(ctx, podcast.ID, finalURL); err != nil {
			slog.Warn("Failed to persist feed redirect", "podcast", podcast.ID, "from", podcast.RSSFeed, "to", finalURL, "error", err)
		} else {
			slog.Info("Feed moved permanently", "podcast", podcast.ID, "from", podcast.RSSFeed, "to", finalURL)
			podcast.RSSFeed = finalURL
		}
	}

	nf, err := c.parser.Run(data)
	if err != nil {
		return nil, &ParseError{URL: finalURL, Err: err}
	}

	return nf, nil
}

// download returns the body, the final URL and whether every redirect hop
// on the way there was permanent. A request without redirects is not
// considered permanent.
func (c *Client) download(ctx context.Context, url string) ([]byte, string, bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, url, false, &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)

	var hops []int
	client := *c.httpClient
	client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if r.Response != nil {
			hops = append(hops, r.Response.StatusCode)
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, url, false, &FetchError{URL: url, Err: fmt.Errorf("timed out after %s: %w", c.timeout, err)}
		}
		return nil, url, false, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()

	if resp.StatusCode != http.StatusOK {
		return nil, finalURL, false, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, finalURL, false, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, finalURL, allPermanent(hops), nil
}

func allPermanent(hops []int) bool {
	if len(hops) == 0 {
		return false
	}
	for _, code := range hops {
		if code != http.StatusMovedPermanently && code != http.StatusPermanentRedirect {
			return false
		}
	}
	return true
}
