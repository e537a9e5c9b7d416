package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultUpstreamTimeout = 10 * time.Second

// restClient is the shared rate-limited HTTP helper used by every
// adapter. One instance per adapter: one base URL, one limiter, one
// timeout budget.
type restClient struct {
	base    string
	httpc   *http.Client
	limiter *rate.Limiter
}

func newRESTClient(base string, reqPerSec float64, burst int) *restClient {
	return &restClient{
		base:    strings.TrimRight(base, "/"),
		httpc:   &http.Client{Timeout: defaultUpstreamTimeout},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// getJSON issues a GET and decodes the response body into out.
func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, headers map[string]string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, headers, nil, out)
}

// doJSON issues a request and decodes the response body into out,
// mapping transport and status failures onto the adapter error
// taxonomy. Exchange-specific error payloads delivered with a 200
// status are the caller's responsibility.
func (c *restClient) doJSON(ctx context.Context, method, path string, query url.Values, headers map[string]string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUpstreamUnavailable, err)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d from %s", ErrAuthFailed, resp.StatusCode, path)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404 from %s", ErrSymbolNotFound, path)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d from %s", ErrUpstreamUnavailable, resp.StatusCode, path)
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d from %s: %s", ErrSymbolNotFound, resp.StatusCode, path, strings.TrimSpace(string(b)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUpstreamUnavailable, path, err)
	}
	return nil
}

// decField parses one element of a raw JSON candle row; exchanges mix
// quoted and bare numbers in those arrays.
func decField(raw json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// intField parses an epoch timestamp element of a raw JSON candle row.
func intField(raw json.RawMessage) (int64, error) {
	d, err := decField(raw)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}
