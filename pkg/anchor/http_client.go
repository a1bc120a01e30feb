package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mindburn-Labs/custody/pkg/resiliency"
)

// HTTPClient talks to a ledger gateway over JSON:
//
//	POST {base}/v1/transactions        body Transaction -> {"ref": "..."}
//	GET  {base}/v1/transactions/{ref}  -> Receipt, 404 when unknown
//	GET  {base}/v1/health
type HTTPClient struct {
	base    string
	http    *http.Client
	breaker *resiliency.CircuitBreaker
}

// NewHTTPClient builds a gateway client. A nil breaker disables circuit breaking.
func NewHTTPClient(baseURL string, timeout time.Duration, breaker *resiliency.CircuitBreaker) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("anchor: invalid ledger url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}, nil
}

type submitResponse struct {
	Ref string `json:"ref"`
}

func (c *HTTPClient) Submit(ctx context.Context, tx Transaction) (string, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("anchor: marshal tx: %w", err)
	}

	var out submitResponse
	err = c.call(ctx, http.MethodPost, "/v1/transactions", body, &out)
	if err != nil {
		return "", err
	}
	if out.Ref == "" {
		return "", fmt.Errorf("%w: gateway returned empty ref", ErrLedgerUnavailable)
	}
	return out.Ref, nil
}

func (c *HTTPClient) Lookup(ctx context.Context, ref string) (Receipt, error) {
	var r Receipt
	if err := c.call(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(ref), nil, &r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body []byte, out any) error {
	if c.breaker != nil && !c.breaker.Allow() {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, resiliency.ErrOpen)
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("anchor: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.failed()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		c.failed()
		return fmt.Errorf("%w: gateway status %d", ErrLedgerUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		c.succeeded()
		return fmt.Errorf("%w: %s", ErrTxNotFound, path)
	case resp.StatusCode >= 400:
		c.succeeded()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gateway status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	c.succeeded()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty gateway response", ErrLedgerUnavailable)
		}
		return fmt.Errorf("%w: decode gateway response: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (c *HTTPClient) failed() {
	if c.breaker != nil {
		c.breaker.Failure()
	}
}

func (c *HTTPClient) succeeded() {
	if c.breaker != nil {
		c.breaker.Success()
	}
}
