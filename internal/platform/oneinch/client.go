// Package oneinch is a client for the 1inch swap aggregator API.
package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Client quotes and builds swaps through the aggregator.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new aggregator client.
//
// baseURL is the chain-scoped API root, e.g.
// "https://api.1inch.dev/swap/v5.2/1".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Quote prices a swap without building calldata.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	params := url.Values{}
	params.Set("src", req.Src.Hex())
	params.Set("dst", req.Dst.Hex())
	params.Set("amount", req.Amount.String())
	if req.GasLimit > 0 {
		params.Set("gasLimit", strconv.FormatUint(req.GasLimit, 10))
	}

	body, err := c.doGet(ctx, "/quote?"+params.Encode())
	if err != nil {
		return Quote{}, fmt.Errorf("oneinch: quote: %w", err)
	}

	var raw APIQuote
	if err := json.Unmarshal(body, &raw); err != nil {
		return Quote{}, fmt.Errorf("oneinch: decode quote: %w", err)
	}
	q, err := raw.ToQuote()
	if err != nil {
		return Quote{}, fmt.Errorf("oneinch: decode quote: %w", err)
	}
	return q, nil
}

// Swap builds an executable swap. Partial fills are disabled and the
// aggregator is told not to estimate gas, since From usually only holds Src
// once earlier bundle transactions have run.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (Swap, error) {
	params := url.Values{}
	params.Set("src", req.Src.Hex())
	params.Set("dst", req.Dst.Hex())
	params.Set("from", req.From.Hex())
	params.Set("amount", req.Amount.String())
	params.Set("slippage", req.Slippage.String())
	if req.GasLimit > 0 {
		params.Set("gasLimit", strconv.FormatUint(req.GasLimit, 10))
	}
	params.Set("allowPartialFill", "false")
	params.Set("disableEstimate", "true")

	body, err := c.doGet(ctx, "/swap?"+params.Encode())
	if err != nil {
		return Swap{}, fmt.Errorf("oneinch: swap: %w", err)
	}

	var raw APISwap
	if err := json.Unmarshal(body, &raw); err != nil {
		return Swap{}, fmt.Errorf("oneinch: decode swap: %w", err)
	}
	s, err := raw.ToSwap()
	if err != nil {
		return Swap{}, fmt.Errorf("oneinch: decode swap: %w", err)
	}
	return s, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode == http.StatusOK {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBadStatus, statusCode, bodyStr)
	}
}
