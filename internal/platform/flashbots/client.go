// Package flashbots is a client for the Flashbots bundle relay.
package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Client submits and simulates bundles. Requests are signed with an auth
// key that only identifies the searcher to the relay; it holds no funds.
type Client struct {
	url        string
	authKey    *ecdsa.PrivateKey
	address    common.Address
	httpClient *http.Client
}

// NewClient creates a relay client. A nil authKey gets a random key.
func NewClient(url string, authKey *ecdsa.PrivateKey) (*Client, error) {
	if authKey == nil {
		var err error
		if authKey, err = crypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("flashbots: generate auth key: %w", err)
		}
	}
	return &Client{
		url:     url,
		authKey: authKey,
		address: crypto.PubkeyToAddress(authKey.PublicKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// SendBundle submits txs for inclusion in block target.
func (c *Client) SendBundle(ctx context.Context, txs [][]byte, target uint64) (SendBundleResponse, error) {
	params := sendBundleParams{
		Txs:         toHex(txs),
		BlockNumber: hexutil.EncodeUint64(target),
	}
	var resp SendBundleResponse
	if err := c.call(ctx, "eth_sendBundle", params, &resp); err != nil {
		return SendBundleResponse{}, fmt.Errorf("flashbots: send bundle for %d: %w", target, err)
	}
	return resp, nil
}

// CallBundle simulates txs on top of the latest state as if mined in target.
func (c *Client) CallBundle(ctx context.Context, txs [][]byte, target uint64) (Simulation, error) {
	params := callBundleParams{
		Txs:              toHex(txs),
		BlockNumber:      hexutil.EncodeUint64(target),
		StateBlockNumber: "latest",
	}
	var sim Simulation
	if err := c.call(ctx, "eth_callBundle", params, &sim); err != nil {
		return Simulation{}, fmt.Errorf("flashbots: call bundle for %d: %w", target, err)
	}
	return sim, nil
}

// Signature returns the X-Flashbots-Signature header value for body.
func (c *Client) Signature(body []byte) (string, error) {
	digest := accounts.TextHash([]byte(crypto.Keccak256Hash(body).Hex()))
	sig, err := crypto.Sign(digest, c.authKey)
	if err != nil {
		return "", err
	}
	return c.address.Hex() + ":" + hexutil.Encode(sig), nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []any{params},
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	sig, err := c.Signature(body)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", sig)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBadStatus, resp.StatusCode, string(raw))
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBadStatus, resp.StatusCode, string(raw))
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func toHex(txs [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(txs))
	for i, tx := range txs {
		out[i] = tx
	}
	return out
}
