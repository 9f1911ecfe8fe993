package flashbots

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/domain"
)

type captured struct {
	method    string
	params    map[string]any
	signature string
	body      []byte
}

func relayServer(t *testing.T, result string, got *captured) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Method string           `json:"method"`
			Params []map[string]any `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		got.method = req.Method
		got.params = req.Params[0]
		got.signature = r.Header.Get("X-Flashbots-Signature")
		got.body = body
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
}

func TestSendBundle(t *testing.T) {
	var got captured
	srv := relayServer(t, `{"bundleHash":"0x0000000000000000000000000000000000000000000000000000000000000abc"}`, &got)
	defer srv.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := NewClient(srv.URL, key)
	require.NoError(t, err)

	resp, err := c.SendBundle(context.Background(), [][]byte{{0x02, 0x01}, {0x02, 0x02}}, 101)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xabc"), resp.BundleHash)
	require.Equal(t, "eth_sendBundle", got.method)
	require.Equal(t, "0x65", got.params["blockNumber"])
	require.Equal(t, []any{"0x0201", "0x0202"}, got.params["txs"])

	// The header signs the EIP-191 digest of the hex body hash.
	parts := strings.SplitN(got.signature, ":", 2)
	require.Len(t, parts, 2)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), parts[0])
	sig, err := hexutil.Decode(parts[1])
	require.NoError(t, err)
	digest := accounts.TextHash([]byte(crypto.Keccak256Hash(got.body).Hex()))
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}

func TestCallBundle(t *testing.T) {
	var got captured
	srv := relayServer(t, `{
		"bundleHash":"0x0000000000000000000000000000000000000000000000000000000000000001",
		"stateBlockNumber":100,
		"totalGasUsed":1200000,
		"results":[
			{"txHash":"0x0000000000000000000000000000000000000000000000000000000000000002","gasUsed":210000},
			{"txHash":"0x0000000000000000000000000000000000000000000000000000000000000003","gasUsed":990000,"error":"execution reverted","revert":"min profit"}
		]}`, &got)
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)
	sim, err := c.CallBundle(context.Background(), [][]byte{{0x02}}, 101)
	require.NoError(t, err)
	require.Equal(t, "eth_callBundle", got.method)
	require.Equal(t, "latest", got.params["stateBlockNumber"])
	require.Equal(t, uint64(1_200_000), sim.TotalGasUsed)

	r, ok := sim.FirstRevert()
	require.True(t, ok)
	require.Equal(t, common.HexToHash("0x03"), r.TxHash)
	require.Equal(t, "min profit", r.Revert)
}

func TestRelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"bundle too old"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)
	_, err = c.SendBundle(context.Background(), [][]byte{{0x02}}, 1)
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	require.Equal(t, "bundle too old", relayErr.Message)
}

func TestNonJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)
	_, err = c.SendBundle(context.Background(), [][]byte{{0x02}}, 1)
	require.ErrorIs(t, err, domain.ErrBadStatus)
}

// fakeChain mines one block per BlockNumber call.
type fakeChain struct {
	head     uint64
	receipts map[common.Hash]uint64
	nonces   map[common.Address]uint64
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.head++
	return f.head, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	block, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{BlockNumber: new(big.Int).SetUint64(block)}, nil
}

func (f *fakeChain) NonceAt(_ context.Context, account common.Address, _ *big.Int) (uint64, error) {
	return f.nonces[account], nil
}

func signedTxs(t *testing.T, nonces ...uint64) ([]*types.Transaction, []common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	var (
		txs     []*types.Transaction
		senders []common.Address
	)
	for _, n := range nonces {
		tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), &types.DynamicFeeTx{
			ChainID:   big.NewInt(1),
			Nonce:     n,
			GasTipCap: big.NewInt(1),
			GasFeeCap: big.NewInt(1),
			Gas:       21_000,
			To:        &from,
			Value:     new(big.Int),
		})
		require.NoError(t, err)
		txs = append(txs, tx)
		senders = append(senders, from)
	}
	return txs, senders
}

func TestWaitIncluded(t *testing.T) {
	txs, senders := signedTxs(t, 5, 6)
	chain := &fakeChain{head: 100, receipts: map[common.Hash]uint64{
		txs[0].Hash(): 103,
		txs[1].Hash(): 103,
	}}
	sub := NewSubmission(103, common.Hash{}, txs, senders)

	res, err := sub.Wait(context.Background(), chain, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.BundleIncluded, res)
	require.Equal(t, uint64(103), chain.head)
}

func TestWaitNotIncluded(t *testing.T) {
	txs, senders := signedTxs(t, 5, 6)
	chain := &fakeChain{head: 100, nonces: map[common.Address]uint64{senders[0]: 5}}
	sub := NewSubmission(101, common.Hash{}, txs, senders)

	res, err := sub.Wait(context.Background(), chain, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.BlockPassedWithoutInclusion, res)
}

func TestWaitNonceTooHigh(t *testing.T) {
	txs, senders := signedTxs(t, 5, 6)
	// The deposit nonce was used by some other transaction.
	chain := &fakeChain{head: 100, nonces: map[common.Address]uint64{senders[0]: 6}}
	sub := NewSubmission(101, common.Hash{}, txs, senders)

	res, err := sub.Wait(context.Background(), chain, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.AccountNonceTooHigh, res)
}

func TestWaitHonoursContext(t *testing.T) {
	txs, senders := signedTxs(t, 1)
	chain := &fakeChain{head: 0}
	sub := NewSubmission(1_000_000, common.Hash{}, txs, senders)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.Wait(ctx, chain, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
