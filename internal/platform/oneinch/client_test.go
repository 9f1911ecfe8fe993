package oneinch

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/domain"
)

var (
	reth   = common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	router = common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")
)

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.Equal(t, reth.Hex(), r.URL.Query().Get("src"))
		require.Equal(t, "1000000000000000000", r.URL.Query().Get("amount"))
		_, _ = w.Write([]byte(`{"toAmount":"1060000000000000000"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	q, err := c.Quote(context.Background(), QuoteRequest{
		Src:    reth,
		Dst:    NativeToken,
		Amount: domain.OneEther,
	})
	require.NoError(t, err)
	require.Equal(t, "1060000000000000000", q.ToAmount.String())
}

func TestSwap(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, from.Hex(), q.Get("from"))
		require.Equal(t, "2", q.Get("slippage"))
		require.Equal(t, "false", q.Get("allowPartialFill"))
		require.Equal(t, "true", q.Get("disableEstimate"))
		require.Equal(t, "400000", q.Get("gasLimit"))
		_, _ = w.Write([]byte(`{"toAmount":"5","tx":{"from":"` + from.Hex() + `","to":"` + router.Hex() + `","data":"0x12345678","value":"0","gas":0}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	s, err := c.Swap(context.Background(), SwapRequest{
		Src:      reth,
		Dst:      NativeToken,
		From:     from,
		Amount:   big.NewInt(100),
		Slippage: decimal.NewFromInt(2),
		GasLimit: 400_000,
	})
	require.NoError(t, err)
	require.Equal(t, router, s.Tx.To)
	require.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, s.Tx.Data)
	require.Equal(t, big.NewInt(5), s.ToAmount)
}

func TestNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"description":"insufficient liquidity"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Quote(context.Background(), QuoteRequest{Src: reth, Dst: NativeToken, Amount: big.NewInt(1)})
	require.ErrorIs(t, err, domain.ErrBadStatus)
	require.Contains(t, err.Error(), "insufficient liquidity")
}

func TestRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Swap(context.Background(), SwapRequest{Src: reth, Dst: NativeToken, Amount: big.NewInt(1)})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}
