package arb

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/platform/oneinch"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func TestComparePremium(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		secondary string
		want      string
	}{
		{"discount", "1050000000000000000", "1045000000000000000", "0.476% discount"},
		{"premium", "1050000000000000000", "1060500000000000000", "1.000% premium"},
		{"par", "1050000000000000000", "1050000000000000000", "0.000% premium"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ComparePremium(wei(tc.primary), wei(tc.secondary))
			require.NoError(t, err)
			require.Equal(t, tc.want, p.String())
		})
	}

	_, err := ComparePremium(new(big.Int), domain.OneEther)
	require.Error(t, err)
}

func TestRoundRate(t *testing.T) {
	require.Equal(t, wei("1052345000000000000"), RoundRate(wei("1052345678901234567")))
}

type fakeRates struct{ rate *big.Int }

func (f fakeRates) ExchangeRate(context.Context) (*big.Int, error) { return f.rate, nil }

type fakeQuoter struct{ got oneinch.QuoteRequest }

func (f *fakeQuoter) Quote(_ context.Context, req oneinch.QuoteRequest) (oneinch.Quote, error) {
	f.got = req
	return oneinch.Quote{ToAmount: wei("1040000000000000000")}, nil
}

func TestMeasurePremium(t *testing.T) {
	reth := common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	q := &fakeQuoter{}

	p, err := MeasurePremium(context.Background(), fakeRates{rate: wei("1040000000000000000")}, q, reth, weth, 400_000)
	require.NoError(t, err)
	require.Equal(t, "0.000% premium", p.String())
	require.Equal(t, reth, q.got.Src)
	require.Equal(t, weth, q.got.Dst)
	require.Equal(t, 0, q.got.Amount.Cmp(domain.OneEther))
	require.Equal(t, uint64(400_000), q.got.GasLimit)
}
