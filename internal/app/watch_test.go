package app

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/arb"
	"github.com/rocketarb/rocketarb/internal/chain"
	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/signer"
)

var (
	testNodeDeposit = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	testUniArb      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	testMinipool    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.OneEther)
}

type stubReader struct{}

func (stubReader) Parameters(context.Context) (domain.ProtocolParameters, error) {
	return domain.ProtocolParameters{
		DepositFee:     big.NewInt(500_000_000_000_000), // 0.05%
		MaxPoolSize:    eth(5000),
		PoolBalance:    eth(5000),
		MinimumDeposit: big.NewInt(10_000_000_000_000_000),
		ExchangeRate:   big.NewInt(1_050_000_000_000_000_000),
	}, nil
}

func (stubReader) RethValue(_ context.Context, v *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(v, big.NewInt(100))
	return out.Quo(out, big.NewInt(105)), nil
}

type stubNonces uint64

func (n stubNonces) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(n), nil
}

func pendingDeposit(t *testing.T, to common.Address) *types.Transaction {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	data, err := chain.NodeDepositABI.Pack("depositWithCredit",
		eth(8), big.NewInt(140_000_000_000_000_000), []byte{1}, []byte{2},
		[32]byte{3}, big.NewInt(42), testMinipool)
	require.NoError(t, err)
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     3,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       2_500_000,
		To:        &to,
		Value:     eth(8),
		Data:      data,
	})
	require.NoError(t, err)
	return tx
}

func newBackrunner(t *testing.T) *backrunner {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := arb.NewBuilder(stubReader{}, nil, arb.Settings{
		Method:    domain.FundingUniswap,
		GasRefund: 2_800_000,
		SwapReth:  true,
		Gas:       arb.GasLimits{Arb: 990_000},
		Addresses: arb.Addresses{UniArbContract: testUniArb},
	}, logger)
	return &backrunner{
		deps: &Dependencies{
			ChainID:   big.NewInt(1),
			Contracts: chain.Contracts{NodeDeposit: testNodeDeposit},
			Builder:   builder,
			Overrides: arb.Fees{
				MaxFeePerGas:         big.NewInt(40_000_000_000),
				MaxPriorityFeePerGas: big.NewInt(3_000_000_000),
			},
		},
		nonces: stubNonces(7),
		wallet: signer.NewLocal(key),
		logger: logger,
	}
}

func TestBackrunBundle(t *testing.T) {
	w := newBackrunner(t)
	deposit := pendingDeposit(t, testNodeDeposit)

	b, minipool, err := w.bundle(context.Background(), deposit)
	require.NoError(t, err)
	require.Equal(t, testMinipool.Hex(), minipool)
	require.Len(t, b, 2)

	raw, err := deposit.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, raw, []byte(b[0].SignedTransaction))

	backrun := b[1]
	require.NoError(t, backrun.Validate())
	require.Equal(t, w.wallet.Address(), *backrun.Signer)
	require.Equal(t, uint64(7), backrun.Transaction.Nonce())
	require.Equal(t, testUniArb, *backrun.Transaction.To())
	require.Equal(t, big.NewInt(40_000_000_000), backrun.Transaction.GasFeeCap())
	require.Equal(t, uint64(990_000), backrun.Transaction.Gas())
}

func TestBackrunRejectsOtherContracts(t *testing.T) {
	w := newBackrunner(t)
	_, _, err := w.bundle(context.Background(), pendingDeposit(t, testUniArb))
	require.ErrorIs(t, err, domain.ErrNotDeposit)
}
