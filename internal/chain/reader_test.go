package chain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/domain"
)

var (
	storageAddr  = common.HexToAddress("0x1d8f8f00cfa6758d7bE78336684788Fb0ee0Fa46")
	rethAddr     = common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	settingsAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	poolAddr     = common.HexToAddress("0x1000000000000000000000000000000000000002")
	nodeAddr     = common.HexToAddress("0x1000000000000000000000000000000000000003")
)

func ether(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), domain.OneEther) }

// fakeBackend answers view calls from a table keyed by contract and method.
type fakeBackend struct {
	registry map[common.Hash]common.Address
	values   map[string]*big.Int
	head     uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		registry: map[common.Hash]common.Address{
			StorageKey("rocketTokenRETH"):                  rethAddr,
			StorageKey("rocketDAOProtocolSettingsDeposit"): settingsAddr,
			StorageKey("rocketDepositPool"):                poolAddr,
			StorageKey("rocketNodeDeposit"):                nodeAddr,
		},
		values: map[string]*big.Int{
			"getDepositFee":             new(big.Int).Div(domain.OneEther, big.NewInt(20)),
			"getMaximumDepositPoolSize": ether(5000),
			"getMinimumDeposit":         new(big.Int).Div(domain.OneEther, big.NewInt(100)),
			"getBalance":                ether(4988),
			"getExchangeRate":           new(big.Int).Div(new(big.Int).Mul(domain.OneEther, big.NewInt(105)), big.NewInt(100)),
		},
		head: 100,
	}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	contracts := map[common.Address]abi.ABI{
		storageAddr:  RocketStorageABI,
		rethAddr:     RETHABI,
		settingsAddr: DepositSettingsABI,
		poolAddr:     DepositPoolABI,
	}
	contract, ok := contracts[*msg.To]
	if !ok {
		return nil, fmt.Errorf("no code at %s", msg.To.Hex())
	}
	method, err := contract.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getAddress":
		key := common.Hash(args[0].([32]byte))
		return method.Outputs.Pack(f.registry[key])
	case "getRethValue":
		// 1 rETH = 1.05 ETH
		eth := args[0].(*big.Int)
		return method.Outputs.Pack(new(big.Int).Div(new(big.Int).Mul(eth, big.NewInt(100)), big.NewInt(105)))
	default:
		v, ok := f.values[method.Name]
		if !ok {
			return nil, fmt.Errorf("unexpected call %s", method.Name)
		}
		return method.Outputs.Pack(v)
	}
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func newTestReader(t *testing.T, backend *fakeBackend) *Reader {
	t.Helper()
	r := NewReader(backend, storageAddr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := r.Init(context.Background())
	require.NoError(t, err)
	return r
}

func TestReaderInitResolvesContracts(t *testing.T) {
	r := newTestReader(t, newFakeBackend())
	c := r.Contracts()
	require.Equal(t, storageAddr, c.Storage)
	require.Equal(t, rethAddr, c.RETH)
	require.Equal(t, settingsAddr, c.DepositSettings)
	require.Equal(t, poolAddr, c.DepositPool)
	require.Equal(t, nodeAddr, c.NodeDeposit)
}

func TestReaderInitMissingContract(t *testing.T) {
	backend := newFakeBackend()
	delete(backend.registry, StorageKey("rocketDepositPool"))

	r := NewReader(backend, storageAddr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := r.Init(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Contains(t, err.Error(), "rocketDepositPool")
}

func TestReaderParameters(t *testing.T) {
	r := newTestReader(t, newFakeBackend())

	p, err := r.Parameters(context.Background())
	require.NoError(t, err)
	require.Equal(t, ether(5000), p.MaxPoolSize)
	require.Equal(t, ether(4988), p.PoolBalance)
	require.Equal(t, ether(12), p.Headroom())
	require.Equal(t, "50000000000000000", p.DepositFee.String())
}

func TestReaderParametersRejectsBadFee(t *testing.T) {
	backend := newFakeBackend()
	backend.values["getDepositFee"] = ether(1)
	r := newTestReader(t, backend)

	_, err := r.Parameters(context.Background())
	require.Error(t, err)
}

func TestReaderRethValueAndHead(t *testing.T) {
	r := newTestReader(t, newFakeBackend())

	v, err := r.RethValue(context.Background(), ether(21))
	require.NoError(t, err)
	require.Equal(t, ether(20), v)

	head, err := r.Head(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), head)
}

func TestDecodeDeposit(t *testing.T) {
	minipool := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := NodeDepositABI.Pack("depositWithCredit",
		ether(8), big.NewInt(140000000000000000), []byte{1, 2}, []byte{3, 4},
		[32]byte{5}, big.NewInt(42), minipool)
	require.NoError(t, err)

	call, err := DecodeDeposit(data)
	require.NoError(t, err)
	require.Equal(t, "depositWithCredit", call.Method)
	require.Equal(t, minipool, call.ExpectedMinipool)
	require.Equal(t, big.NewInt(42), call.Salt)
	require.Equal(t, big.NewInt(140000000000000000), call.MinimumNodeFee)

	_, err = DecodeDeposit([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
}
