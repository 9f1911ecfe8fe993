// Package chain reads Rocket Pool protocol state from an execution client.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Backend is the subset of ethclient.Client the reader needs.
type Backend interface {
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Contracts holds the protocol addresses resolved through RocketStorage.
type Contracts struct {
	Storage         common.Address
	RETH            common.Address
	DepositSettings common.Address
	DepositPool     common.Address
	NodeDeposit     common.Address
}

// Reader performs read-only protocol calls. Call Init before anything else.
type Reader struct {
	backend   Backend
	storage   common.Address
	contracts *Contracts
	logger    *slog.Logger
}

// NewReader creates a Reader bound to the RocketStorage registry at storage.
func NewReader(backend Backend, storage common.Address, logger *slog.Logger) *Reader {
	return &Reader{
		backend: backend,
		storage: storage,
		logger:  logger.With(slog.String("component", "chain_reader")),
	}
}

// StorageKey is the registry key under which a named contract's address is
// stored.
func StorageKey(name string) common.Hash {
	return crypto.Keccak256Hash([]byte("contract.address" + name))
}

// Init resolves the protocol contract addresses from the registry.
func (r *Reader) Init(ctx context.Context) (Contracts, error) {
	c := Contracts{Storage: r.storage}
	for _, entry := range []struct {
		name string
		dst  *common.Address
	}{
		{"rocketTokenRETH", &c.RETH},
		{"rocketDAOProtocolSettingsDeposit", &c.DepositSettings},
		{"rocketDepositPool", &c.DepositPool},
		{"rocketNodeDeposit", &c.NodeDeposit},
	} {
		var addr common.Address
		if err := r.call(ctx, r.storage, RocketStorageABI, "getAddress", &addr, StorageKey(entry.name)); err != nil {
			return Contracts{}, fmt.Errorf("chain: resolve %s: %w", entry.name, err)
		}
		if addr == (common.Address{}) {
			return Contracts{}, fmt.Errorf("chain: resolve %s: %w", entry.name, domain.ErrNotFound)
		}
		*entry.dst = addr
		r.logger.Info("resolved contract",
			slog.String("name", entry.name),
			slog.String("address", addr.Hex()),
		)
	}
	r.contracts = &c
	return c, nil
}

// Contracts returns the resolved addresses. It panics if Init has not
// succeeded.
func (r *Reader) Contracts() Contracts {
	if r.contracts == nil {
		panic("chain: Reader used before Init")
	}
	return *r.contracts
}

// Parameters reads a fresh snapshot of the values that size an arbitrage.
func (r *Reader) Parameters(ctx context.Context) (domain.ProtocolParameters, error) {
	c := r.Contracts()
	var p domain.ProtocolParameters
	for _, q := range []struct {
		to     common.Address
		abi    abi.ABI
		method string
		dst    **big.Int
	}{
		{c.DepositSettings, DepositSettingsABI, "getDepositFee", &p.DepositFee},
		{c.DepositSettings, DepositSettingsABI, "getMaximumDepositPoolSize", &p.MaxPoolSize},
		{c.DepositSettings, DepositSettingsABI, "getMinimumDeposit", &p.MinimumDeposit},
		{c.DepositPool, DepositPoolABI, "getBalance", &p.PoolBalance},
		{c.RETH, RETHABI, "getExchangeRate", &p.ExchangeRate},
	} {
		v := new(big.Int)
		if err := r.call(ctx, q.to, q.abi, q.method, &v); err != nil {
			return domain.ProtocolParameters{}, fmt.Errorf("chain: parameters: %w", err)
		}
		*q.dst = v
	}
	if err := p.Validate(); err != nil {
		return domain.ProtocolParameters{}, fmt.Errorf("chain: parameters: %w", err)
	}
	return p, nil
}

// RethValue converts an ETH amount into rETH using the token's own rate.
func (r *Reader) RethValue(ctx context.Context, ethAmount *big.Int) (*big.Int, error) {
	v := new(big.Int)
	if err := r.call(ctx, r.Contracts().RETH, RETHABI, "getRethValue", &v, ethAmount); err != nil {
		return nil, fmt.Errorf("chain: reth value: %w", err)
	}
	return v, nil
}

// ExchangeRate returns the protocol ETH value of one rETH.
func (r *Reader) ExchangeRate(ctx context.Context) (*big.Int, error) {
	v := new(big.Int)
	if err := r.call(ctx, r.Contracts().RETH, RETHABI, "getExchangeRate", &v); err != nil {
		return nil, fmt.Errorf("chain: exchange rate: %w", err)
	}
	return v, nil
}

// Head returns the current block number.
func (r *Reader) Head(ctx context.Context) (uint64, error) {
	n, err := r.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: head: %w", err)
	}
	return n, nil
}

// ChainID returns the connected network's chain id.
func (r *Reader) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := r.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	return id, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, contract abi.ABI, method string, out any, args ...any) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := contract.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}
