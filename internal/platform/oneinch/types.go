package oneinch

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// NativeToken is the pseudo-address the aggregator uses for ETH.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// QuoteRequest asks for the output of selling Amount of Src for Dst.
type QuoteRequest struct {
	Src      common.Address
	Dst      common.Address
	Amount   *big.Int
	GasLimit uint64
}

// Quote is the priced output of a QuoteRequest.
type Quote struct {
	ToAmount *big.Int
}

// SwapRequest asks for executable calldata. From is the account that will
// hold Src when the swap runs.
type SwapRequest struct {
	Src      common.Address
	Dst      common.Address
	From     common.Address
	Amount   *big.Int
	Slippage decimal.Decimal // percent
	GasLimit uint64
}

// Swap is an executable route.
type Swap struct {
	ToAmount *big.Int
	Tx       SwapTx
}

// SwapTx is the transaction the aggregator wants sent.
type SwapTx struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// APIQuote is the raw /quote response.
type APIQuote struct {
	ToAmount string `json:"toAmount"`
}

// APISwap is the raw /swap response.
type APISwap struct {
	ToAmount string `json:"toAmount"`
	Tx       struct {
		From  common.Address `json:"from"`
		To    common.Address `json:"to"`
		Data  hexutil.Bytes  `json:"data"`
		Value string         `json:"value"`
		Gas   uint64         `json:"gas"`
	} `json:"tx"`
}

// ToQuote converts the response into a Quote.
func (q APIQuote) ToQuote() (Quote, error) {
	amount, err := parseAmount(q.ToAmount)
	if err != nil {
		return Quote{}, err
	}
	return Quote{ToAmount: amount}, nil
}

// ToSwap converts the response into a Swap.
func (s APISwap) ToSwap() (Swap, error) {
	amount, err := parseAmount(s.ToAmount)
	if err != nil {
		return Swap{}, err
	}
	value := new(big.Int)
	if s.Tx.Value != "" {
		if value, err = parseAmount(s.Tx.Value); err != nil {
			return Swap{}, fmt.Errorf("tx value: %w", err)
		}
	}
	if len(s.Tx.Data) == 0 {
		return Swap{}, fmt.Errorf("swap response has no calldata")
	}
	return Swap{
		ToAmount: amount,
		Tx: SwapTx{
			From:  s.Tx.From,
			To:    s.Tx.To,
			Data:  s.Tx.Data,
			Value: value,
			Gas:   s.Tx.Gas,
		},
	}, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
