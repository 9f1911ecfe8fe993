package flashbots

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RelayError     `json:"error"`
}

// RelayError is a JSON-RPC error returned by the relay.
type RelayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

type sendBundleParams struct {
	Txs         []hexutil.Bytes `json:"txs"`
	BlockNumber string          `json:"blockNumber"`
}

type callBundleParams struct {
	Txs              []hexutil.Bytes `json:"txs"`
	BlockNumber      string          `json:"blockNumber"`
	StateBlockNumber string          `json:"stateBlockNumber"`
}

// SendBundleResponse is the result of eth_sendBundle.
type SendBundleResponse struct {
	BundleHash common.Hash `json:"bundleHash"`
}

// Simulation is the result of eth_callBundle.
type Simulation struct {
	BundleGasPrice    string      `json:"bundleGasPrice"`
	BundleHash        common.Hash `json:"bundleHash"`
	CoinbaseDiff      string      `json:"coinbaseDiff"`
	EthSentToCoinbase string      `json:"ethSentToCoinbase"`
	GasFees           string      `json:"gasFees"`
	StateBlockNumber  uint64      `json:"stateBlockNumber"`
	TotalGasUsed      uint64      `json:"totalGasUsed"`
	Results           []TxResult  `json:"results"`
}

// TxResult is the simulated outcome of one bundle transaction.
type TxResult struct {
	TxHash      common.Hash    `json:"txHash"`
	FromAddress common.Address `json:"fromAddress"`
	ToAddress   common.Address `json:"toAddress"`
	GasUsed     uint64         `json:"gasUsed"`
	Value       hexutil.Bytes  `json:"value,omitempty"`
	Error       string         `json:"error,omitempty"`
	Revert      string         `json:"revert,omitempty"`
}

// FirstRevert returns the first transaction that failed, if any.
func (s Simulation) FirstRevert() (TxResult, bool) {
	for _, r := range s.Results {
		if r.Error != "" || r.Revert != "" {
			return r, true
		}
	}
	return TxResult{}, false
}
