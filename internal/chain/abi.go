package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const rocketStorageJSON = `[
 {"inputs":[{"name":"_key","type":"bytes32"}],"name":"getAddress","outputs":[{"name":"r","type":"address"}],"stateMutability":"view","type":"function"}
]`

const rethJSON = `[
 {"inputs":[{"name":"_ethAmount","type":"uint256"}],"name":"getRethValue","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"getExchangeRate","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const depositSettingsJSON = `[
 {"inputs":[],"name":"getDepositFee","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"getMaximumDepositPoolSize","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"getMinimumDeposit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const depositPoolJSON = `[
 {"inputs":[],"name":"getBalance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}
]`

const nodeDepositInputs = `[
 {"name":"_bondAmount","type":"uint256"},
 {"name":"_minimumNodeFee","type":"uint256"},
 {"name":"_validatorPubkey","type":"bytes"},
 {"name":"_validatorSignature","type":"bytes"},
 {"name":"_depositDataRoot","type":"bytes32"},
 {"name":"_salt","type":"uint256"},
 {"name":"_expectedMinipoolAddress","type":"address"}]`

var nodeDepositJSON = `[
 {"inputs":` + nodeDepositInputs + `,"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
 {"inputs":` + nodeDepositInputs + `,"name":"depositWithCredit","outputs":[],"stateMutability":"payable","type":"function"},
 {"inputs":[{"name":"_minimumNodeFee","type":"uint256"},{"name":"_validatorPubkey","type":"bytes"},{"name":"_validatorSignature","type":"bytes"},{"name":"_depositDataRoot","type":"bytes32"},{"name":"_salt","type":"uint256"},{"name":"_expectedMinipoolAddress","type":"address"}],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}
]`

const flashArbJSON = `[
 {"inputs":[{"name":"wethAmount","type":"uint256"},{"name":"minProfit","type":"uint256"},{"name":"swapData","type":"bytes"}],"name":"arb","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const huffArbJSON = `[
 {"inputs":[{"name":"rETHamount","type":"uint256"},{"name":"ETHamount","type":"uint256"},{"name":"minProfit","type":"uint256"},{"name":"swapData","type":"bytes"}],"name":"arb","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Parsed contract interfaces.
var (
	RocketStorageABI   = mustParse(rocketStorageJSON)
	RETHABI            = mustParse(rethJSON)
	DepositSettingsABI = mustParse(depositSettingsJSON)
	DepositPoolABI     = mustParse(depositPoolJSON)
	NodeDepositABI     = mustParse(nodeDepositJSON)
	FlashArbABI        = mustParse(flashArbJSON)
	HuffArbABI         = mustParse(huffArbJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

// DepositCall is a decoded call to rocketNodeDeposit.
type DepositCall struct {
	Method           string
	MinimumNodeFee   *big.Int
	Salt             *big.Int
	ExpectedMinipool common.Address
}

// DecodeDeposit decodes calldata sent to rocketNodeDeposit. Both the
// bond-amount variants (deposit, depositWithCredit) and the legacy
// six-argument deposit are accepted.
func DecodeDeposit(data []byte) (DepositCall, error) {
	if len(data) < 4 {
		return DepositCall{}, fmt.Errorf("chain: decode deposit: calldata too short")
	}
	method, err := NodeDepositABI.MethodById(data[:4])
	if err != nil {
		return DepositCall{}, fmt.Errorf("chain: decode deposit: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return DepositCall{}, fmt.Errorf("chain: decode deposit %s: %w", method.Name, err)
	}
	n := len(args)
	minipool, ok := args[n-1].(common.Address)
	if !ok {
		return DepositCall{}, fmt.Errorf("chain: decode deposit %s: unexpected minipool type %T", method.Name, args[n-1])
	}
	call := DepositCall{Method: method.RawName, ExpectedMinipool: minipool}
	call.Salt, _ = args[n-2].(*big.Int)
	call.MinimumNodeFee, _ = args[n-6].(*big.Int)
	return call, nil
}
