package signer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rocketarb/rocketarb/internal/domain"
	"github.com/rocketarb/rocketarb/internal/units"
)

// InteractiveDaemon stands in for the smartnode when the operator signs on
// another machine: it prints what needs signing and reads the signature
// fields back from the terminal.
type InteractiveDaemon struct {
	in          *bufio.Reader
	out         io.Writer
	nodeDeposit common.Address
	chainID     *big.Int
	gasLimit    uint64
	fees        InteractiveFees
}

// InteractiveFees are the fee caps put on an interactively built deposit.
type InteractiveFees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// NewInteractiveDaemon creates an InteractiveDaemon. Nil fees default to 16
// and 2 gwei.
func NewInteractiveDaemon(in io.Reader, out io.Writer, nodeDeposit common.Address, chainID *big.Int, gasLimit uint64, fees InteractiveFees) *InteractiveDaemon {
	if fees.MaxFeePerGas == nil {
		fees.MaxFeePerGas = new(big.Int).Mul(big.NewInt(16), domain.OneGwei)
	}
	if fees.MaxPriorityFeePerGas == nil {
		fees.MaxPriorityFeePerGas = new(big.Int).Mul(big.NewInt(2), domain.OneGwei)
	}
	return &InteractiveDaemon{
		in:          bufio.NewReader(in),
		out:         out,
		nodeDeposit: nodeDeposit,
		chainID:     chainID,
		gasLimit:    gasLimit,
		fees:        fees,
	}
}

// signatureFields is what the operator pastes back.
type signatureFields struct {
	Nonce *flexUint `json:"nonce"`
	V     flexUint  `json:"v"`
	R     string    `json:"r"`
	S     string    `json:"s"`
}

// Deposit implements Daemon. The operator pastes the deposit calldata, then
// the nonce and signature of the resulting transaction.
func (d *InteractiveDaemon) Deposit(ctx context.Context, intent domain.DepositIntent) ([]byte, error) {
	fmt.Fprintf(d.out, "After the > please paste the deposit calldata for a %s ETH deposit (min fee %s, salt %s)\n",
		units.FormatEther(intent.Amount), intent.MinimumNodeFee, intent.Salt)
	line, err := d.prompt(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: interactive deposit: %w", err)
	}
	data, err := decodeHex(line)
	if err != nil {
		return nil, fmt.Errorf("signer: interactive deposit: calldata: %w", err)
	}

	to := d.nodeDeposit
	tx := &types.DynamicFeeTx{
		ChainID:   d.chainID,
		GasTipCap: d.fees.MaxPriorityFeePerGas,
		GasFeeCap: d.fees.MaxFeePerGas,
		Gas:       d.gasLimit,
		To:        &to,
		Value:     intent.Amount,
		Data:      data,
	}
	if err := d.show(tx, "missing (incl. nonce and signature) fields"); err != nil {
		return nil, err
	}
	fields, err := d.readSignature(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: interactive deposit: %w", err)
	}
	if fields.Nonce == nil {
		return nil, fmt.Errorf("signer: interactive deposit: nonce is required")
	}
	tx.Nonce = uint64(*fields.Nonce)
	return d.assemble(tx, fields)
}

// Sign implements Daemon.
func (d *InteractiveDaemon) Sign(ctx context.Context, placeholder []byte) (SignResponse, error) {
	orig := new(types.Transaction)
	if err := orig.UnmarshalBinary(placeholder); err != nil {
		return SignResponse{}, fmt.Errorf("signer: interactive sign: %w", err)
	}
	to := orig.To()
	tx := &types.DynamicFeeTx{
		ChainID:    orig.ChainId(),
		Nonce:      orig.Nonce(),
		GasTipCap:  orig.GasTipCap(),
		GasFeeCap:  orig.GasFeeCap(),
		Gas:        orig.Gas(),
		To:         to,
		Value:      orig.Value(),
		Data:       orig.Data(),
		AccessList: orig.AccessList(),
	}
	if err := d.show(tx, "missing (i.e. signature) fields"); err != nil {
		return SignResponse{}, err
	}
	fields, err := d.readSignature(ctx)
	if err != nil {
		return SignResponse{}, fmt.Errorf("signer: interactive sign: %w", err)
	}
	raw, err := d.assemble(tx, fields)
	if err != nil {
		return SignResponse{}, err
	}
	return SignResponse{Status: "success", SignedData: hexutil.Encode(raw)}, nil
}

func (d *InteractiveDaemon) show(tx *types.DynamicFeeTx, what string) error {
	view := map[string]any{
		"type":                 types.DynamicFeeTxType,
		"chainId":              tx.ChainID.String(),
		"to":                   tx.To.Hex(),
		"value":                tx.Value.String(),
		"data":                 hexutil.Encode(tx.Data),
		"gasLimit":             tx.Gas,
		"maxFeePerGas":         tx.GasFeeCap.String(),
		"maxPriorityFeePerGas": tx.GasTipCap.String(),
	}
	if tx.Nonce != 0 {
		view["nonce"] = tx.Nonce
	}
	enc, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("signer: show transaction: %w", err)
	}
	fmt.Fprintf(d.out, "After the > please provide %s for %s\n", what, enc)
	return nil
}

func (d *InteractiveDaemon) readSignature(ctx context.Context) (signatureFields, error) {
	line, err := d.prompt(ctx)
	if err != nil {
		return signatureFields{}, err
	}
	var fields signatureFields
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return signatureFields{}, fmt.Errorf("parse signature fields: %w", err)
	}
	return fields, nil
}

func (d *InteractiveDaemon) assemble(tx *types.DynamicFeeTx, fields signatureFields) ([]byte, error) {
	v := uint64(fields.V)
	if v >= 27 {
		v -= 27
	}
	r, ok := new(big.Int).SetString(strings.TrimPrefix(fields.R, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("signer: interactive: invalid r %q", fields.R)
	}
	s, ok := new(big.Int).SetString(strings.TrimPrefix(fields.S, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("signer: interactive: invalid s %q", fields.S)
	}
	tx.V = new(big.Int).SetUint64(v)
	tx.R = r
	tx.S = s
	raw, err := types.NewTx(tx).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("signer: interactive: encode: %w", err)
	}
	return raw, nil
}

func (d *InteractiveDaemon) prompt(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(d.out, "> ")
	line, err := d.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// flexUint accepts a JSON number or a decimal or 0x-hex string.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	var (
		n   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") {
		n, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		n, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid integer %s", b)
	}
	*f = flexUint(n)
	return nil
}
