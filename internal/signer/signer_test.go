package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func unsignedTx(nonce uint64) *types.DynamicFeeTx {
	to := common.HexToAddress("0x1000000000000000000000000000000000000002")
	return &types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     nonce,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       220_000,
		To:        &to,
		Value:     big.NewInt(1),
		Data:      []byte{0xd0, 0xe3, 0x0d, 0xb0},
	}
}

// keyDaemon re-signs placeholders with a fixed key, optionally tampering.
type keyDaemon struct {
	key      *ecdsa.PrivateKey
	status   string
	tamper   func(tx *types.DynamicFeeTx)
	raw      string
	version  string
	deposits []domain.DepositIntent
}

func (d *keyDaemon) Version(context.Context) (string, error) { return d.version, nil }

func (d *keyDaemon) Deposit(_ context.Context, intent domain.DepositIntent) ([]byte, error) {
	d.deposits = append(d.deposits, intent)
	tx, err := types.SignNewTx(d.key, types.LatestSignerForChainID(big.NewInt(1)), unsignedTx(7))
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}

func (d *keyDaemon) Sign(_ context.Context, placeholder []byte) (SignResponse, error) {
	if d.status != "" && d.status != "success" {
		return SignResponse{Status: d.status, Error: "wallet locked"}, nil
	}
	if d.raw != "" {
		return SignResponse{Status: "success", SignedData: d.raw}, nil
	}
	orig := new(types.Transaction)
	if err := orig.UnmarshalBinary(placeholder); err != nil {
		return SignResponse{}, err
	}
	inner := &types.DynamicFeeTx{
		ChainID:   orig.ChainId(),
		Nonce:     orig.Nonce(),
		GasTipCap: orig.GasTipCap(),
		GasFeeCap: orig.GasFeeCap(),
		Gas:       orig.Gas(),
		To:        orig.To(),
		Value:     orig.Value(),
		Data:      orig.Data(),
	}
	if d.tamper != nil {
		d.tamper(inner)
	}
	signed, err := types.SignNewTx(d.key, types.LatestSignerForChainID(inner.ChainID), inner)
	if err != nil {
		return SignResponse{}, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return SignResponse{}, err
	}
	return SignResponse{Status: "success", SignedData: hexutil.Encode(raw)}, nil
}

func TestRemoteSignTx(t *testing.T) {
	key := mustKey(t)
	r, err := NewRemote(&keyDaemon{key: key}, discard())
	require.NoError(t, err)

	unsigned := unsignedTx(8)
	signed, err := r.SignTx(context.Background(), unsigned, crypto.PubkeyToAddress(key.PublicKey))
	require.NoError(t, err)
	require.Equal(t, uint64(8), signed.Nonce())

	from, err := Recover(signed)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), from)
}

func TestRemoteSignTxDaemonError(t *testing.T) {
	r, err := NewRemote(&keyDaemon{key: mustKey(t), status: "error"}, discard())
	require.NoError(t, err)

	_, err = r.SignTx(context.Background(), unsignedTx(1), common.Address{})
	require.ErrorIs(t, err, domain.ErrDaemonRejected)
	require.Contains(t, err.Error(), "wallet locked")
}

func TestRemoteSignTxWrongKey(t *testing.T) {
	r, err := NewRemote(&keyDaemon{key: mustKey(t)}, discard())
	require.NoError(t, err)

	expected := crypto.PubkeyToAddress(mustKey(t).PublicKey)
	_, err = r.SignTx(context.Background(), unsignedTx(1), expected)
	require.ErrorIs(t, err, domain.ErrSenderMismatch)
}

func TestRemoteSignTxTamperedPayload(t *testing.T) {
	key := mustKey(t)
	daemon := &keyDaemon{key: key, tamper: func(tx *types.DynamicFeeTx) { tx.Nonce++ }}
	r, err := NewRemote(daemon, discard())
	require.NoError(t, err)

	_, err = r.SignTx(context.Background(), unsignedTx(1), crypto.PubkeyToAddress(key.PublicKey))
	require.ErrorIs(t, err, domain.ErrPayloadMismatch)
}

func TestRemoteSignTxCorruptedSignature(t *testing.T) {
	key := mustKey(t)
	signed, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), unsignedTx(1))
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	// Flip a byte inside the s value at the end of the envelope.
	raw[len(raw)-3] ^= 0xff

	r, err := NewRemote(&keyDaemon{key: key, raw: hexutil.Encode(raw)}, discard())
	require.NoError(t, err)

	_, err = r.SignTx(context.Background(), unsignedTx(1), crypto.PubkeyToAddress(key.PublicKey))
	require.Error(t, err)
}

func TestRemoteDepositCreditDetection(t *testing.T) {
	intent := domain.DepositIntent{
		Amount:         new(big.Int).Mul(big.NewInt(8), domain.OneEther),
		MinimumNodeFee: "0.14",
		Salt:           big.NewInt(1),
		UseCredit:      true,
	}

	old := &keyDaemon{key: mustKey(t), version: "rocketpool version 1.8.2"}
	r, err := NewRemote(old, discard())
	require.NoError(t, err)
	tx, err := r.Deposit(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, uint64(7), tx.Nonce())
	require.False(t, old.deposits[0].UseCredit)

	current := &keyDaemon{key: mustKey(t), version: "rocketpool version 1.10.0"}
	r, err = NewRemote(current, discard())
	require.NoError(t, err)
	_, err = r.Deposit(context.Background(), intent)
	require.NoError(t, err)
	require.True(t, current.deposits[0].UseCredit)

	broken := &keyDaemon{key: mustKey(t), version: "command not found"}
	r, err = NewRemote(broken, discard())
	require.NoError(t, err)
	_, err = r.Deposit(context.Background(), intent)
	require.Error(t, err)
	require.Empty(t, broken.deposits)
}

func TestSupportsCredit(t *testing.T) {
	cases := []struct {
		out  string
		want bool
		err  bool
	}{
		{"rocketpool version 1.9.0", true, false},
		{"rocketpool version 1.8.9\n", false, false},
		{"rocketpool version 2.0.0", true, false},
		{"rocketpool version 1.11.3", true, false},
		{"rocketpool 1.9.0", false, true},
		{"rocketpool version x.y", false, true},
	}
	for _, tc := range cases {
		got, err := SupportsCredit(tc.out)
		if tc.err {
			require.Error(t, err, tc.out)
			continue
		}
		require.NoError(t, err, tc.out)
		require.Equal(t, tc.want, got, tc.out)
	}
}

func TestCommandDaemonArguments(t *testing.T) {
	d, err := NewCommandDaemon("docker exec rocketpool_node /go/bin/rocketpool",
		CommandOptions{MaxFeeGwei: "30", MaxPrioGwei: "2", ExtraArgs: "--gasLimit 2500000"}, discard())
	require.NoError(t, err)

	var calls [][]string
	d.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		if args[len(args)-2] == "sign" {
			return []byte(`{"status":"success","signedData":"0x02"}` + "\n"), nil
		}
		return []byte("02f8\n"), nil
	}

	raw, err := d.Deposit(context.Background(), domain.DepositIntent{
		Amount:         new(big.Int).Mul(big.NewInt(8), domain.OneEther),
		MinimumNodeFee: "0.14",
		Salt:           big.NewInt(255),
		UseCredit:      true,
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0xf8}, raw)
	require.Equal(t, "docker exec rocketpool_node /go/bin/rocketpool --maxFee 30 --maxPrioFee 2 --gasLimit 2500000 api node deposit 8000000000000000000 0.14 255 true false",
		strings.Join(calls[0], " "))

	resp, err := d.Sign(context.Background(), []byte{0xab, 0xcd})
	require.NoError(t, err)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, "docker exec rocketpool_node /go/bin/rocketpool api node sign abcd", strings.Join(calls[1], " "))
}

func TestCommandDaemonEmpty(t *testing.T) {
	_, err := NewCommandDaemon("  ", CommandOptions{}, discard())
	require.ErrorIs(t, err, domain.ErrInvalidOptions)
}

func TestInteractiveDaemonSign(t *testing.T) {
	key := mustKey(t)
	unsigned := unsignedTx(3)
	signed, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), unsigned)
	require.NoError(t, err)
	v, r, s := signed.RawSignatureValues()

	input := fmt.Sprintf(`{"v": "%d", "r": "0x%x", "s": "0x%x"}`+"\n", v.Uint64()+27, r, s)
	var out bytes.Buffer
	d := NewInteractiveDaemon(strings.NewReader(input), &out, common.Address{}, big.NewInt(1), 2_500_000, InteractiveFees{})

	remote, err := NewRemote(d, discard())
	require.NoError(t, err)
	got, err := remote.SignTx(context.Background(), unsigned, crypto.PubkeyToAddress(key.PublicKey))
	require.NoError(t, err)
	require.Equal(t, signed.Hash(), got.Hash())
	require.Contains(t, out.String(), "signature")
}

func TestInteractiveDaemonDeposit(t *testing.T) {
	key := mustKey(t)
	nodeDeposit := common.HexToAddress("0x1000000000000000000000000000000000000003")
	amount := new(big.Int).Mul(big.NewInt(8), domain.OneEther)
	calldata := []byte{0x01, 0x02, 0x03, 0x04}

	expected := &types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     12,
		GasTipCap: new(big.Int).Mul(big.NewInt(2), domain.OneGwei),
		GasFeeCap: new(big.Int).Mul(big.NewInt(16), domain.OneGwei),
		Gas:       2_500_000,
		To:        &nodeDeposit,
		Value:     amount,
		Data:      calldata,
	}
	signed, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), expected)
	require.NoError(t, err)
	v, r, s := signed.RawSignatureValues()
	sig, err := json.Marshal(map[string]any{"nonce": 12, "v": v.Uint64(), "r": hexutil.EncodeBig(r), "s": hexutil.EncodeBig(s)})
	require.NoError(t, err)

	input := hexutil.Encode(calldata) + "\n" + string(sig) + "\n"
	d := NewInteractiveDaemon(strings.NewReader(input), io.Discard, nodeDeposit, big.NewInt(1), 2_500_000, InteractiveFees{})

	raw, err := d.Deposit(context.Background(), domain.DepositIntent{Amount: amount, MinimumNodeFee: "0.14", Salt: big.NewInt(1)})
	require.NoError(t, err)
	got := new(types.Transaction)
	require.NoError(t, got.UnmarshalBinary(raw))
	require.Equal(t, signed.Hash(), got.Hash())
	require.NoError(t, VerifySender(got, crypto.PubkeyToAddress(key.PublicKey)))
}

func TestLocalSigner(t *testing.T) {
	key := mustKey(t)
	l := NewLocal(key)
	tx, err := l.SignTx(types.NewTx(unsignedTx(0)))
	require.NoError(t, err)
	require.NoError(t, VerifySender(tx, l.Address()))

	_, err = NewLocalFromHex("0xzz")
	require.Error(t, err)
}
