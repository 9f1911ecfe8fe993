// Package crypto loads and seals the secp256k1 keys rocketarb signs with
// locally: the relay auth key and the watch-mode wallet.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 480_000
	saltLen    = 16
	aesKeyLen  = 32
	version    = 1
)

// keyFile is the on-disk format written by Seal.
type keyFile struct {
	Version    int            `json:"version"`
	Address    common.Address `json:"address"`
	Iterations int            `json:"iterations"`
	Salt       hexutil.Bytes  `json:"salt"`
	Nonce      hexutil.Bytes  `json:"nonce"`
	Ciphertext hexutil.Bytes  `json:"ciphertext"`
}

// Source says where a key comes from. Hex wins over Path.
type Source struct {
	Hex      string
	Path     string
	Password string
}

// Configured reports whether any key source is set.
func (s Source) Configured() bool {
	return s.Hex != "" || s.Path != ""
}

// Seal encrypts key under password with PBKDF2-SHA256 and AES-256-GCM.
func Seal(key *ecdsa.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := newGCM(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	out := keyFile{
		Version:    version,
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		Iterations: iterations,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key), nil),
	}
	return json.MarshalIndent(out, "", "  ")
}

// Open decrypts a key sealed by Seal or a standard Ethereum keystore (v3)
// file, such as the ones geth and the smartnode write.
func Open(data []byte, password string) (*ecdsa.PrivateKey, error) {
	var probe struct {
		Crypto json.RawMessage `json:"crypto"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if len(probe.Crypto) > 0 {
		k, err := keystore.DecryptKey(data, password)
		if err != nil {
			return nil, fmt.Errorf("crypto: keystore: %w", err)
		}
		return k.PrivateKey, nil
	}

	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if f.Version != version {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", f.Version)
	}
	gcm, err := newGCM(password, f.Salt, f.Iterations)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, f.Nonce, f.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	key, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypted key: %w", err)
	}
	if got := ethcrypto.PubkeyToAddress(key.PublicKey); got != f.Address {
		return nil, fmt.Errorf("crypto: key file is for %s but decrypts to %s", f.Address.Hex(), got.Hex())
	}
	return key, nil
}

// Load resolves the key described by src.
func Load(src Source) (*ecdsa.PrivateKey, error) {
	if src.Hex != "" {
		key, err := ParseHex(src.Hex)
		if err != nil {
			return nil, err
		}
		return key, nil
	}
	if src.Path != "" {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return Open(data, src.Password)
	}
	return nil, errors.New("crypto: no key source configured")
}

// ParseHex parses a hex private key with or without 0x.
func ParseHex(s string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return key, nil
}

func newGCM(password string, salt []byte, iter int) (cipher.AEAD, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if iter <= 0 {
		return nil, fmt.Errorf("crypto: bad iteration count %d", iter)
	}
	derived := pbkdf2.Key([]byte(password), salt, iter, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
