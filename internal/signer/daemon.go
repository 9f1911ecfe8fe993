package signer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Daemon is the smartnode that owns the node account's key.
type Daemon interface {
	// Deposit asks the smartnode to create and sign a minipool deposit
	// without submitting it, returning the raw signed transaction.
	Deposit(ctx context.Context, intent domain.DepositIntent) ([]byte, error)
	// Sign asks the smartnode to sign the transaction encoded in
	// placeholder, which carries a throwaway signature.
	Sign(ctx context.Context, placeholder []byte) (SignResponse, error)
}

// Versioned daemons report their smartnode version.
type Versioned interface {
	Version(ctx context.Context) (string, error)
}

// SignResponse is the daemon's reply to a sign request.
type SignResponse struct {
	Status     string `json:"status"`
	SignedData string `json:"signedData"`
	Error      string `json:"error"`
}

// SupportsCredit parses "rocketpool version x.y.z" and reports whether the
// smartnode accepts the use-credit argument (1.9 and later).
func SupportsCredit(output string) (bool, error) {
	fields := strings.Fields(output)
	if len(fields) != 3 || fields[0] != "rocketpool" || fields[1] != "version" {
		return false, fmt.Errorf("signer: expected rocketpool version x.y.z, got %q", strings.TrimSpace(output))
	}
	parts := strings.Split(fields[2], ".")
	if len(parts) < 2 {
		return false, fmt.Errorf("signer: malformed version %q", fields[2])
	}
	major, err := strconv.Atoi(strings.TrimPrefix(parts[0], "v"))
	if err != nil {
		return false, fmt.Errorf("signer: malformed version %q: %w", fields[2], err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false, fmt.Errorf("signer: malformed version %q: %w", fields[2], err)
	}
	return major > 1 || (major == 1 && minor >= 9), nil
}
