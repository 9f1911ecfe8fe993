package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/rocketarb/rocketarb/internal/crypto"
)

// encryptKeyCommand seals a hex private key into a password-protected key
// file usable as relay.auth_key_path or wallet.key_path.
func encryptKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "encrypt-key",
		Usage:     "encrypt a hex private key (read from stdin) into a key file",
		ArgsUsage: "<output file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "password",
				Usage:    "password protecting the key file",
				EnvVars:  []string{"ROCKETARB_KEY_PASSWORD"},
				Required: true,
			},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("encrypt-key: exactly one output file is required")
			}
			return encryptKey(c.App.Reader, c.App.Writer, c.Args().First(), c.String("password"), c.Bool("force"))
		},
	}
}

func encryptKey(in io.Reader, out io.Writer, path, password string, force bool) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("encrypt-key: read key: %w", err)
	}
	key, err := crypto.ParseHex(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	data, err := crypto.Seal(key, password)
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("encrypt-key: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("encrypt-key: close %s: %w", path, err)
	}
	fmt.Fprintf(out, "Wrote key for %s to %s\n", ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), path)
	return nil
}
