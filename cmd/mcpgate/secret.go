package main

import (
	"fmt"
	"os"

	"github.com/arborio/mcpgate/internal/secrets"
)

func cmdSecret(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mcpgate secret <encrypt|decrypt|identity> [value]")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	sub := args[0]
	rest := args[1:]

	if sub == "identity" {
		if _, err := secrets.EnsureIdentity(cfg.AgeKeyPath); err != nil {
			return fmt.Errorf("ensure age identity: %w", err)
		}
		fmt.Printf("Age identity ready: %s\n", cfg.AgeKeyPath)
		return nil
	}

	encryptor, err := secrets.EnsureIdentity(cfg.AgeKeyPath)
	if err != nil {
		return fmt.Errorf("load age identity: %w", err)
	}

	switch sub {
	case "encrypt":
		if len(rest) < 1 {
			return fmt.Errorf("usage: mcpgate secret encrypt <value>")
		}
		ciphertext, err := encryptor.Encrypt([]byte(rest[0]))
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		fmt.Println(ciphertext)

	case "decrypt":
		if len(rest) < 1 {
			return fmt.Errorf("usage: mcpgate secret decrypt <ciphertext>")
		}
		plaintext, err := encryptor.Decrypt(rest[0])
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		fmt.Println(string(plaintext))

	default:
		return fmt.Errorf("unknown secret command: %s\nUsage: mcpgate secret <encrypt|decrypt|identity>", sub)
	}

	return nil
}
