// Package secrets encrypts downstream launch-descriptor environment
// values at rest using age, so an operator's mcp-config.json never holds
// plaintext API keys on disk.
package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

const ciphertextPrefix = "-----BEGIN AGE ENCRYPTED FILE-----"

// Encryptor wraps a single age identity used to encrypt and decrypt
// downstream env overlay values.
type Encryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewEncryptor parses an existing age identity (the "AGE-SECRET-KEY-..."
// string format) and returns an Encryptor bound to it.
func NewEncryptor(identityStr string) (*Encryptor, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identityStr))
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}
	return &Encryptor{identity: id, recipient: id.Recipient()}, nil
}

// EnsureIdentity loads the age identity from keyPath, generating and
// persisting a new one if the file does not exist. Mirrors the
// auto-generated-key-file fallback a gateway deployment relies on when no
// explicit identity is configured.
func EnsureIdentity(keyPath string) (*Encryptor, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		return NewEncryptor(string(data))
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read age key file %s: %w", keyPath, err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write age key file %s: %w", keyPath, err)
	}
	return &Encryptor{identity: id, recipient: id.Recipient()}, nil
}

// Encrypt encrypts plaintext to this Encryptor's own recipient and returns
// an ASCII-armored ciphertext suitable for storage in a JSON config file.
func (e *Encryptor) Encrypt(plaintext []byte) (string, error) {
	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)

	w, err := age.Encrypt(armorWriter, e.recipient)
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", fmt.Errorf("write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close age writer: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("close armor writer: %w", err)
	}
	return buf.String(), nil
}

// Decrypt decrypts an ASCII-armored ciphertext produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) ([]byte, error) {
	armorReader := armor.NewReader(strings.NewReader(ciphertext))
	r, err := age.Decrypt(armorReader, e.identity)
	if err != nil {
		return nil, fmt.Errorf("age decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plaintext: %w", err)
	}
	return plaintext, nil
}

// IsCiphertext reports whether value looks like an age-armored ciphertext
// rather than a plaintext environment value.
func IsCiphertext(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), ciphertextPrefix)
}

// DecryptEnv returns a copy of env with every age-ciphertext value
// decrypted in place. Non-ciphertext values pass through unchanged.
func (e *Encryptor) DecryptEnv(env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if !IsCiphertext(v) {
			out[k] = v
			continue
		}
		plaintext, err := e.Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("decrypt env value %q: %w", k, err)
		}
		out[k] = string(plaintext)
	}
	return out, nil
}
