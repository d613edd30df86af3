// Package secret seals small credentials (sync tokens, API keys) before they
// are written to the local database.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4

	prefix = "sealed:"
)

var ErrDecrypt = errors.New("decrypt sealed value")

// Sealer encrypts values with AES-256-GCM under a key derived from a
// passphrase with Argon2id. Sealed output is
// "sealed:" + base64([16-byte salt][12-byte nonce][ciphertext]).
type Sealer struct {
	passphrase string

	mu   sync.Mutex
	keys map[string][]byte
}

// New returns a Sealer. An empty passphrase yields a nil Sealer, which
// passes values through unchanged.
func New(passphrase string) *Sealer {
	if passphrase == "" {
		return nil
	}
	return &Sealer{passphrase: passphrase, keys: make(map[string][]byte)}
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil
}

func (s *Sealer) key(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	k := argon2.IDKey([]byte(s.passphrase), salt, argonTime, argonMem, argonPar, keySize)
	s.keys[string(salt)] = k
	return k
}

func (s *Sealer) gcm(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}

	buf := make([]byte, saltSize+nonceSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt, nonce := buf[:saltSize], buf[saltSize:]

	gcm, err := s.gcm(salt)
	if err != nil {
		return "", err
	}

	out := gcm.Seal(buf, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned as-is so plaintext rows written before a secret was set keep
// working.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("%w: no secret configured", ErrDecrypt)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(data) < saltSize+nonceSize {
		return "", fmt.Errorf("%w: value too small", ErrDecrypt)
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]

	gcm, err := s.gcm(salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, data[saltSize+nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
