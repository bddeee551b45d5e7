// Package sealed encrypts small secrets (portal credentials) before they are
// written anywhere durable. Keys come from a passphrase via argon2id; the
// cipher is XChaCha20-Poly1305 with a random nonce.
package sealed

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	formatVersion = 1
	keyBytes      = chacha20poly1305.KeySize
	saltBytes     = 16
)

// ErrWrongPassphrase is returned when a box cannot be opened, either because
// the passphrase differs or the ciphertext was modified.
var ErrWrongPassphrase = errors.New("sealed: wrong passphrase or corrupted box")

// Box is the serialisable sealed form.
type Box struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// Sealer seals and opens boxes under one passphrase.
type Sealer struct {
	passphrase []byte
}

// New returns a Sealer for passphrase. An empty passphrase gets a random
// per-process one, so boxes only open inside the process that sealed them.
func New(passphrase string) (*Sealer, error) {
	if passphrase != "" {
		return &Sealer{passphrase: []byte(passphrase)}, nil
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("sealed: random passphrase: %w", err)
	}
	return &Sealer{passphrase: []byte(base64.RawStdEncoding.EncodeToString(random))}, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1<<16, 8, 1, keyBytes)
}

// Seal encrypts plaintext into a fresh Box.
func (s *Sealer) Seal(plaintext []byte) (*Box, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("sealed: salt: %w", err)
	}

	key := deriveKey(s.passphrase, salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealed: cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealed: nonce: %w", err)
	}

	return &Box{
		V:      formatVersion,
		Salt:   salt,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plaintext, salt),
	}, nil
}

// Open decrypts box.
func (s *Sealer) Open(box *Box) ([]byte, error) {
	if box == nil {
		return nil, ErrWrongPassphrase
	}
	if box.V > formatVersion {
		return nil, fmt.Errorf("sealed: unsupported box version %d", box.V)
	}

	key := deriveKey(s.passphrase, box.Salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealed: cipher: %w", err)
	}
	if len(box.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	pt, err := aead.Open(nil, box.Nonce, box.Cipher, box.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// SealString is Seal for text.
func (s *Sealer) SealString(plaintext string) (*Box, error) {
	return s.Seal([]byte(plaintext))
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
