package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Overhead is the number of bytes sealing adds: a 12-byte nonce and a 16-byte tag.
const Overhead = 12 + 16

// ErrOpen is returned when sealed data fails authentication.
var ErrOpen = errors.New("crypto: message authentication failed")

// Sealer encrypts and authenticates objects with one named key.
type Sealer struct {
	keys  KeyProvider
	keyID string
}

// NewSealer creates a Sealer using key keyID from keys.
func NewSealer(keys KeyProvider, keyID string) *Sealer {
	return &Sealer{keys: keys, keyID: keyID}
}

func (s *Sealer) aead(ctx context.Context) (cipher.AEAD, error) {
	key, err := s.keys.GetKey(ctx, s.keyID)
	if err != nil {
		return nil, fmt.Errorf("crypto: get key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	return gcm, nil
}

// Seal returns nonce || ciphertext || tag for plaintext, bound to aad.
func (s *Sealer) Seal(ctx context.Context, aad string, plaintext []byte) ([]byte, error) {
	gcm, err := s.aead(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	return gcm.Seal(out, out, plaintext, []byte(aad)), nil
}

// Open reverses Seal. Tampered data, a wrong key or a different aad yield ErrOpen.
func (s *Sealer) Open(ctx context.Context, aad string, sealed []byte) ([]byte, error) {
	gcm, err := s.aead(ctx)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("sealed object is %d bytes: %w", len(sealed), ErrOpen)
	}

	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ct, []byte(aad))
	if err != nil {
		return nil, ErrOpen
	}

	return plaintext, nil
}
