package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
)

// envelopePrefix marks an encrypted slot value.
const envelopePrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// encryptionMiddleware encrypts every slot value with AES-GCM. Templates and
// runs pass through untouched.
type encryptionMiddleware struct {
	ports.Repository
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts slot values at rest.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.Repository) ports.Repository {
		return &encryptionMiddleware{Repository: next, config: config}
	}
}

func (m *encryptionMiddleware) seal(name string, value any) (string, error) {
	plain, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal slot %q: %w", name, err)
	}
	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt slot %q: %w", name, err)
	}
	return envelopePrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *encryptionMiddleware) open(name string, stored any) (any, error) {
	s, ok := stored.(string)
	if !ok || !strings.HasPrefix(s, envelopePrefix) {
		// Fail secure: with encryption configured every value must be sealed.
		return nil, fmt.Errorf("slot %q is missing its encrypted envelope", name)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, envelopePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode slot %q: %w", name, err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt slot %q: %w", name, err)
	}
	var value any
	if err := json.Unmarshal(plain, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slot %q: %w", name, err)
	}
	return value, nil
}

func (m *encryptionMiddleware) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	sealed := rs.Clone()
	for name, v := range sealed.SlotData {
		s, err := m.seal(name, v)
		if err != nil {
			return err
		}
		sealed.SlotData[name] = s
	}
	return m.Repository.AppendRunState(ctx, sealed)
}

func (m *encryptionMiddleware) PutSlot(ctx context.Context, runStateID, name string, value any) error {
	s, err := m.seal(name, value)
	if err != nil {
		return err
	}
	return m.Repository.PutSlot(ctx, runStateID, name, s)
}

func (m *encryptionMiddleware) decryptState(rs *domain.RunState) error {
	for name, v := range rs.SlotData {
		plain, err := m.open(name, v)
		if err != nil {
			return err
		}
		rs.SlotData[name] = plain
	}
	return nil
}

func (m *encryptionMiddleware) LoadRunState(ctx context.Context, id string) (*domain.RunState, error) {
	rs, err := m.Repository.LoadRunState(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.decryptState(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (m *encryptionMiddleware) ListRunStates(ctx context.Context, runID string) ([]*domain.RunState, error) {
	visits, err := m.Repository.ListRunStates(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, rs := range visits {
		if err := m.decryptState(rs); err != nil {
			return nil, err
		}
	}
	return visits, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
