package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// Envelope layout: one version byte, then the GCM nonce, then the
// ciphertext. The key name is bound in as additional authenticated data, so
// a ciphertext row copied under a different key fails to open.
const (
	envelopeVersion byte = 1
	aadPrefix            = "flowmesh:secret:"
)

// VaultConfig selects the AES-256-GCM key: either a raw 32-byte MasterKey,
// or a Passphrase stretched with PBKDF2 over Salt.
type VaultConfig struct {
	MasterKey  []byte
	Passphrase string
	Salt       []byte
	Iterations int // PBKDF2 rounds, default 100_000
}

// AESVault encrypts every secret before it reaches the store and validates
// key names against the template grammar on every operation.
type AESVault struct {
	store SecretStore
	aead  cipher.AEAD
}

// NewAESVault builds a vault over a ciphertext store.
func NewAESVault(s SecretStore, cfg VaultConfig) (*AESVault, error) {
	key, err := cfg.derive()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESVault{store: s, aead: aead}, nil
}

func (cfg VaultConfig) derive() ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeVault, "either master_key or passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeVault, "salt is required with passphrase")
	}
	rounds := cfg.Iterations
	if rounds <= 0 {
		rounds = 100_000
	}
	return pbkdf2.Key([]byte(cfg.Passphrase), cfg.Salt, rounds, 32, sha256.New), nil
}

// Store validates the key, seals the value bound to that key, and persists
// the envelope.
func (v *AESVault) Store(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	sealed, err := v.seal(key, value)
	if err != nil {
		return err
	}
	return v.store.StoreSecret(ctx, key, sealed)
}

// Resolve fetches and opens a secret. The plaintext must never be persisted
// or logged by the caller.
func (v *AESVault) Resolve(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	sealed, err := v.store.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.open(key, sealed)
}

func (v *AESVault) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return v.store.DeleteSecret(ctx, key)
}

func (v *AESVault) List(ctx context.Context) ([]string, error) {
	return v.store.ListSecrets(ctx)
}

func (v *AESVault) seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	envelope := make([]byte, 0, 1+len(nonce)+len(plaintext)+v.aead.Overhead())
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, nonce...)
	return v.aead.Seal(envelope, nonce, plaintext, aad(key)), nil
}

func (v *AESVault) open(key string, envelope []byte) ([]byte, error) {
	if len(envelope) < 1+v.aead.NonceSize() {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "secret %q: envelope too short", key)
	}
	if envelope[0] != envelopeVersion {
		return nil, schema.NewErrorf(schema.ErrCodeVault,
			"secret %q: unknown envelope version %d", key, envelope[0])
	}
	nonce := envelope[1 : 1+v.aead.NonceSize()]
	ciphertext := envelope[1+v.aead.NonceSize():]

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, aad(key))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault,
			"secret %q: decrypt failed (wrong vault key, or value bound to another name)", key)
	}
	return plaintext, nil
}

// aad binds a ciphertext to the key it was stored under.
func aad(key string) []byte {
	return []byte(aadPrefix + key)
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return schema.NewErrorf(schema.ErrCodeVault,
			"invalid secret key %q: keys must match [A-Z][A-Z0-9_]*", key)
	}
	return nil
}

var _ Vault = (*AESVault)(nil)
