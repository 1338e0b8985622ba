package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"sync"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// SecretStore is the persistence the vault needs. Satisfied by store.Store.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecretKeys(ctx context.Context) ([]string, error)
}

// VaultConfig configures the AES vault key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       []byte // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// AESVault encrypts values with AES-256-GCM before persisting them.
type AESVault struct {
	store SecretStore
	aead  cipher.AEAD
}

// NewAESVault creates a vault with AES-256-GCM encryption.
func NewAESVault(s SecretStore, cfg VaultConfig) (*AESVault, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "aes cipher").WithCause(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "gcm").WithCause(err)
	}
	return &AESVault{store: s, aead: aead}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
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
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

func (v *AESVault) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "generate nonce").WithCause(err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *AESVault) open(ciphertext []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, schema.NewError(schema.ErrCodeVault, "ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "decrypt failed").WithCause(err)
	}
	return plaintext, nil
}

func (v *AESVault) Store(ctx context.Context, key string, value []byte) error {
	sealed, err := v.seal(value)
	if err != nil {
		return err
	}
	return v.store.StoreSecret(ctx, key, sealed)
}

func (v *AESVault) Resolve(ctx context.Context, key string) ([]byte, error) {
	sealed, err := v.store.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.open(sealed)
}

func (v *AESVault) Delete(ctx context.Context, key string) error {
	return v.store.DeleteSecret(ctx, key)
}

func (v *AESVault) List(ctx context.Context) ([]string, error) {
	return v.store.ListSecretKeys(ctx)
}

// VaultKey is the secret key the credential triple is stored under.
const VaultKey = "backend.credentials"

// VaultSupplier keeps the credential triple in an AESVault and serves it
// from memory after the first read.
type VaultSupplier struct {
	vault *AESVault

	mu     sync.RWMutex
	cached *Credentials
}

// NewVaultSupplier creates a supplier over vault.
func NewVaultSupplier(vault *AESVault) *VaultSupplier {
	return &VaultSupplier{vault: vault}
}

// Credentials returns the stored triple. Nothing stored yields an empty
// triple and no error; callers check Valid.
func (s *VaultSupplier) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.RLock()
	if s.cached != nil {
		c := *s.cached
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return *s.cached, nil
	}

	raw, err := s.vault.Resolve(ctx, VaultKey)
	if schema.ErrorCode(err) == schema.ErrCodeNotFound {
		s.cached = &Credentials{}
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, schema.NewError(schema.ErrCodeVault, "stored credentials are corrupt").WithCause(err)
	}
	s.cached = &c
	return c, nil
}

// Save merges c into the stored triple and persists the result.
func (s *VaultSupplier) Save(ctx context.Context, c Credentials) (Credentials, error) {
	current, err := s.Credentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	merged := current.Merge(c)

	raw, err := json.Marshal(merged)
	if err != nil {
		return Credentials{}, schema.NewError(schema.ErrCodeVault, "marshal credentials").WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.vault.Store(ctx, VaultKey, raw); err != nil {
		return Credentials{}, err
	}
	s.cached = &merged
	return merged, nil
}

// Clear forgets the stored triple.
func (s *VaultSupplier) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = &Credentials{}
	err := s.vault.Delete(ctx, VaultKey)
	if schema.ErrorCode(err) == schema.ErrCodeNotFound {
		return nil
	}
	return err
}
