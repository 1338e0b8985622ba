package credentials

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// mapStore is an in-memory SecretStore for vault tests.
type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (m *mapStore) StoreSecret(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *mapStore) GetSecret(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", key)
	}
	return v, nil
}

func (m *mapStore) DeleteSecret(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", key)
	}
	delete(m.data, key)
	return nil
}

func (m *mapStore) ListSecretKeys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func testVault(t *testing.T) (*AESVault, *mapStore) {
	t.Helper()
	s := newMapStore()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewAESVault(s, VaultConfig{MasterKey: key})
	require.NoError(t, err)
	return v, s
}

// --- AESVault ---

func TestAESVault_StoreAndResolve(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "token", []byte("plaintext-value")))

	raw := s.data["token"]
	assert.NotEqual(t, []byte("plaintext-value"), raw, "encrypted at rest")
	assert.Greater(t, len(raw), len("plaintext-value"))

	val, err := v.Resolve(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext-value"), val)
}

func TestAESVault_PassphraseDerivation(t *testing.T) {
	v, err := NewAESVault(newMapStore(), VaultConfig{
		Passphrase: "my-secure-passphrase",
		Salt:       []byte("test-salt-16byte"),
		Iterations: 1000,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "k", []byte("value")))
	val, err := v.Resolve(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), val)
}

func TestAESVault_WrongKeyCannotDecrypt(t *testing.T) {
	s := newMapStore()
	ctx := context.Background()

	key2 := make([]byte, 32)
	key2[0] = 0xFF

	v1, err := NewAESVault(s, VaultConfig{MasterKey: make([]byte, 32)})
	require.NoError(t, err)
	require.NoError(t, v1.Store(ctx, "secret", []byte("hidden")))

	v2, err := NewAESVault(s, VaultConfig{MasterKey: key2})
	require.NoError(t, err)
	_, err = v2.Resolve(ctx, "secret")
	assert.Equal(t, schema.ErrCodeVault, schema.ErrorCode(err))
}

func TestAESVault_DeleteAndList(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "a", []byte("1")))
	require.NoError(t, v.Store(ctx, "b", []byte("2")))
	require.NoError(t, v.Delete(ctx, "a"))

	keys, err := v.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	_, err = v.Resolve(ctx, "a")
	var flowErr *schema.FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestAESVault_UniqueNonces(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "k1", []byte("same-value")))
	require.NoError(t, v.Store(ctx, "k2", []byte("same-value")))
	assert.False(t, bytes.Equal(s.data["k1"], s.data["k2"]))
}

func TestAESVault_TruncatedCiphertext(t *testing.T) {
	v, s := testVault(t)
	s.data["short"] = []byte{1, 2, 3}

	_, err := v.Resolve(context.Background(), "short")
	assert.Equal(t, schema.ErrCodeVault, schema.ErrorCode(err))
}

func TestAESVault_ConfigErrors(t *testing.T) {
	tests := []struct {
		label string
		cfg   VaultConfig
	}{
		{label: "short master key", cfg: VaultConfig{MasterKey: []byte("too-short")}},
		{label: "nothing", cfg: VaultConfig{}},
		{label: "passphrase without salt", cfg: VaultConfig{Passphrase: "pass"}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			_, err := NewAESVault(newMapStore(), tt.cfg)
			assert.Equal(t, schema.ErrCodeVault, schema.ErrorCode(err))
		})
	}
}

// --- VaultSupplier ---

func TestVaultSupplier_EmptyVault(t *testing.T) {
	v, _ := testVault(t)
	c, err := NewVaultSupplier(v).Credentials(context.Background())
	require.NoError(t, err)
	assert.False(t, c.Valid())
}

func TestVaultSupplier_SaveMergesAndPersists(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	sup := NewVaultSupplier(v)

	_, err := sup.Save(ctx, Credentials{AccessToken: "tok", UserID: "u1"})
	require.NoError(t, err)
	merged, err := sup.Save(ctx, Credentials{CompanyID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: "tok", UserID: "u1", CompanyID: "c1"}, merged)

	assert.NotContains(t, string(s.data[VaultKey]), "tok")

	// A fresh supplier over the same store reads the persisted triple.
	again, err := NewVaultSupplier(v).Credentials(ctx)
	require.NoError(t, err)
	assert.True(t, again.Valid())
	assert.Equal(t, merged, again)
}

func TestVaultSupplier_CachesAfterFirstRead(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	sup := NewVaultSupplier(v)

	for i := 0; i < 3; i++ {
		_, err := sup.Credentials(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.gets)
}

func TestVaultSupplier_Clear(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()
	sup := NewVaultSupplier(v)

	_, err := sup.Save(ctx, Credentials{AccessToken: "t", UserID: "u", CompanyID: "c"})
	require.NoError(t, err)
	require.NoError(t, sup.Clear(ctx))
	require.NoError(t, sup.Clear(ctx), "clearing twice is fine")

	c, err := sup.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, c)
	assert.NotContains(t, s.data, VaultKey)
}

func TestVaultSupplier_CorruptPayload(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()
	require.NoError(t, v.Store(ctx, VaultKey, []byte("not json")))

	_, err := NewVaultSupplier(v).Credentials(ctx)
	assert.Equal(t, schema.ErrCodeVault, schema.ErrorCode(err))
}
