package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStoreAndRetrieve(t *testing.T) {
	store := NewMockStore()
	manager := NewManagerWithStores(store)

	account := &Account{
		Name:   "primary",
		APIKey: "test-api-key",
	}

	require.NoError(t, manager.Store(account))
	assert.False(t, account.LastModified.IsZero())

	got, err := manager.Retrieve("primary")
	require.NoError(t, err)
	assert.Equal(t, "test-api-key", got.APIKey)
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(NewMockStore())

	tests := []struct {
		name    string
		account *Account
	}{
		{"missing name", &Account{APIKey: "key"}},
		{"no api key or login", &Account{Name: "x"}},
		{"email without password", &Account{Name: "x", Email: "a@b.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, manager.Store(tt.account))
		})
	}
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreErr = errors.New("store failed")
	broken.RetrieveErr = ErrStoreUnavailable
	working := NewMockStore()

	manager := NewManagerWithStores(broken, working)

	account := &Account{Name: "primary", APIKey: "key"}
	require.NoError(t, manager.Store(account))

	got, err := manager.Retrieve("primary")
	require.NoError(t, err)
	assert.Equal(t, "key", got.APIKey)
}

func TestManagerListMergesByLastModified(t *testing.T) {
	older := NewMockStore()
	older.accounts["primary"] = &Account{
		Name:         "primary",
		APIKey:       "stale",
		LastModified: time.Now().Add(-time.Hour),
	}
	newer := NewMockStore()
	newer.accounts["primary"] = &Account{
		Name:         "primary",
		APIKey:       "fresh",
		LastModified: time.Now(),
	}

	manager := NewManagerWithStores(older, newer)

	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "fresh", accounts[0].APIKey)
}

func TestManagerDelete(t *testing.T) {
	store := NewMockStore()
	manager := NewManagerWithStores(store)

	require.NoError(t, manager.Store(&Account{Name: "primary", APIKey: "key"}))
	require.NoError(t, manager.Delete("primary"))

	_, err := manager.Retrieve("primary")
	assert.Error(t, err)

	assert.Error(t, manager.Delete("missing"))
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Run("not configured", func(t *testing.T) {
		_, err := store.Retrieve("")
		assert.ErrorIs(t, err, ErrCredentialsNotFound)
	})

	t.Run("api key only", func(t *testing.T) {
		t.Setenv("LEADHUNTER_API_KEY", "env-key")

		account, err := store.Retrieve("")
		require.NoError(t, err)
		assert.Equal(t, "env-key", account.APIKey)
		assert.Equal(t, "environment", account.Name)
	})

	t.Run("email and password", func(t *testing.T) {
		t.Setenv("LEADHUNTER_ACCOUNT_EMAIL", "hunter@example.com")
		t.Setenv("LEADHUNTER_ACCOUNT_PASSWORD", "secret")
		t.Setenv("LEADHUNTER_ENRICH_API_KEY", "enrich-key")

		account, err := store.Retrieve("")
		require.NoError(t, err)
		assert.Equal(t, "hunter@example.com", account.Email)
		assert.Equal(t, "enrich-key", account.EnrichAPIKey)
	})

	t.Run("read only", func(t *testing.T) {
		assert.ErrorIs(t, store.Store(&Account{Name: "x"}), ErrStoreUnavailable)
		assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
	})
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEADHUNTER_PASSPHRASE", "test-passphrase")

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)

	account := &Account{
		Name:         "primary",
		Email:        "hunter@example.com",
		Password:     "secret",
		APIKey:       "api-key",
		LastModified: time.Now(),
	}

	require.NoError(t, store.Store(account))
	assert.True(t, store.Exists("primary"))

	got, err := store.Retrieve("primary")
	require.NoError(t, err)
	assert.Equal(t, account.Email, got.Email)
	assert.Equal(t, account.APIKey, got.APIKey)

	// Reopen the store and read again with the same passphrase
	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)

	got, err = reopened.Retrieve("primary")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)

	require.NoError(t, store.Delete("primary"))
	_, err = store.Retrieve("primary")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	t.Setenv("LEADHUNTER_PASSPHRASE", "right")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Name: "primary", APIKey: "key"}))

	t.Setenv("LEADHUNTER_PASSPHRASE", "wrong")
	wrong, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = wrong.Retrieve("primary")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := []byte("passphrase")
	salt := []byte("0123456789abcdef0123456789abcdef")
	plaintext := []byte(`{"name":"primary"}`)

	encrypted, err := encrypt(plaintext, passphrase, salt)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted)

	decrypted, err := decrypt(encrypted, passphrase, salt)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}
