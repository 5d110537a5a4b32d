package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "leadhunter"
	keyringPrefix  = "leadhunter_"
	accountListKey = "leadhunter_accounts"
)

// KeyringStore uses the system keychain for credential storage
type KeyringStore struct{}

// NewKeyringStore creates a new keyring store and verifies availability
func NewKeyringStore() (*KeyringStore, error) {
	// Probe the keyring with a test entry
	testKey := keyringPrefix + "availability_test"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("%w: keyring not available: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	key := keyringPrefix + account.Name
	if err := keyring.Set(keyringService, key, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return k.addToAccountList(account.Name)
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	key := keyringPrefix + name
	data, err := keyring.Get(keyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("%w: corrupt keyring entry", ErrInvalidCredentials)
	}

	return &account, nil
}

// List returns all accounts stored in the keychain
func (k *KeyringStore) List() ([]*Account, error) {
	names, err := k.getAccountList()
	if err != nil {
		return nil, err
	}

	var accounts []*Account
	for _, name := range names {
		account, err := k.Retrieve(name)
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(name string) error {
	key := keyringPrefix + name
	if err := keyring.Delete(keyringService, key); err != nil {
		if err == keyring.ErrNotFound {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return k.removeFromAccountList(name)
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(name string) bool {
	_, err := k.Retrieve(name)
	return err == nil
}

func (k *KeyringStore) getAccountList() ([]string, error) {
	data, err := keyring.Get(keyringService, accountListKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if data == "" {
		return nil, nil
	}
	return strings.Split(data, ","), nil
}

func (k *KeyringStore) addToAccountList(name string) error {
	names, err := k.getAccountList()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	names = append(names, name)
	return keyring.Set(keyringService, accountListKey, strings.Join(names, ","))
}

func (k *KeyringStore) removeFromAccountList(name string) error {
	names, err := k.getAccountList()
	if err != nil {
		return err
	}
	var remaining []string
	for _, n := range names {
		if n != name {
			remaining = append(remaining, n)
		}
	}
	return keyring.Set(keyringService, accountListKey, strings.Join(remaining, ","))
}
