package auth

import (
	"fmt"
	"os"
	"time"
)

// EnvironmentStore reads credentials from environment variables.
// This is a read-only store for CI and container deployments.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment variable store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return fmt.Errorf("%w: environment store is read-only", ErrStoreUnavailable)
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	email := os.Getenv("LEADHUNTER_ACCOUNT_EMAIL")
	password := os.Getenv("LEADHUNTER_ACCOUNT_PASSWORD")
	apiKey := os.Getenv("LEADHUNTER_API_KEY")

	if apiKey == "" && (email == "" || password == "") {
		return nil, ErrCredentialsNotFound
	}

	account := &Account{
		Name:         "environment",
		Email:        email,
		Password:     password,
		APIKey:       apiKey,
		EnrichAPIKey: os.Getenv("LEADHUNTER_ENRICH_API_KEY"),
		LastModified: time.Now(),
	}

	// If a specific name was requested, it must match
	if name != "" && name != account.Name {
		return nil, ErrCredentialsNotFound
	}

	return account, nil
}

// List returns the environment account if configured
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return nil, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return fmt.Errorf("%w: environment store is read-only", ErrStoreUnavailable)
}

// Exists checks if environment credentials are configured
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
