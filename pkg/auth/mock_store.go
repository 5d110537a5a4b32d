package auth

import "sync"

// MockStore is an in-memory credential store for testing
type MockStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	// Error injection for testing failure paths
	StoreErr    error
	RetrieveErr error
	ListErr     error
	DeleteErr   error
}

// NewMockStore creates a new in-memory store
func NewMockStore() *MockStore {
	return &MockStore{accounts: make(map[string]*Account)}
}

func (m *MockStore) Store(account *Account) error {
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Name] = account
	return nil
}

func (m *MockStore) Retrieve(name string) (*Account, error) {
	if m.RetrieveErr != nil {
		return nil, m.RetrieveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return account, nil
}

func (m *MockStore) List() ([]*Account, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Account
	for _, account := range m.accounts {
		result = append(result, account)
	}
	return result, nil
}

func (m *MockStore) Delete(name string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

func (m *MockStore) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[name]
	return ok
}
