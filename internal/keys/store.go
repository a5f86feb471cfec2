// Package keys stores secrets, such as SSH passwords, outside the config file.
package keys

import (
	"errors"
	"strconv"
	"sync"
)

// SecretStore keeps one secret per account name.
type SecretStore interface {
	Get(account string) (string, error)
	Put(account, secret string) error
	Delete(account string) error
}

var ErrNotFound = errors.New("secret not found")

// SSHAccount names the secret for an SSH login.
func SSHAccount(user, ip string, port int) string {
	account := user + "@" + ip
	if port > 0 {
		account += ":" + strconv.Itoa(port)
	}
	return account
}

// MemoryStore keeps secrets for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]string
}

func (s *MemoryStore) Get(account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.secrets[account]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *MemoryStore) Put(account, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets == nil {
		s.secrets = map[string]string{}
	}
	s.secrets[account] = secret
	return nil
}

func (s *MemoryStore) Delete(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, account)
	return nil
}
