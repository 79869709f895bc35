package fixture

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
)

// Credentials is a client id and secret pair accepted by the fixture token endpoint.
// The secret is only available at generation time; the store keeps a hash.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type credentialStore struct {
	mu      sync.RWMutex
	secrets map[string]Hash
}

func newCredentialStore() *credentialStore {
	return &credentialStore{secrets: make(map[string]Hash)}
}

// Register hashes the secret and stores it under the client id, replacing any
// previous secret for that id.
func (cs *credentialStore) Register(clientID, secret string) error {
	if clientID == "" {
		return errors.New("client id is required")
	}

	h, err := NewHash(secret)
	if err != nil {
		return errors.Wrap(err, "could not hash client secret")
	}

	cs.mu.Lock()
	cs.secrets[clientID] = h
	cs.mu.Unlock()
	return nil
}

// Verify reports whether the secret matches the stored hash for the client id.
func (cs *credentialStore) Verify(clientID, secret string) bool {
	cs.mu.RLock()
	h, ok := cs.secrets[clientID]
	cs.mu.RUnlock()
	if !ok {
		return false
	}
	return h.IsHashOf(secret)
}

// GenerateCredentials returns a fresh credential pair. The pair is not
// registered anywhere; hand it to a fixture server before use.
func GenerateCredentials() (Credentials, error) {
	secret, err := generateSecret()
	if err != nil {
		return Credentials{}, errors.Wrap(err, "could not generate client secret")
	}

	return Credentials{
		ClientID:     uuid.NewRandom().String(),
		ClientSecret: secret,
	}, nil
}

// GenerateCredentials creates and registers a fresh credential pair. The
// returned secret is not recoverable later.
func (cs *credentialStore) GenerateCredentials() (Credentials, error) {
	creds, err := GenerateCredentials()
	if err != nil {
		return Credentials{}, err
	}
	if err := cs.Register(creds.ClientID, creds.ClientSecret); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 40)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}
