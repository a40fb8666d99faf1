package auth

import (
	"crypto/subtle"
	"strings"
)

// KeyStore holds the configured client/secret pairs. It is built once at
// startup and never mutated, so it is safe for concurrent readers.
type KeyStore struct {
	secrets map[string][]string
}

// NewKeyStore indexes creds by lower-cased client id. Blank pairs are skipped;
// a client may carry several secrets to allow rotation.
func NewKeyStore(creds ...Credential) *KeyStore {
	secrets := make(map[string][]string, len(creds))
	for _, c := range creds {
		id := strings.ToLower(strings.TrimSpace(c.ClientID))
		if id == "" || strings.TrimSpace(c.SecretKey) == "" {
			continue
		}
		secrets[id] = append(secrets[id], c.SecretKey)
	}
	return &KeyStore{secrets: secrets}
}

// Len reports the number of distinct clients.
func (s *KeyStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.secrets)
}

func (s *KeyStore) matches(clientID, secretKey string) bool {
	if s == nil || len(s.secrets) == 0 {
		return false
	}

	stored, ok := s.secrets[strings.ToLower(strings.TrimSpace(clientID))]
	if !ok {
		return false
	}

	found := false
	for _, candidate := range stored {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(secretKey)) == 1 {
			found = true
		}
	}
	return found
}
