package auth

import "strings"

const credentialSeparator = ":"

// Credential is a caller-supplied client id and secret pair. It is never persisted.
type Credential struct {
	ClientID  string
	SecretKey string
}

// NewCredential lower-cases the client id. The secret is kept verbatim.
func NewCredential(clientID, secretKey string) Credential {
	return Credential{
		ClientID:  strings.ToLower(strings.TrimSpace(clientID)),
		SecretKey: secretKey,
	}
}

// ParseCredential decodes "clientId:secretKey". It fails unless the input splits
// into exactly two non-blank parts.
func ParseCredential(raw string) (Credential, bool) {
	if strings.TrimSpace(raw) == "" {
		return Credential{}, false
	}

	parts := strings.Split(raw, credentialSeparator)
	if len(parts) != 2 {
		return Credential{}, false
	}
	if strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Credential{}, false
	}

	return NewCredential(parts[0], parts[1]), true
}

// String renders the wire form without the secret.
func (c Credential) String() string {
	return c.ClientID + credentialSeparator + "***"
}

// Encode renders the wire form accepted by ParseCredential.
func (c Credential) Encode() string {
	return c.ClientID + credentialSeparator + c.SecretKey
}
