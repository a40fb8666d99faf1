package auth

import "strings"

// Outcome is the result of gating a request on its credential header.
type Outcome int

const (
	// OutcomeNoCredential covers a missing header and one that does not parse.
	OutcomeNoCredential Outcome = iota
	// OutcomeRejected is a well-formed credential that matches no configured pair.
	OutcomeRejected
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoCredential:
		return "no_credential"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Validator answers whether a credential matches the configured key store.
// An empty store rejects everything.
type Validator struct {
	store *KeyStore
}

func NewValidator(store *KeyStore) *Validator {
	return &Validator{store: store}
}

func (v *Validator) IsValid(clientID, secretKey string) bool {
	if v == nil || strings.TrimSpace(clientID) == "" || secretKey == "" {
		return false
	}
	return v.store.matches(clientID, secretKey)
}

func (v *Validator) IsValidCredential(c *Credential) bool {
	if c == nil {
		return false
	}
	return v.IsValid(c.ClientID, c.SecretKey)
}

func (v *Validator) IsValidRaw(raw string) bool {
	c, ok := ParseCredential(raw)
	if !ok {
		return false
	}
	return v.IsValidCredential(&c)
}

// TryParse decodes raw without validating it, for attributing a request to a client.
func (v *Validator) TryParse(raw string) (Credential, bool) {
	return ParseCredential(raw)
}

// Authenticate parses and validates raw in one step.
func (v *Validator) Authenticate(raw string) (Credential, Outcome) {
	c, ok := ParseCredential(raw)
	if !ok {
		return Credential{}, OutcomeNoCredential
	}
	if !v.IsValidCredential(&c) {
		return c, OutcomeRejected
	}
	return c, OutcomeAuthenticated
}
