package vault

import (
	"fmt"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// Payload keys stored inside every encrypted credential blob.
const (
	FieldType       = "type"
	FieldUsername   = "username"
	FieldPassword   = "password"
	FieldPrivateKey = "private_key"
	FieldPassphrase = "passphrase"
)

// Payload is the decrypted form of a credential blob.
type Payload struct {
	Type       models.CredentialType
	Username   string
	Password   string
	PrivateKey string
	Passphrase string
}

// String redacts secrets so payloads are safe to pass to loggers.
func (p Payload) String() string {
	return fmt.Sprintf("Payload{type=%s username=%s secret=[REDACTED]}", p.Type, p.Username)
}

// Secret returns whichever secret slot the credential type uses.
func (p Payload) Secret() string {
	if p.Type.UsesKeySlot() {
		return p.PrivateKey
	}
	return p.Password
}

// Map converts the payload into the map form accepted by Encrypt.
// Empty optional fields are omitted.
func (p Payload) Map() map[string]any {
	m := map[string]any{
		FieldType:     string(p.Type),
		FieldUsername: p.Username,
	}
	if p.Password != "" {
		m[FieldPassword] = p.Password
	}
	if p.PrivateKey != "" {
		m[FieldPrivateKey] = p.PrivateKey
	}
	if p.Passphrase != "" {
		m[FieldPassphrase] = p.Passphrase
	}
	return m
}

// payloadFromMap converts a decrypted map into a Payload, enforcing the
// stored-payload invariant: type and username are present, plus either a
// password or a private key.
func payloadFromMap(m map[string]any) (*Payload, error) {
	ct, err := payloadType(m)
	if err != nil {
		return nil, err
	}
	username, err := payloadString(m, FieldUsername)
	if err != nil {
		return nil, err
	}
	p := &Payload{Type: ct, Username: username}
	p.Password, _ = m[FieldPassword].(string)
	p.PrivateKey, _ = m[FieldPrivateKey].(string)
	p.Passphrase, _ = m[FieldPassphrase].(string)

	if p.Password == "" && p.PrivateKey == "" {
		return nil, fmt.Errorf("payload has neither %q nor %q", FieldPassword, FieldPrivateKey)
	}
	return p, nil
}
