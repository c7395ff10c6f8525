// Package vault protects credential payloads at rest with AES-256-GCM under
// a key derived from the configured secret.
package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HerbHall/opsconductor/pkg/models"
)

var (
	// ErrEncryption is returned when a payload cannot be serialized or sealed.
	ErrEncryption = errors.New("credential encryption failed")
	// ErrDecryption is returned for malformed, tampered, or wrong-key blobs.
	ErrDecryption = errors.New("credential decryption failed")
)

// Strict decoding rejects non-zero padding bits, so every modified
// character of a blob changes the decoded bytes.
var blobEncoding = base64.StdEncoding.Strict()

// Cipher encrypts and decrypts credential payloads. The key is derived once
// in NewCipher and never changes, so a Cipher is safe for concurrent use.
type Cipher struct {
	key []byte
}

// NewCipher derives the process-wide key from secret and salt.
func NewCipher(secret, salt string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("credential secret must not be empty")
	}
	if salt == "" {
		salt = DefaultConfig().Salt
	}
	return &Cipher{key: DeriveKey(secret, []byte(salt))}, nil
}

// NewCipherFromConfig is NewCipher for an unmarshalled config section.
func NewCipherFromConfig(cfg CipherConfig) (*Cipher, error) {
	return NewCipher(cfg.Secret, cfg.Salt)
}

// Encrypt serializes payload as JSON (map keys sorted, so output before
// sealing is deterministic) and returns base64(nonce || ciphertext+tag).
func (c *Cipher) Encrypt(payload map[string]any) (string, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: serialize payload: %v", ErrEncryption, err)
	}
	defer ZeroBytes(plain)

	sealed, err := seal(c.key, plain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return blobEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(blob string) (map[string]any, error) {
	raw, err := blobEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrDecryption, err)
	}

	plain, err := open(c.key, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	defer ZeroBytes(plain)

	var payload map[string]any
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON: %v", ErrDecryption, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrDecryption)
	}
	return payload, nil
}

// EncryptPassword encrypts a username + secret pair. Used for passwords,
// SNMP community strings, and API keys.
func (c *Cipher) EncryptPassword(credType models.CredentialType, username, password string) (string, error) {
	return c.Encrypt(Payload{Type: credType, Username: username, Password: password}.Map())
}

// EncryptKey encrypts a username + private key (+ optional passphrase).
// Used for SSH keys and API tokens.
func (c *Cipher) EncryptKey(credType models.CredentialType, username, privateKey, passphrase string) (string, error) {
	return c.Encrypt(Payload{
		Type:       credType,
		Username:   username,
		PrivateKey: privateKey,
		Passphrase: passphrase,
	}.Map())
}

// EncryptPayload encrypts p, routing through the matching convenience path.
// A community credential keeps its passphrase (the SNMPv3 privacy key)
// next to the password.
func (c *Cipher) EncryptPayload(p Payload) (string, error) {
	switch {
	case p.Type.UsesKeySlot():
		return c.EncryptKey(p.Type, p.Username, p.PrivateKey, p.Passphrase)
	case p.Type.CarriesPassphrase() && p.Passphrase != "":
		return c.Encrypt(Payload{
			Type:       p.Type,
			Username:   p.Username,
			Password:   p.Password,
			Passphrase: p.Passphrase,
		}.Map())
	}
	return c.EncryptPassword(p.Type, p.Username, p.Password)
}

// DecryptPayload decrypts blob and checks it has the stored-credential shape.
func (c *Cipher) DecryptPayload(blob string) (*Payload, error) {
	m, err := c.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	p, err := payloadFromMap(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return p, nil
}

// VerificationBlob encrypts a known plaintext. Persist it once; Verify
// then tells whether the configured secret still matches.
func (c *Cipher) VerificationBlob() (string, error) {
	sealed, err := seal(c.key, verificationMagic)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return blobEncoding.EncodeToString(sealed), nil
}

// Verify reports whether blob was produced by VerificationBlob under the same key.
func (c *Cipher) Verify(blob string) bool {
	raw, err := blobEncoding.DecodeString(blob)
	if err != nil {
		return false
	}
	return verifyMagic(c.key, raw)
}
