package target

import "strings"

// SecretField is an explicit tri-state for secret inputs on update paths:
// the zero value keeps the stored secret, Set replaces it, and Clear
// removes it (only meaningful for an SSH passphrase).
type SecretField struct {
	value string
	state secretState
}

type secretState uint8

const (
	secretKeep secretState = iota
	secretSet
	secretClear
)

// NewSecret returns a field that replaces the stored secret with v.
func NewSecret(v string) SecretField { return SecretField{value: v, state: secretSet} }

// ClearSecret returns a field that removes the stored secret.
func ClearSecret() SecretField { return SecretField{state: secretClear} }

// IsSet reports whether the field carries a new secret.
func (f SecretField) IsSet() bool { return f.state == secretSet }

// IsClear reports whether the field removes the stored secret.
func (f SecretField) IsClear() bool { return f.state == secretClear }

// Value returns the new secret, or "" when the field is not set.
func (f SecretField) Value() string { return f.value }

// String never reveals the value.
func (f SecretField) String() string {
	switch f.state {
	case secretSet:
		return "[set]"
	case secretClear:
		return "[clear]"
	default:
		return "[keep]"
	}
}

// maskedPlaceholders are the literal strings clients echo back in place of a
// hidden secret.
var maskedPlaceholders = map[string]bool{
	"[Current Password - Hidden for Security]":   true,
	"[Current SSH Key - Hidden for Security]":    true,
	"[Current Passphrase - Hidden for Security]": true,
	"[Current API Key - Hidden for Security]":    true,
	"********":                                   true,
}

// LegacySecret converts a raw string from a client that cannot send the
// tri-state. Empty input and a value equal to a known mask placeholder keep
// the stored secret; anything else, including a password that merely
// contains placeholder text, is a new secret.
func LegacySecret(raw string) SecretField {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || maskedPlaceholders[trimmed] {
		return SecretField{}
	}
	return NewSecret(raw)
}
