package methods

import (
	"fmt"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// ClassifyCredential decides which credential type a new method stores,
// given which secret slots the caller filled. It never returns an empty
// type with a nil error.
func ClassifyCredential(mt models.MethodType, passwordPresent, keyPresent bool) (models.CredentialType, error) {
	s, ok := protocols[mt]
	if !ok {
		return "", fmt.Errorf("unsupported method type %q", mt)
	}
	return s.credential(mt, passwordPresent, keyPresent)
}

func passwordOrSSHKey(mt models.MethodType, password, key bool) (models.CredentialType, error) {
	switch {
	case key:
		return models.CredentialSSHKey, nil
	case password:
		return models.CredentialPassword, nil
	default:
		return "", fmt.Errorf("%s requires a password or an SSH private key", mt)
	}
}

func passwordOrToken(mt models.MethodType, password, key bool) (models.CredentialType, error) {
	switch {
	case password:
		return models.CredentialPassword, nil
	case key:
		return models.CredentialAPIToken, nil
	default:
		return "", fmt.Errorf("%s requires a password or a key", mt)
	}
}

func communityString(mt models.MethodType, password, _ bool) (models.CredentialType, error) {
	if !password {
		return "", fmt.Errorf("%s requires a community string in the password field", mt)
	}
	return models.CredentialSNMPCommunity, nil
}

func apiKeyOrToken(mt models.MethodType, password, key bool) (models.CredentialType, error) {
	switch {
	case password:
		return models.CredentialAPIKey, nil
	case key:
		return models.CredentialAPIToken, nil
	default:
		return "", fmt.Errorf("%s requires an API key (password field) or a bearer token (key field)", mt)
	}
}

func passwordOnly(mt models.MethodType, password, _ bool) (models.CredentialType, error) {
	if !password {
		return "", fmt.Errorf("%s requires a password", mt)
	}
	return models.CredentialPassword, nil
}
