package vault

import (
	"fmt"
	"strings"

	"github.com/HerbHall/opsconductor/pkg/models"
)

var knownCredentialTypes = map[models.CredentialType]bool{
	models.CredentialPassword:      true,
	models.CredentialSSHKey:        true,
	models.CredentialSNMPCommunity: true,
	models.CredentialAPIKey:        true,
	models.CredentialAPIToken:      true,
}

// payloadString returns data[field] when it is a non-blank string.
func payloadString(data map[string]any, field string) (string, error) {
	v, ok := data[field]
	if !ok {
		return "", fmt.Errorf("payload is missing %q", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q is %T, want string", field, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("payload field %q is empty", field)
	}
	return s, nil
}

// payloadType reads and checks the credential type recorded in a payload.
func payloadType(data map[string]any) (models.CredentialType, error) {
	s, err := payloadString(data, FieldType)
	if err != nil {
		return "", err
	}
	ct := models.CredentialType(s)
	if !knownCredentialTypes[ct] {
		return "", fmt.Errorf("payload has unknown credential type %q", s)
	}
	return ct, nil
}
