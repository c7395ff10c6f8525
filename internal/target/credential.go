package target

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/methods"
	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/pkg/models"
)

// rotateCredentialTx re-encrypts the active credential of m from the
// secret fields of patch. Kept fields come from the stored payload; a
// missing username falls back to the stored one. reclassify forces a
// rewrite after a method type change. It reports whether anything was
// written.
func (s *Service) rotateCredentialTx(ctx context.Context, tx *sql.Tx, m *models.CommunicationMethod, patch MethodPatch, reclassify bool, now time.Time) (bool, error) {
	if patch.Password.IsClear() {
		return false, invalid("password", "password cannot be cleared; supply a new one")
	}
	if patch.SSHKey.IsClear() {
		return false, invalid("ssh_key", "key cannot be cleared; supply a new one")
	}

	newUser := ""
	if patch.Username != nil {
		newUser = strings.TrimSpace(*patch.Username)
	}

	cred := m.ActiveCredential()
	if cred == nil {
		if !patch.Password.IsSet() && !patch.SSHKey.IsSet() {
			return false, invalid("credentials", "method %d has no credential; supply a password or key", m.ID)
		}
		c, err := s.newCredential(m.MethodType, credentialInput{
			Username:   newUser,
			Password:   patch.Password.Value(),
			PrivateKey: patch.SSHKey.Value(),
			Passphrase: patch.SSHPassphrase.Value(),
		}, now)
		if err != nil {
			return false, err
		}
		c.MethodID = m.ID
		if err := insertCredential(ctx, tx, c); err != nil {
			return false, err
		}
		m.Credentials = append(m.Credentials, *c)
		return true, nil
	}

	stored, decErr := s.cipher.DecryptPayload(cred.EncryptedCredentials)
	if decErr != nil {
		s.logger.Warn("stored credential could not be decrypted during rotation",
			zap.Int64("credential_id", cred.ID), zap.Error(decErr))
	}

	if newUser == "" {
		if decErr == nil {
			newUser = stored.Username
		} else {
			newUser = fallbackUsername(cred)
		}
	}
	if newUser == "" {
		return false, invalid("username", "username is required")
	}

	unchanged := !reclassify && !patch.Password.IsSet() && !patch.SSHKey.IsSet() &&
		patch.SSHPassphrase.state == secretKeep && decErr == nil && newUser == stored.Username
	if unchanged {
		return false, nil
	}

	p := vault.Payload{Username: newUser}
	switch {
	case patch.SSHKey.IsSet():
		p.PrivateKey = patch.SSHKey.Value()
		if decErr == nil && stored.PrivateKey != "" {
			p.Passphrase = stored.Passphrase
		}
	case patch.Password.IsSet():
		p.Password = patch.Password.Value()
		if decErr == nil && stored.PrivateKey == "" {
			p.Passphrase = stored.Passphrase
		}
	default:
		if decErr != nil {
			return false, invalid("credentials", "failed to decrypt stored credentials; supply a new password or key")
		}
		p.Password = stored.Password
		p.PrivateKey = stored.PrivateKey
		p.Passphrase = stored.Passphrase
	}
	switch {
	case patch.SSHPassphrase.IsSet():
		p.Passphrase = patch.SSHPassphrase.Value()
	case patch.SSHPassphrase.IsClear():
		p.Passphrase = ""
	}

	ct, err := methods.ClassifyCredential(m.MethodType, p.Password != "", p.PrivateKey != "")
	if err != nil {
		return false, invalid("credentials", "%v", err)
	}
	p.Type = ct
	if ct.UsesKeySlot() {
		p.Password = ""
	} else {
		p.PrivateKey = ""
		if !ct.CarriesPassphrase() {
			p.Passphrase = ""
		}
	}

	blob, err := s.cipher.EncryptPayload(p)
	if err != nil {
		return false, err
	}
	cred.CredentialType = ct
	cred.CredentialName = credentialName(newUser, ct)
	cred.EncryptedCredentials = blob
	cred.UpdatedAt = now
	if err := updateCredentialRow(ctx, tx, cred); err != nil {
		return false, err
	}
	return true, nil
}
