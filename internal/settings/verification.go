package settings

import (
	"context"
	"errors"
	"fmt"
)

// KeyVaultVerification stores the cipher verification blob.
const KeyVaultVerification = "vault.verification"

// ErrSecretMismatch means the configured credentials secret differs from
// the one the stored credentials were encrypted with.
var ErrSecretMismatch = errors.New("credentials secret does not match the one used for stored credentials")

// Verifier is the subset of *vault.Cipher used to check the secret.
type Verifier interface {
	VerificationBlob() (string, error)
	Verify(blob string) bool
}

// VerifySecret checks c against the stored verification blob, storing a
// fresh blob on first run.
func VerifySecret(ctx context.Context, s *Store, c Verifier) error {
	st, err := s.Get(ctx, KeyVaultVerification)
	if errors.Is(err, ErrNotFound) {
		blob, err := c.VerificationBlob()
		if err != nil {
			return fmt.Errorf("create verification blob: %w", err)
		}
		return s.Set(ctx, KeyVaultVerification, blob)
	}
	if err != nil {
		return err
	}
	if !c.Verify(st.Value) {
		return ErrSecretMismatch
	}
	return nil
}
