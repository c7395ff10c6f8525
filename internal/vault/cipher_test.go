package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/HerbHall/opsconductor/pkg/models"
)

func testCipher(t *testing.T, secret string) *Cipher {
	t.Helper()
	c, err := NewCipher(secret, "test-salt")
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	return c
}

func TestNewCipher_EmptySecret(t *testing.T) {
	if _, err := NewCipher("", "salt"); err == nil {
		t.Error("NewCipher with empty secret should fail")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCipher(t, "s3cret")
	in := map[string]any{
		"type":     "password",
		"username": "admin",
		"password": "hunter2",
	}

	blob, err := c.Encrypt(in)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(blob, "hunter2") {
		t.Fatal("blob contains plaintext secret")
	}

	out, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	for k, v := range in {
		if out[k] != v {
			t.Errorf("out[%q] = %v, want %v", k, out[k], v)
		}
	}
	if len(out) != len(in) {
		t.Errorf("len(out) = %d, want %d", len(out), len(in))
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c := testCipher(t, "s3cret")
	payload := map[string]any{"username": "admin", "password": "x"}

	b1, _ := c.Encrypt(payload)
	b2, _ := c.Encrypt(payload)
	if b1 == b2 {
		t.Error("two encryptions of the same payload should differ")
	}
}

func TestDecrypt_SameSecretAcrossInstances(t *testing.T) {
	blob, err := testCipher(t, "shared").EncryptPassword(models.CredentialPassword, "root", "pw")
	if err != nil {
		t.Fatalf("EncryptPassword() error = %v", err)
	}
	if _, err := testCipher(t, "shared").Decrypt(blob); err != nil {
		t.Errorf("Decrypt() with a fresh cipher on the same secret: %v", err)
	}
}

func TestDecrypt_WrongSecret(t *testing.T) {
	blob, _ := testCipher(t, "secret-1").EncryptPassword(models.CredentialPassword, "root", "pw")

	_, err := testCipher(t, "secret-2").Decrypt(blob)
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("Decrypt() error = %v, want ErrDecryption", err)
	}
}

func TestDecrypt_EveryCorruptedCharacterFails(t *testing.T) {
	c := testCipher(t, "s3cret")
	blob, err := c.EncryptPassword(models.CredentialPassword, "admin", "pw")
	if err != nil {
		t.Fatalf("EncryptPassword() error = %v", err)
	}

	for i := range blob {
		b := []byte(blob)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		if _, err := c.Decrypt(string(b)); !errors.Is(err, ErrDecryption) {
			t.Fatalf("Decrypt() with byte %d corrupted: error = %v, want ErrDecryption", i, err)
		}
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	c := testCipher(t, "s3cret")
	for _, in := range []string{"", "not base64!!", "AAAA"} {
		if _, err := c.Decrypt(in); !errors.Is(err, ErrDecryption) {
			t.Errorf("Decrypt(%q) error = %v, want ErrDecryption", in, err)
		}
	}
}

func TestDecryptPayload(t *testing.T) {
	c := testCipher(t, "s3cret")

	tests := []struct {
		name    string
		encrypt func() (string, error)
		want    Payload
	}{
		{
			name: "password",
			encrypt: func() (string, error) {
				return c.EncryptPassword(models.CredentialPassword, "admin", "pw")
			},
			want: Payload{Type: models.CredentialPassword, Username: "admin", Password: "pw"},
		},
		{
			name: "ssh key with passphrase",
			encrypt: func() (string, error) {
				return c.EncryptKey(models.CredentialSSHKey, "deploy", "-----BEGIN KEY-----", "pp")
			},
			want: Payload{Type: models.CredentialSSHKey, Username: "deploy", PrivateKey: "-----BEGIN KEY-----", Passphrase: "pp"},
		},
		{
			name: "payload routes api token to key slot",
			encrypt: func() (string, error) {
				return c.EncryptPayload(Payload{Type: models.CredentialAPIToken, Username: "svc", PrivateKey: "tok"})
			},
			want: Payload{Type: models.CredentialAPIToken, Username: "svc", PrivateKey: "tok"},
		},
		{
			name: "community keeps snmpv3 privacy key",
			encrypt: func() (string, error) {
				return c.EncryptPayload(Payload{Type: models.CredentialSNMPCommunity, Username: "monitor", Password: "authpass", Passphrase: "privpass"})
			},
			want: Payload{Type: models.CredentialSNMPCommunity, Username: "monitor", Password: "authpass", Passphrase: "privpass"},
		},
		{
			name: "password credential drops passphrase",
			encrypt: func() (string, error) {
				return c.EncryptPayload(Payload{Type: models.CredentialPassword, Username: "root", Password: "pw", Passphrase: "stray"})
			},
			want: Payload{Type: models.CredentialPassword, Username: "root", Password: "pw"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := tt.encrypt()
			if err != nil {
				t.Fatalf("encrypt error = %v", err)
			}
			got, err := c.DecryptPayload(blob)
			if err != nil {
				t.Fatalf("DecryptPayload() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("DecryptPayload() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDecryptPayload_RejectsIncompletePayload(t *testing.T) {
	c := testCipher(t, "s3cret")

	blob, _ := c.Encrypt(map[string]any{"type": "password", "username": "admin"})
	if _, err := c.DecryptPayload(blob); !errors.Is(err, ErrDecryption) {
		t.Errorf("DecryptPayload() error = %v, want ErrDecryption", err)
	}

	blob, _ = c.Encrypt(map[string]any{"type": "password", "password": "pw"})
	if _, err := c.DecryptPayload(blob); err == nil {
		t.Error("DecryptPayload() without username should fail")
	}

	blob, _ = c.Encrypt(map[string]any{"type": "kerberos", "username": "admin", "password": "pw"})
	if _, err := c.DecryptPayload(blob); !errors.Is(err, ErrDecryption) {
		t.Errorf("DecryptPayload() unknown type error = %v, want ErrDecryption", err)
	}
}

func TestPayload_StringRedacts(t *testing.T) {
	p := Payload{Type: models.CredentialPassword, Username: "admin", Password: "hunter2"}
	if strings.Contains(p.String(), "hunter2") {
		t.Errorf("String() leaked secret: %s", p.String())
	}
	if p.Secret() != "hunter2" {
		t.Errorf("Secret() = %q, want hunter2", p.Secret())
	}
}

func TestVerificationBlob(t *testing.T) {
	c := testCipher(t, "s3cret")
	blob, err := c.VerificationBlob()
	if err != nil {
		t.Fatalf("VerificationBlob() error = %v", err)
	}

	if !c.Verify(blob) {
		t.Error("Verify() = false for own blob")
	}
	if testCipher(t, "other").Verify(blob) {
		t.Error("Verify() = true for a different secret")
	}
	if c.Verify("%%%") {
		t.Error("Verify() = true for malformed blob")
	}
}
