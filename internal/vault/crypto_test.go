package vault

import (
	"bytes"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := []byte("1234567890abcdef")
	k1 := DeriveKey("secret", salt)
	k2 := DeriveKey("secret", salt)

	if !bytes.Equal(k1, k2) {
		t.Error("same secret+salt should produce same key")
	}
	if len(k1) != keyLen {
		t.Errorf("key length = %d, want %d", len(k1), keyLen)
	}
}

func TestDeriveKey_Differs(t *testing.T) {
	salt := []byte("1234567890abcdef")
	base := DeriveKey("secret", salt)

	if bytes.Equal(base, DeriveKey("secret2", salt)) {
		t.Error("different secrets should produce different keys")
	}
	if bytes.Equal(base, DeriveKey("secret", []byte("fedcba0987654321"))) {
		t.Error("different salts should produce different keys")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey("secret", []byte("salt"))
	plaintext := []byte(`{"username":"admin","password":"secret123"}`)

	sealed, err := seal(key, plaintext)
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	opened, err := open(key, sealed)
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	if !bytes.Equal(plaintext, opened) {
		t.Error("opened data should equal original plaintext")
	}
}

func TestSeal_DifferentNonces(t *testing.T) {
	key := DeriveKey("secret", []byte("salt"))

	s1, _ := seal(key, []byte("same data"))
	s2, _ := seal(key, []byte("same data"))
	if bytes.Equal(s1, s2) {
		t.Error("sealing same plaintext twice should produce different ciphertexts")
	}
}

func TestOpen_TooShort(t *testing.T) {
	key := DeriveKey("secret", []byte("salt"))
	if _, err := open(key, []byte("short")); err == nil {
		t.Error("open() with too-short data should return error")
	}
}

func TestZeroBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	ZeroBytes(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("byte[%d] = %d, want 0", i, b)
		}
	}
	ZeroBytes(nil)
}
