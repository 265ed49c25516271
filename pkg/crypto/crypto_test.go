package crypto

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	plaintext := "PKT3STAPIKEY123"
	encrypted, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("Encrypt() returned the plaintext")
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWithWrongSecret(t *testing.T) {
	c1, _ := NewCipher("secret-one")
	c2, _ := NewCipher("secret-two")

	encrypted, err := c1.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := c2.Decrypt(encrypted); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Decrypt() with wrong secret error = %v, want ErrInvalidCiphertext", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	c, _ := NewCipher("secret")

	for _, input := range []string{"", "not-base64!!!", "c2hvcnQ="} {
		if _, err := c.Decrypt(input); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("Decrypt(%q) error = %v, want ErrInvalidCiphertext", input, err)
		}
	}
}

func TestNewCipherRequiresSecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Error("NewCipher(\"\") succeeded, want error")
	}
}
