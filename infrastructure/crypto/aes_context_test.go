package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx, err := NewAesContext("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewAesContext: %v", err)
	}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, err := ctx.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext must differ from plaintext")
	}
	got, err := ctx.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestNewAesContextFromPartsMatchesOriginal(t *testing.T) {
	original, err := NewAesContext("hunter2")
	if err != nil {
		t.Fatalf("NewAesContext: %v", err)
	}
	reconstructed, err := NewAesContextFromParts("hunter2", original.Salt, original.IV)
	if err != nil {
		t.Fatalf("NewAesContextFromParts: %v", err)
	}
	plaintext := []byte("shared secret payload")
	ciphertext, err := original.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := reconstructed.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("cross-context round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestWrongPasswordFailsToDecrypt(t *testing.T) {
	original, err := NewAesContext("hunter2")
	if err != nil {
		t.Fatalf("NewAesContext: %v", err)
	}
	wrong, err := NewAesContextFromParts("Hunter2", original.Salt, original.IV)
	if err != nil {
		t.Fatalf("NewAesContextFromParts: %v", err)
	}
	ciphertext, err := original.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := wrong.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption with wrong password to fail")
	}
}

func TestEmptyPasswordRejected(t *testing.T) {
	if _, err := NewAesContext(""); err != ErrEmptyPassword {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestSha512Deterministic(t *testing.T) {
	a := Sha512([]byte("abc"))
	b := Sha512([]byte("abc"))
	if !bytes.Equal(a, b) {
		t.Fatal("Sha512 must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-byte digest, got %d", len(a))
	}
}

func TestRandomBytesLength(t *testing.T) {
	b, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if len(b) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(b))
	}
}
