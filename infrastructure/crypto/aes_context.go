// Package crypto implements the TcpMs Crypto Facade (spec.md §1, §3, §4.1a):
// password-derived AES encrypt/decrypt, SHA-512 digests, and secure random
// bytes. Grounded on the teacher's primitives.KeyDeriver shape
// (DefaultKeyDeriver wrapping crypto/rand + golang.org/x/crypto for the
// pieces stdlib lacks), adapted from X25519/HKDF to password/PBKDF2 per
// this spec's symmetric mutual-challenge design.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLength is the minimum salt size for key derivation (spec.md §3).
	SaltLength = 16
	// IVLength is the AES block size used as the CBC initialization vector.
	IVLength = aes.BlockSize
	// KeyLength selects AES-256.
	KeyLength = 32
	// pbkdf2Iterations is fixed so both sides of a challenge derive the
	// same key from the same password+salt without negotiating a count.
	pbkdf2Iterations = 100_000
)

var (
	// ErrEmptyPassword is returned when a context is built with no password
	// while encryption is required.
	ErrEmptyPassword = errors.New("crypto: password must not be empty")
	// ErrInvalidCiphertext is returned when Decrypt receives input that
	// isn't a valid, correctly-padded multiple of the AES block size.
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
)

// AesContext holds the password-derived AES-256 key plus the salt/IV it was
// derived with. Its lifecycle is tied to its owning endpoint (handshake
// challenge, or the data-plane encryption context) — there is no key
// rotation except via a full Panic rejoin (spec.md §5).
type AesContext struct {
	Salt []byte
	IV   []byte
	key  []byte
}

// DeriveKey derives an AES-256 key from password and salt using
// PBKDF2-HMAC-SHA512, the pack's (teacher's golang.org/x/crypto) answer to
// "stdlib has no password-based key derivation".
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, KeyLength, sha512.New)
}

// NewAesContext generates a fresh salt and IV and derives the key from
// password. Used by whichever side of a challenge mints the challenge
// (spec.md §4.3.2/§4.3.3), and for the post-handshake data-channel context
// (spec.md §4.3.4).
func NewAesContext(password string) (*AesContext, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	salt, err := RandomBytes(SaltLength)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	iv, err := RandomBytes(IVLength)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate iv: %w", err)
	}
	return &AesContext{Salt: salt, IV: iv, key: DeriveKey(password, salt)}, nil
}

// NewAesContextFromParts reconstructs the peer's context from a received
// salt and IV plus the locally-known password (spec.md §4.3.2: "construct
// A_in from its password plus the received salt and IV").
func NewAesContextFromParts(password string, salt, iv []byte) (*AesContext, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(iv) != IVLength {
		return nil, fmt.Errorf("crypto: iv must be %d bytes, got %d", IVLength, len(iv))
	}
	return &AesContext{Salt: append([]byte(nil), salt...), IV: append([]byte(nil), iv...), key: DeriveKey(password, salt)}, nil
}

// Encrypt pads plaintext with PKCS#7 and encrypts it with AES-CBC under
// this context's key and IV.
func (c *AesContext) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.IV).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt.
func (c *AesContext) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrInvalidCiphertext
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.IV).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, block.BlockSize())
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return b, nil
}

// Sha512 returns the SHA-512 digest of data (spec.md §4.3.2).
func Sha512(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidCiphertext
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidCiphertext
		}
	}
	return data[:len(data)-padLen], nil
}
