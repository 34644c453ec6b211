package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// HashAlgorithm names a one-way hash used by KeyedHash
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA512 HashAlgorithm = "sha512"
)

// DefaultTokenBytes is the entropy of generated tokens
const DefaultTokenBytes = 16

const (
	encryptSaltSize = 16
	encryptInfo     = "go-account:encrypt"
)

var _ CryptoProvider = (*Crypto)(nil)

// Crypto bundles hashing, token generation and symmetric encryption
type Crypto struct {
	cost   int
	random io.Reader
}

// CryptoOption customizes Crypto
type CryptoOption func(*Crypto)

// WithPasswordCost overrides the bcrypt cost
func WithPasswordCost(cost int) CryptoOption {
	return func(c *Crypto) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			c.cost = cost
		}
	}
}

// WithRandomSource replaces crypto/rand.Reader. Only tests should need it.
func WithRandomSource(r io.Reader) CryptoOption {
	return func(c *Crypto) {
		if r != nil {
			c.random = r
		}
	}
}

// NewCrypto returns a Crypto using bcrypt and crypto/rand
func NewCrypto(opts ...CryptoOption) *Crypto {
	c := &Crypto{
		cost:   passwordHashCost(),
		random: rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// HashPassword will generate a password hash
func (c *Crypto) HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", withDetail(ErrBadInput, "password can not be empty", nil, nil)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plain), c.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", withDetail(ErrBadInput, "password is too long", err, nil)
		}
		return "", withDetail(ErrCryptoFailure, "failed to hash password", err, nil)
	}
	return string(h), nil
}

// VerifyPassword reports whether plain matches hash under the parameters
// embedded in hash. Any mismatch or malformed hash is false.
func (c *Crypto) VerifyPassword(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// RandomToken returns 2*byteLen hex characters. byteLen <= 0 uses DefaultTokenBytes.
func (c *Crypto) RandomToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		byteLen = DefaultTokenBytes
	}
	buf := make([]byte, byteLen)
	if _, err := io.ReadFull(c.random, buf); err != nil {
		return "", withDetail(ErrCryptoFailure, "failed to read random bytes", err, nil)
	}
	return hex.EncodeToString(buf), nil
}

// NewGUID returns an RFC 4122 version 4 UUID
func (c *Crypto) NewGUID() (string, error) {
	id, err := uuid.NewRandomFromReader(c.random)
	if err != nil {
		return "", withDetail(ErrCryptoFailure, "failed to generate guid", err, nil)
	}
	return id.String(), nil
}

// KeyedHash returns the hex digest of input
func (c *Crypto) KeyedHash(algo HashAlgorithm, input string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Encrypt seals plain with XChaCha20-Poly1305 under a key derived from key
// with HKDF-SHA256. Output is base64url(salt | nonce | ciphertext).
func (c *Crypto) Encrypt(plain, key string) (string, error) {
	if key == "" {
		return "", withDetail(ErrBadInput, "encryption key can not be empty", nil, nil)
	}

	salt := make([]byte, encryptSaltSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", withDetail(ErrCryptoFailure, "failed to read salt", err, nil)
	}

	aead, err := deriveAEAD(key, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", withDetail(ErrCryptoFailure, "failed to read nonce", err, nil)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plain), salt)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Tampering, a wrong key or
// malformed input all fail with ErrCryptoFailure.
func (c *Crypto) Decrypt(ciphertext, key string) (string, error) {
	if key == "" {
		return "", withDetail(ErrBadInput, "encryption key can not be empty", nil, nil)
	}

	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", withDetail(ErrCryptoFailure, "malformed ciphertext", err, nil)
	}

	if len(raw) < encryptSaltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", withDetail(ErrCryptoFailure, "ciphertext too short", nil, nil)
	}

	salt := raw[:encryptSaltSize]
	aead, err := deriveAEAD(key, salt)
	if err != nil {
		return "", err
	}

	nonce := raw[encryptSaltSize : encryptSaltSize+aead.NonceSize()]
	sealed := raw[encryptSaltSize+aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, sealed, salt)
	if err != nil {
		return "", withDetail(ErrCryptoFailure, "failed to decrypt", err, nil)
	}
	return string(plain), nil
}

func deriveAEAD(key string, salt []byte) (cipher.AEAD, error) {
	derived := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(key), salt, []byte(encryptInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, withDetail(ErrCryptoFailure, "failed to derive key", err, nil)
	}

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, withDetail(ErrCryptoFailure, "failed to create cipher", err, nil)
	}
	return aead, nil
}

func newHash(algo HashAlgorithm) (hash.Hash, error) {
	switch algo {
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	default:
		return nil, withDetail(ErrBadInput, "unsupported hash algorithm", nil, map[string]any{
			"algorithm": string(algo),
		})
	}
}
