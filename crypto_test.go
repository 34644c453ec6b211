package auth_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	auth "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestCrypto() *auth.Crypto {
	return auth.NewCrypto(auth.WithPasswordCost(bcrypt.MinCost))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestHashPassword(t *testing.T) {
	c := newTestCrypto()

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
		{
			name:     "Password longer than bcrypt accepts",
			password: strings.Repeat("x", 73),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := c.HashPassword(tt.password)

			if tt.wantErr {
				assert.True(t, auth.IsBadInput(err))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, c.VerifyPassword(tt.password, hash))
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	c := newTestCrypto()
	hash, err := c.HashPassword("testPassword123!")
	require.NoError(t, err)

	assert.True(t, c.VerifyPassword("testPassword123!", hash))
	assert.False(t, c.VerifyPassword("wrongPassword", hash))
	assert.False(t, c.VerifyPassword("testPassword123!", "not-a-bcrypt-hash"))
	assert.False(t, c.VerifyPassword("testPassword123!", ""))
}

func TestRandomToken(t *testing.T) {
	c := newTestCrypto()

	tok, err := c.RandomToken(0)
	require.NoError(t, err)
	assert.Len(t, tok, 2*auth.DefaultTokenBytes)

	tok32, err := c.RandomToken(32)
	require.NoError(t, err)
	assert.Len(t, tok32, 64)

	other, err := c.RandomToken(0)
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestRandomTokenEntropyFailure(t *testing.T) {
	c := auth.NewCrypto(auth.WithRandomSource(failingReader{}))

	_, err := c.RandomToken(16)
	assert.True(t, auth.IsCryptoFailure(err))

	_, err = c.NewGUID()
	assert.True(t, auth.IsCryptoFailure(err))
}

func TestNewGUID(t *testing.T) {
	c := newTestCrypto()

	id, err := c.NewGUID()
	require.NoError(t, err)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.Equal(t, uuid.RFC4122, parsed.Variant())
}

func TestNewGUIDForcesVersionBits(t *testing.T) {
	c := auth.NewCrypto(auth.WithRandomSource(bytes.NewReader(bytes.Repeat([]byte{0xff}, 16))))

	id, err := c.NewGUID()
	require.NoError(t, err)
	assert.Equal(t, "ffffffff-ffff-4fff-bfff-ffffffffffff", id)
}

func TestKeyedHash(t *testing.T) {
	c := newTestCrypto()

	digest, err := c.KeyedHash(auth.HashSHA256, "abc")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)

	long, err := c.KeyedHash(auth.HashSHA512, "abc")
	require.NoError(t, err)
	assert.Len(t, long, 128)

	_, err = c.KeyedHash("md5", "abc")
	assert.True(t, auth.IsBadInput(err))
}

func TestEncryptDecrypt(t *testing.T) {
	c := newTestCrypto()

	sealed, err := c.Encrypt("remember me", "server-secret")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "remember me")

	plain, err := c.Decrypt(sealed, "server-secret")
	require.NoError(t, err)
	assert.Equal(t, "remember me", plain)

	again, err := c.Encrypt("remember me", "server-secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "salt and nonce must be fresh per call")
}

func TestDecryptFailures(t *testing.T) {
	c := newTestCrypto()

	sealed, err := c.Encrypt("payload", "server-secret")
	require.NoError(t, err)

	t.Run("Wrong key", func(t *testing.T) {
		_, err := c.Decrypt(sealed, "other-secret")
		assert.True(t, auth.IsCryptoFailure(err))
	})

	t.Run("Tampered ciphertext", func(t *testing.T) {
		raw, err := base64.RawURLEncoding.DecodeString(sealed)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0x01
		_, err = c.Decrypt(base64.RawURLEncoding.EncodeToString(raw), "server-secret")
		assert.True(t, auth.IsCryptoFailure(err))
	})

	t.Run("Not base64", func(t *testing.T) {
		_, err := c.Decrypt("***", "server-secret")
		assert.True(t, auth.IsCryptoFailure(err))
	})

	t.Run("Too short", func(t *testing.T) {
		_, err := c.Decrypt("AAAA", "server-secret")
		assert.True(t, auth.IsCryptoFailure(err))
	})

	t.Run("Empty key", func(t *testing.T) {
		_, err := c.Decrypt(sealed, "")
		assert.True(t, auth.IsBadInput(err))
	})
}
