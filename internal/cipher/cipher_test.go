package cipher

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	c := New(SharedSecret)
	cases := []string{
		"",
		"hello",
		"hello https://example.com/x.png world",
		"line one\nline two\n\ttabbed",
		"héllo wörld ☕",
	}
	for _, plain := range cases {
		token, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.True(t, LooksEncrypted(token), "token %q", token)
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")

		got, err := c.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEncryptIsRandomised(t *testing.T) {
	c := Default()
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptAcceptsStandardBase64(t *testing.T) {
	c := New(SharedSecret)
	token, err := c.Encrypt("from an older client")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	std := base64.StdEncoding.EncodeToString(raw)

	got, err := c.Decrypt(std)
	require.NoError(t, err)
	assert.Equal(t, "from an older client", got)
}

func TestDecryptTampered(t *testing.T) {
	c := New(SharedSecret)
	token, err := c.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptWrongKey(t *testing.T) {
	token, err := New("one").Encrypt("secret")
	require.NoError(t, err)
	_, err = New("two").Decrypt(token)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptNotCiphertext(t *testing.T) {
	c := Default()
	for _, in := range []string{"", "hello world", "short", "!!!"} {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, ErrNotCiphertext, in)
	}
}

func TestLooksEncryptedPlaintext(t *testing.T) {
	for _, in := range []string{
		"",
		"hello",
		"The quick brown fox jumps over the lazy dog again and again",
		"https://example.com/some/long/path/to/an/image.png",
		"hi \n(Sent by Jane at 3/4/24, 5:06 PM)",
	} {
		assert.False(t, LooksEncrypted(in), in)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestEncryptNonceFailure(t *testing.T) {
	c := New(SharedSecret, WithRandom(failingReader{}))
	_, err := c.Encrypt("x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "read nonce"))
}
