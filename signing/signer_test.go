package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEdSignerFromBuffer(t *testing.T) {
	b := []byte{1, 2, 3}
	_, err := NewEdSigner(WithPrivateKey(b))
	require.ErrorContains(t, err, "invalid key length")

	b = make([]byte, 64)
	_, err = NewEdSigner(WithPrivateKey(b))
	require.ErrorContains(t, err, "private and public do not match")
}

func TestEdSigner_Sign(t *testing.T) {
	ed, err := NewEdSigner()
	require.NoError(t, err)

	m := make([]byte, 32)
	rand.Read(m)
	sig := ed.Sign(m)

	ok := ed25519.Verify(ed.PublicKey().Bytes(), m, sig[:])
	require.Truef(t, ok, "failed to verify message %x with sig %x", m, sig)
	require.True(t, Verify(ed.PublicKey(), m, sig))

	m[0] ^= 1
	require.False(t, Verify(ed.PublicKey(), m, sig))
}

func TestEdSigner_ValidKeyEncoding(t *testing.T) {
	ed, err := NewEdSigner()
	require.NoError(t, err)

	require.Equal(t, []byte(ed.priv[32:]), ed.PublicKey().Bytes())
}

func TestEdSigner_WithPrivateKey(t *testing.T) {
	ed, err := NewEdSigner()
	require.NoError(t, err)

	key := ed.PrivateKey()
	ed2, err := NewEdSigner(WithPrivateKey(key))
	require.NoError(t, err)
	require.Equal(t, ed.priv, ed2.priv)
	require.Equal(t, ed.PublicKey(), ed2.PublicKey())
}

func TestSignature_Roundtrip(t *testing.T) {
	ed, err := NewEdSigner()
	require.NoError(t, err)

	sig := ed.Sign([]byte("payload"))
	require.Equal(t, sig, NewSignature(sig.Bytes()))
	require.NotEmpty(t, sig.String())

	require.Equal(t, Signature{}, NewSignature([]byte{1, 2, 3}))
}
