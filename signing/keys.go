package signing

import (
	"github.com/cosmos/btcutil/base58"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
)

// PrivateKey is an alias to ed25519.PrivateKey.
type PrivateKey = ed25519.PrivateKey

const (
	// PrivateKeySize size of the private key in bytes.
	PrivateKeySize = ed25519.PrivateKeySize
	// PublicKeySize size of the public key in bytes.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize size of a signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

func Public(priv PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}

// PublicKey is the type describing a public key.
type PublicKey struct {
	ed25519.PublicKey
}

// NewPublicKey constructs a new public key instance from a byte array.
func NewPublicKey(pub []byte) *PublicKey {
	return &PublicKey{pub}
}

// Bytes returns the public key as byte array.
func (p *PublicKey) Bytes() []byte {
	// Prevent segfault if unset
	if p != nil {
		return p.PublicKey
	}
	return nil
}

// String returns the public key in base58, the encoding used by the
// credential file and the registration endpoint.
func (p *PublicKey) String() string {
	return base58.Encode(p.Bytes())
}

const shortStringSize = 5

// ShortString returns a representative sub string.
func (p *PublicKey) ShortString() string {
	s := p.String()
	if len(s) < shortStringSize {
		return s
	}
	return s[:shortStringSize]
}

// Equals returns true iff the public keys are equal.
func (p *PublicKey) Equals(o *PublicKey) bool {
	return p.PublicKey.Equal(o.PublicKey)
}

// Signature is an ed25519 signature over a canonical proof message.
type Signature [SignatureSize]byte

// NewSignature constructs a Signature from a raw byte slice. A slice of
// the wrong length yields the zero signature.
func NewSignature(sig []byte) (out Signature) {
	if len(sig) == SignatureSize {
		copy(out[:], sig)
	}
	return out
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return s[:]
}

// String returns the signature in base58.
func (s Signature) String() string {
	return base58.Encode(s[:])
}
