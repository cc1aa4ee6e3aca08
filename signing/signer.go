package signing

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
)

type edSignerOption struct {
	priv PrivateKey
}

// EdSignerOptionFunc modifies EdSigner.
type EdSignerOptionFunc func(*edSignerOption) error

// WithPrivateKey sets the private key used by EdSigner.
func WithPrivateKey(priv PrivateKey) EdSignerOptionFunc {
	return func(opt *edSignerOption) error {
		if opt.priv != nil {
			return errors.New("invalid option WithPrivateKey: private key already set")
		}

		if len(priv) != ed25519.PrivateKeySize {
			return errors.New("could not create EdSigner: invalid key length")
		}

		keyPair := ed25519.NewKeyFromSeed(priv[:32])
		if !bytes.Equal(keyPair[32:], priv.Public().(ed25519.PublicKey)) {
			return errors.New("private and public do not match")
		}

		opt.priv = priv
		return nil
	}
}

// WithKeyFromRand sets the private key used by EdSigner using predictable randomness source.
func WithKeyFromRand(rand io.Reader) EdSignerOptionFunc {
	return func(opt *edSignerOption) error {
		_, priv, err := ed25519.GenerateKey(rand)
		if err != nil {
			return fmt.Errorf("could not generate key pair: %w", err)
		}

		opt.priv = priv
		return nil
	}
}

// EdSigner represents an ED25519 signer.
type EdSigner struct {
	priv PrivateKey
}

// NewEdSigner returns an auto-generated ed signer.
func NewEdSigner(opts ...EdSignerOptionFunc) (*EdSigner, error) {
	cfg := &edSignerOption{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.priv == nil {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("could not generate key pair: %w", err)
		}
		cfg.priv = priv
	}

	return &EdSigner{priv: cfg.priv}, nil
}

// Sign signs the provided message.
func (es *EdSigner) Sign(m []byte) Signature {
	return *(*[SignatureSize]byte)(ed25519.Sign(es.priv, m))
}

// PublicKey returns the public key of the signer.
func (es *EdSigner) PublicKey() *PublicKey {
	return NewPublicKey(es.priv.Public().(ed25519.PublicKey))
}

// PrivateKey returns private key.
func (es *EdSigner) PrivateKey() PrivateKey {
	return es.priv
}

func (es *EdSigner) String() string {
	return es.PublicKey().ShortString()
}

// Verify verifies that a signature matches public key and message.
func Verify(pub *PublicKey, m []byte, sig Signature) bool {
	return ed25519.Verify(pub.PublicKey, m, sig[:])
}
