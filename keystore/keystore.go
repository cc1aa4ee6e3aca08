// Package keystore persists machine identities. Each identity is a
// UUID machine id bound to an ed25519 keypair, stored as a single
// owner-only JSON credential file per machine id.
package keystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cosmos/btcutil/base58"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/foundrynet/go-foundry/signing"
)

var (
	// ErrNotFound means no credential file exists. This is the normal
	// first-run result, not a failure.
	ErrNotFound = errors.New("keystore: credentials not found")
	// ErrCorruptCredential means a credential file exists but its
	// contents cannot be decoded into a valid identity.
	ErrCorruptCredential = errors.New("keystore: corrupt credentials")
)

// Identity is a durable machine identity. The private key never leaves
// this process; only the machine id and public key are transmitted.
type Identity struct {
	MachineID  string
	PublicKey  *signing.PublicKey
	PrivateKey signing.PrivateKey
}

// Signer returns an ed25519 signer over the identity's private key.
func (id *Identity) Signer() (*signing.EdSigner, error) {
	return signing.NewEdSigner(signing.WithPrivateKey(id.PrivateKey))
}

// credentialFile is the on-disk layout. Keys are base58.
type credentialFile struct {
	MachineID  string `json:"machine_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	CreatedAt  string `json:"created_at"`
}

// Generate creates a fresh identity with a new UUID machine id and
// keypair. It does not touch the disk; pair with Save.
func Generate() (*Identity, error) {
	signer, err := signing.NewEdSigner()
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &Identity{
		MachineID:  uuid.NewString(),
		PublicKey:  signer.PublicKey(),
		PrivateKey: signer.PrivateKey(),
	}, nil
}

// Save persists the identity to <dir>/<machine_id>.json with owner-only
// permissions, creating parent directories as needed. The write is
// atomic so a crash never leaves a half-written file behind.
func Save(id *Identity, dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating credential dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(credentialFile{
		MachineID:  id.MachineID,
		PublicKey:  base58.Encode(id.PublicKey.Bytes()),
		PrivateKey: base58.Encode(id.PrivateKey),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	path := filepath.Join(dir, id.MachineID+".json")
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing credentials to %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restricting permissions on %s: %w", path, err)
	}
	return nil
}

// Load reads the persisted identity from dir. A missing directory or an
// empty one returns ErrNotFound. Undecodable or inconsistent credential
// material returns ErrCorruptCredential with the detail attached.
func Load(dir string) (*Identity, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scanning credential dir %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	// At most one writer per credential dir is the caller's contract;
	// with several files present the lexicographically first wins.
	sort.Strings(matches)
	return loadFile(matches[0])
}

func loadFile(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading credentials from %s: %w", path, err)
	}

	var cred credentialFile
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorruptCredential, filepath.Base(path), err)
	}
	if cred.MachineID == "" {
		return nil, fmt.Errorf("%w: %s has no machine id", ErrCorruptCredential, filepath.Base(path))
	}

	priv := base58.Decode(cred.PrivateKey)
	if len(priv) != signing.PrivateKeySize {
		return nil, fmt.Errorf("%w: invalid private key size %d/%d in %s",
			ErrCorruptCredential, len(priv), signing.PrivateKeySize, filepath.Base(path))
	}
	signer, err := signing.NewEdSigner(signing.WithPrivateKey(priv))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}

	pub := base58.Decode(cred.PublicKey)
	if !bytes.Equal(pub, signer.PublicKey().Bytes()) {
		return nil, fmt.Errorf("%w: public key in %s does not match private key",
			ErrCorruptCredential, filepath.Base(path))
	}

	return &Identity{
		MachineID:  cred.MachineID,
		PublicKey:  signer.PublicKey(),
		PrivateKey: signer.PrivateKey(),
	}, nil
}
