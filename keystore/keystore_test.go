package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cosmos/btcutil/base58"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/foundrynet/go-foundry/signing"
)

func TestGenerate(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	_, err = uuid.Parse(id.MachineID)
	require.NoError(t, err)
	require.Len(t, id.PublicKey.Bytes(), signing.PublicKeySize)
	require.Len(t, []byte(id.PrivateKey), signing.PrivateKeySize)
	require.Equal(t, []byte(id.PrivateKey[32:]), id.PublicKey.Bytes())

	other, err := Generate()
	require.NoError(t, err)
	require.NotEqual(t, id.MachineID, other.MachineID)
	require.NotEqual(t, id.PrivateKey, other.PrivateKey)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds")

	id, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Save(id, dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, id.MachineID, loaded.MachineID)
	require.Equal(t, id.PublicKey.Bytes(), loaded.PublicKey.Bytes())
	require.Equal(t, []byte(id.PrivateKey), []byte(loaded.PrivateKey))
}

func TestSave_OwnerOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	dir := t.TempDir()

	id, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Save(id, dir))

	info, err := os.Stat(filepath.Join(dir, id.MachineID+".json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Load(t.TempDir()) // exists but empty
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_CorruptCredential(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{"), 0o600))
		_, err := Load(dir)
		require.ErrorIs(t, err, ErrCorruptCredential)
	})

	t.Run("bad key length", func(t *testing.T) {
		dir := t.TempDir()
		data, err := json.Marshal(credentialFile{
			MachineID:  uuid.NewString(),
			PrivateKey: base58.Encode([]byte("short")),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), data, 0o600))
		_, err = Load(dir)
		require.ErrorIs(t, err, ErrCorruptCredential)
		require.ErrorContains(t, err, "private key size")
	})

	t.Run("mismatched public key", func(t *testing.T) {
		dir := t.TempDir()
		id, err := Generate()
		require.NoError(t, err)
		other, err := Generate()
		require.NoError(t, err)

		data, err := json.Marshal(credentialFile{
			MachineID:  id.MachineID,
			PublicKey:  base58.Encode(other.PublicKey.Bytes()),
			PrivateKey: base58.Encode(id.PrivateKey),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), data, 0o600))
		_, err = Load(dir)
		require.ErrorIs(t, err, ErrCorruptCredential)
		require.ErrorContains(t, err, "does not match")
	})

	t.Run("missing machine id", func(t *testing.T) {
		dir := t.TempDir()
		id, err := Generate()
		require.NoError(t, err)
		data, err := json.Marshal(credentialFile{
			PublicKey:  base58.Encode(id.PublicKey.Bytes()),
			PrivateKey: base58.Encode(id.PrivateKey),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), data, 0o600))
		_, err = Load(dir)
		require.ErrorIs(t, err, ErrCorruptCredential)
	})
}

func TestSave_DoesNotClobberOtherIdentities(t *testing.T) {
	dir := t.TempDir()

	first, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Save(first, dir))

	second, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Save(second, dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
