package onchain

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/foundrynet/go-foundry/config"
	"github.com/foundrynet/go-foundry/keystore"
)

type fakeRPC struct {
	blockhash     solana.Hash
	sentTx        *solana.Transaction
	sendErr       error
	accountInfo   *rpc.GetAccountInfoResult
	accountErr    error
	tokenAccounts *rpc.GetTokenAccountsResult
	tokenErr      error
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash},
	}, nil
}

func (f *fakeRPC) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sentTx = tx
	return solana.Signature{1, 2, 3}, nil
}

func (f *fakeRPC) GetAccountInfo(context.Context, solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return f.accountInfo, f.accountErr
}

func (f *fakeRPC) GetTokenAccountsByOwner(
	context.Context, solana.PublicKey, *rpc.GetTokenAccountsConfig, *rpc.GetTokenAccountsOpts,
) (*rpc.GetTokenAccountsResult, error) {
	return f.tokenAccounts, f.tokenErr
}

func newTestRecorder(t *testing.T, fake *fakeRPC) (*Recorder, *keystore.Identity) {
	t.Helper()
	id, err := keystore.Generate()
	require.NoError(t, err)
	r, err := New(id, config.DefaultConfig(), WithRPC(fake), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return r, id
}

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New(nil, config.DefaultConfig())
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = New(&keystore.Identity{MachineID: "m"}, config.DefaultConfig())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestWalletAddress_MatchesIdentityKey(t *testing.T) {
	r, id := newTestRecorder(t, &fakeRPC{})
	require.Equal(t, id.PublicKey.Bytes(), r.WalletAddress().Bytes())
}

func TestRecordJob_PartiallySignedByWallet(t *testing.T) {
	fake := &fakeRPC{blockhash: solana.Hash{7}}
	r, id := newTestRecorder(t, fake)

	sig, err := r.RecordJob(context.Background(), "job_abcdef0123456789", 120, 1.25)
	require.NoError(t, err)
	require.False(t, sig.IsZero())
	require.NotNil(t, fake.sentTx)

	tx := fake.sentTx
	// The oracle pays the fee and co-signs later; its signature slot
	// stays empty in the submitted transaction.
	require.Equal(t, OraclePubkey, tx.Message.AccountKeys[0])

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)

	walletIdx := -1
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(r.WalletAddress()) {
			walletIdx = i
		}
	}
	require.GreaterOrEqual(t, walletIdx, 0)
	require.Greater(t, len(tx.Signatures), walletIdx)

	walletSig := tx.Signatures[walletIdx]
	require.True(t, ed25519.Verify(id.PublicKey.Bytes(), msg, walletSig[:]),
		"wallet signature must verify over the transaction message")
	require.True(t, tx.Signatures[0].IsZero(), "oracle signature slot must be empty")
}

func TestRecord_DerivesFreshJobHashes(t *testing.T) {
	fake := &fakeRPC{}
	r, _ := newTestRecorder(t, fake)

	_, err := r.Record(context.Background(), "nightly backup", 300, 1.0)
	require.NoError(t, err)
	firstData := fake.sentTx.Message.Instructions[0].Data

	_, err = r.Record(context.Background(), "nightly backup", 300, 1.0)
	require.NoError(t, err)
	secondData := fake.sentTx.Message.Instructions[0].Data

	// Fresh nonce per call: identical descriptions still record
	// distinct jobs.
	require.NotEqual(t, []byte(firstData), []byte(secondData))
}

func TestRecordJob_SurfacesRPCFailureUnretried(t *testing.T) {
	cause := errors.New("blockhash not found")
	fake := &fakeRPC{sendErr: cause}
	r, _ := newTestRecorder(t, fake)

	_, err := r.RecordJob(context.Background(), "job_abcdef0123456789", 60, 1.0)
	require.ErrorIs(t, err, cause)
}

func TestRegistered(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		r, _ := newTestRecorder(t, &fakeRPC{accountErr: rpc.ErrNotFound})
		ok, err := r.Registered(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("exists", func(t *testing.T) {
		r, _ := newTestRecorder(t, &fakeRPC{
			accountInfo: &rpc.GetAccountInfoResult{Value: &rpc.Account{Owner: ProgramID}},
		})
		ok, err := r.Registered(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("rpc failure", func(t *testing.T) {
		cause := errors.New("rpc unavailable")
		r, _ := newTestRecorder(t, &fakeRPC{accountErr: cause})
		_, err := r.Registered(context.Background())
		require.ErrorIs(t, err, cause)
	})
}

func TestRegister_FullySignedByWallet(t *testing.T) {
	fake := &fakeRPC{}
	r, id := newTestRecorder(t, fake)

	_, err := r.Register(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fake.sentTx)

	tx := fake.sentTx
	require.Equal(t, r.WalletAddress(), tx.Message.AccountKeys[0])

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	require.NotEmpty(t, tx.Signatures)
	require.True(t, ed25519.Verify(id.PublicKey.Bytes(), msg, tx.Signatures[0][:]))
}

func TestMintBalance(t *testing.T) {
	blob := `{
		"value": [{
			"pubkey": "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
			"account": {
				"lamports": 2039280,
				"owner": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
				"data": {
					"program": "spl-token",
					"parsed": {
						"type": "account",
						"info": {
							"mint": "` + MintToken.String() + `",
							"tokenAmount": {"amount": "12345000", "decimals": 6, "uiAmount": 12.345}
						}
					}
				}
			}
		}]
	}`
	var res rpc.GetTokenAccountsResult
	require.NoError(t, json.Unmarshal([]byte(blob), &res))

	r, _ := newTestRecorder(t, &fakeRPC{tokenAccounts: &res})
	balance, err := r.MintBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12.345, balance)
}

func TestMintBalance_NoAccounts(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeRPC{tokenAccounts: &rpc.GetTokenAccountsResult{}})
	balance, err := r.MintBalance(context.Background())
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestEstimateEarnings(t *testing.T) {
	require.InDelta(t, 0.6, EstimateEarnings(120, 1.0), 1e-9)
	require.InDelta(t, 1.2, EstimateEarnings(120, 2.0), 1e-9)
	// Complexity is clamped before the estimate.
	require.InDelta(t, 1.2, EstimateEarnings(120, 5.0), 1e-9)
	require.InDelta(t, 0.3, EstimateEarnings(120, 0.1), 1e-9)
}
