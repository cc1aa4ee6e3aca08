// Package onchain records completed work directly on the ledger,
// bypassing the centralized service. It derives the program addresses,
// assembles the record_job instruction and submits a partially signed
// transaction; the protocol oracle adds the second signature before
// the transaction is accepted.
package onchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/foundrynet/go-foundry/config"
	"github.com/foundrynet/go-foundry/jobhash"
	"github.com/foundrynet/go-foundry/keystore"
	"github.com/foundrynet/go-foundry/signing"
)

// ErrNotInitialized is returned when the recorder is constructed
// without a usable identity.
var ErrNotInitialized = errors.New("onchain: machine identity not initialized")

// RPC is the subset of the ledger RPC surface the recorder uses.
// *rpc.Client satisfies it.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)
}

// Recorder submits work records for one machine identity. RPC failures
// are surfaced unretried: on-chain submission is not safely idempotent,
// so retrying is a caller-level decision, and a duplicate-intent error
// from the program on resubmission means the work is already recorded.
type Recorder struct {
	rpc    RPC
	logger *zap.Logger
	wallet solana.PrivateKey
}

// Opt modifies Recorder.
type Opt func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithRPC substitutes the ledger RPC client.
func WithRPC(client RPC) Opt {
	return func(r *Recorder) {
		r.rpc = client
	}
}

// New creates a recorder signing with the identity's keypair.
func New(id *keystore.Identity, cfg config.Config, opts ...Opt) (*Recorder, error) {
	if id == nil || len(id.PrivateKey) != signing.PrivateKeySize {
		return nil, ErrNotInitialized
	}
	r := &Recorder{
		rpc:    rpc.New(cfg.RPCURL),
		logger: zap.NewNop(),
		wallet: solana.PrivateKey(id.PrivateKey),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// WalletAddress returns the on-chain address of the identity keypair.
func (r *Recorder) WalletAddress() solana.PublicKey {
	return r.wallet.PublicKey()
}

// Registered reports whether the machine account for this wallet
// exists on chain.
func (r *Recorder) Registered(ctx context.Context) (bool, error) {
	machinePDA, err := MachineAddress(r.WalletAddress())
	if err != nil {
		return false, err
	}
	res, err := r.rpc.GetAccountInfo(ctx, machinePDA)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying machine account: %w", err)
	}
	return res != nil && res.Value != nil, nil
}

// Register creates the machine account on chain. Unlike record_job the
// wallet itself pays and fully signs.
func (r *Recorder) Register(ctx context.Context) (solana.Signature, error) {
	inst, err := RegisterMachineInstruction(r.WalletAddress())
	if err != nil {
		return solana.Signature{}, err
	}

	blockhash, err := r.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetching blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(r.WalletAddress()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("assembling transaction: %w", err)
	}
	if _, err := tx.Sign(r.signerFor); err != nil {
		return solana.Signature{}, fmt.Errorf("signing transaction: %w", err)
	}

	sig, err := r.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submitting registration: %w", err)
	}
	r.logger.Info("machine registered on chain",
		zap.Stringer("wallet", r.WalletAddress()),
		zap.Stringer("tx", sig),
	)
	return sig, nil
}

// Record derives a fresh job hash for description, assembles the
// record_job instruction and submits a partially signed transaction.
// It returns the transaction signature as an opaque reference.
func (r *Recorder) Record(ctx context.Context, description string, durationSeconds uint64, complexity float64) (solana.Signature, error) {
	jobHash := jobhash.New(r.WalletAddress().String(), description)
	return r.RecordJob(ctx, jobHash, durationSeconds, complexity)
}

// RecordJob is Record for a caller-supplied job hash.
func (r *Recorder) RecordJob(ctx context.Context, jobHash string, durationSeconds uint64, complexity float64) (solana.Signature, error) {
	complexity = ClampComplexity(complexity)
	inst, err := RecordJobInstruction(r.WalletAddress(), jobHash, durationSeconds, complexity)
	if err != nil {
		return solana.Signature{}, err
	}

	blockhash, err := r.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetching blockhash: %w", err)
	}

	// The oracle pays and co-signs; only the wallet signature is added
	// locally.
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(OraclePubkey),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("assembling transaction: %w", err)
	}
	if _, err := tx.PartialSign(r.signerFor); err != nil {
		return solana.Signature{}, fmt.Errorf("signing transaction: %w", err)
	}

	sig, err := r.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submitting work record: %w", err)
	}
	r.logger.Info("work recorded",
		zap.String("job_hash", jobHash),
		zap.Uint64("duration_seconds", durationSeconds),
		zap.Float64("complexity", complexity),
		zap.Float64("expected_mint", EstimateEarnings(durationSeconds, complexity)),
		zap.Stringer("tx", sig),
	)
	return sig, nil
}

// MintBalance returns the wallet's MINT token balance.
func (r *Recorder) MintBalance(ctx context.Context) (float64, error) {
	res, err := r.rpc.GetTokenAccountsByOwner(
		ctx,
		r.WalletAddress(),
		&rpc.GetTokenAccountsConfig{Mint: MintToken.ToPointer()},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed},
	)
	if err != nil {
		return 0, fmt.Errorf("querying token accounts: %w", err)
	}

	for _, account := range res.Value {
		var parsed struct {
			Parsed struct {
				Info struct {
					Mint        string `json:"mint"`
					TokenAmount struct {
						UIAmount *float64 `json:"uiAmount"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		}
		if err := json.Unmarshal(account.Account.Data.GetRawJSON(), &parsed); err != nil {
			return 0, fmt.Errorf("decoding token account: %w", err)
		}
		if parsed.Parsed.Info.Mint == MintToken.String() && parsed.Parsed.Info.TokenAmount.UIAmount != nil {
			return *parsed.Parsed.Info.TokenAmount.UIAmount, nil
		}
	}
	return 0, nil
}

// EstimateEarnings returns the expected MINT for a job before
// submission. The authoritative computation happens in the program.
func EstimateEarnings(durationSeconds uint64, complexity float64) float64 {
	return float64(durationSeconds) * MintPerSecond * ClampComplexity(complexity)
}

func (r *Recorder) signerFor(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(r.WalletAddress()) {
		return &r.wallet
	}
	return nil
}
