package onchain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Protocol constants of the MINT work-recording program. The account
// layout and instruction encoding below are a wire contract with the
// deployed program and must not change independently.
var (
	// ProgramID is the MINT program.
	ProgramID = solana.MustPublicKeyFromBase58("4ZvTZ3skfeMF3ZGyABoazPa9tiudw2QSwuVKn45t2AKL")
	// StateAccount is the program's global state account.
	StateAccount = solana.MustPublicKeyFromBase58("2Lm7hrtqK9W5tykVu4U37nUNJiiFh6WQ1rD8ZJWXomr2")
	// OraclePubkey co-signs every record_job transaction; the local
	// signature alone is necessary but not sufficient.
	OraclePubkey = solana.MustPublicKeyFromBase58("7SgQbwxFMTJcTNkQ8uQB1YLnodJtgWkfej3p4aTv3bHD")
	// MintToken is the MINT token mint.
	MintToken = solana.MustPublicKeyFromBase58("5Pd4YBgFdih88vAFGAEEsk2JpixrZDJpRynTWvqPy5da")
)

// Anchor instruction discriminators.
var (
	registerMachineDiscriminator = [8]byte{168, 160, 68, 209, 28, 151, 41, 17}
	recordJobDiscriminator       = [8]byte{54, 124, 168, 158, 236, 237, 107, 206}
)

// MintPerSecond is the base reward rate, scaled by complexity.
const MintPerSecond = 0.005

const (
	minComplexity = 0.5
	maxComplexity = 2.0
	// complexityScale converts the bounded float into the integer the
	// program expects (×1000, truncated).
	complexityScale = 1000
	// jobSeedLen caps the job hash bytes used as PDA seed and
	// instruction argument.
	jobSeedLen = 32
)

// MachineAddress derives the program address holding per-machine
// accounting for wallet.
func MachineAddress(wallet solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("machine"), wallet.Bytes()}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("deriving machine address: %w", err)
	}
	return pda, nil
}

// JobAddress derives the program address recording one job.
func JobAddress(jobHash string) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("job"), jobSeed(jobHash)}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("deriving job address: %w", err)
	}
	return pda, nil
}

func jobSeed(jobHash string) []byte {
	seed := []byte(jobHash)
	if len(seed) > jobSeedLen {
		seed = seed[:jobSeedLen]
	}
	return seed
}

// ClampComplexity bounds complexity to the range the program accepts.
func ClampComplexity(complexity float64) float64 {
	return max(minComplexity, min(maxComplexity, complexity))
}

// EncodeRecordJob encodes the record_job instruction data:
// discriminator, length-prefixed job hash bytes, little-endian u64
// duration and little-endian u32 integer complexity.
func EncodeRecordJob(jobHash string, durationSeconds uint64, complexity float64) []byte {
	seed := jobSeed(jobHash)
	complexityInt := uint32(ClampComplexity(complexity) * complexityScale)

	var buf bytes.Buffer
	buf.Write(recordJobDiscriminator[:])
	binary.Write(&buf, binary.LittleEndian, uint32(len(seed)))
	buf.Write(seed)
	binary.Write(&buf, binary.LittleEndian, durationSeconds)
	binary.Write(&buf, binary.LittleEndian, complexityInt)
	return buf.Bytes()
}

// RecordJobInstruction assembles the full record_job instruction for
// wallet. The oracle is the second required signer and fee payer.
func RecordJobInstruction(wallet solana.PublicKey, jobHash string, durationSeconds uint64, complexity float64) (solana.Instruction, error) {
	machinePDA, err := MachineAddress(wallet)
	if err != nil {
		return nil, err
	}
	jobPDA, err := JobAddress(jobHash)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(StateAccount, true, false),
		solana.NewAccountMeta(machinePDA, true, false),
		solana.NewAccountMeta(jobPDA, true, false),
		solana.NewAccountMeta(wallet, false, true),
		solana.NewAccountMeta(OraclePubkey, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, EncodeRecordJob(jobHash, durationSeconds, complexity)), nil
}

// RegisterMachineInstruction assembles the register_machine
// instruction creating the machine account for wallet.
func RegisterMachineInstruction(wallet solana.PublicKey) (solana.Instruction, error) {
	machinePDA, err := MachineAddress(wallet)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(StateAccount, true, false),
		solana.NewAccountMeta(machinePDA, true, false),
		solana.NewAccountMeta(wallet, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, registerMachineDiscriminator[:]), nil
}
