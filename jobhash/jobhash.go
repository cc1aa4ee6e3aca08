// Package jobhash derives the identifiers the ledger uses as primary
// keys for submitted jobs.
package jobhash

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/sha256-simd"
)

const (
	// Prefix tags every job identifier.
	Prefix = "job_"
	// HexLen is the length of the truncated digest in hex characters.
	HexLen = 16
)

// Hash derives a job identifier from the machine id, a content
// descriptor and an explicit nonce. The same inputs always produce the
// same identifier, which the remote service relies on for idempotent
// resubmission.
func Hash(machineID, descriptor, nonce string) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", machineID, descriptor, nonce)))
	return Prefix + hex.EncodeToString(digest[:])[:HexLen]
}

// New derives a job identifier with a fresh random nonce. Two calls
// with identical inputs produce distinct identifiers, so repeated
// submissions of the same logical content never collide.
func New(machineID, descriptor string) string {
	return Hash(machineID, descriptor, uuid.NewString())
}
