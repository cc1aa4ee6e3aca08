// Package proof builds the signed attestations that settle completed
// jobs. A proof binds one machine, one job, one payout recipient and
// one instant; the remote verifier checks the signature against the
// machine's registered public key.
package proof

import (
	"errors"
	"fmt"
	"time"

	"github.com/foundrynet/go-foundry/keystore"
	"github.com/foundrynet/go-foundry/signing"
)

// Version is the protocol version embedded in every canonical message.
const Version = "1.0"

// ErrNotInitialized is returned when signing is attempted without a
// loaded identity.
var ErrNotInitialized = errors.New("proof: machine identity not initialized")

// CompletionProof is a one-shot attestation that a machine completed a
// job for a payout recipient at a given instant. It is never mutated
// after creation.
type CompletionProof struct {
	Version   string
	JobID     string
	Recipient string
	Timestamp string
	Signature signing.Signature
}

// CanonicalMessage is the exact byte sequence that is signed and
// verified: version|job_id|recipient|timestamp, pipe-delimited UTF-8.
// Any divergence between signer and verifier here invalidates every
// proof, so both sides build it through this function.
func CanonicalMessage(version, jobID, recipient, timestamp string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s", version, jobID, recipient, timestamp))
}

// Timestamp formats t the way proofs embed it: ISO-8601 in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Sign builds the completion proof for jobID paid out to recipient. The
// timestamp is supplied by the caller and embedded verbatim, so the
// same instant serves message construction and audit logging.
func Sign(id *keystore.Identity, jobID, recipient, timestamp string) (*CompletionProof, error) {
	if id == nil || len(id.PrivateKey) == 0 {
		return nil, ErrNotInitialized
	}
	signer, err := id.Signer()
	if err != nil {
		return nil, fmt.Errorf("loading signer: %w", err)
	}

	return &CompletionProof{
		Version:   Version,
		JobID:     jobID,
		Recipient: recipient,
		Timestamp: timestamp,
		Signature: signer.Sign(CanonicalMessage(Version, jobID, recipient, timestamp)),
	}, nil
}

// Verify reports whether the proof's signature is valid for its fields
// under pub.
func Verify(pub *signing.PublicKey, p *CompletionProof) bool {
	msg := CanonicalMessage(p.Version, p.JobID, p.Recipient, p.Timestamp)
	return signing.Verify(pub, msg, p.Signature)
}
