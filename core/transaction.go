package core

// transaction.go – the Transaction envelope and its accept-time checks
// (spec.md §3 Transaction, §4.E steps 1-2). Grounded on the teacher's
// Transaction/Hash plumbing in ledger.go, generalised to Iroha's
// chain-id + authority + instructions-or-WASM + signatures shape.

import (
	"time"
)

// Signature is a detached signature over a Transaction's payload hash.
type Signature struct {
	PublicKey PublicKey
	Bytes     []byte
}

// Transaction is a client-submitted, possibly multi-signed, unit of work.
type Transaction struct {
	ChainId      string
	Authority    AccountId
	Nonce        uint64
	CreationTime time.Time
	TTL          time.Duration
	Executable   Executable
	Signatures   []Signature

	// hash caches Hash() so repeated queue/consensus lookups don't
	// recompute the payload digest.
	hash     Hash
	hashSet  bool
}

// PayloadHash returns the content hash covered by signatures: everything
// except the Signatures slice itself.
func (t *Transaction) PayloadHash() Hash {
	if t.hashSet {
		return t.hash
	}
	enc := EncodeWire(transactionPayload{
		ChainId:      t.ChainId,
		Authority:    t.Authority.String(),
		Nonce:        t.Nonce,
		CreationTime: t.CreationTime.UnixMilli(),
		TTLMillis:    t.TTL.Milliseconds(),
		Executable:   t.Executable,
	})
	t.hash = HashBytes(enc)
	t.hashSet = true
	return t.hash
}

type transactionPayload struct {
	ChainId      string
	Authority    string
	Nonce        uint64
	CreationTime int64
	TTLMillis    int64
	Executable   Executable
}

// Hash is an alias of PayloadHash, kept to echo the teacher's tx.ID()
// accessor name.
func (t *Transaction) Hash() Hash { return t.PayloadHash() }

// Expired reports whether the transaction's TTL has elapsed as of now.
func (t *Transaction) Expired(now time.Time) bool {
	return t.CreationTime.Add(t.TTL).Before(now)
}

// AcceptLimits bounds what Accept will admit (spec.md §4.E step 1).
type AcceptLimits struct {
	FutureThreshold    time.Duration
	MaxSignatures      int
	MaxInstructionCount int
	MaxWasmSizeBytes   int
}

// Accept performs the stateless, signature-free checks of spec.md §4.E
// step 1: chain-id match, TTL/future-skew, signature count, instruction
// count, WASM size.
func Accept(t *Transaction, chainId string, now time.Time, limits AcceptLimits) error {
	if t.ChainId != chainId {
		return Newf(KindBadChainId, "transaction chain id %q does not match network %q", t.ChainId, chainId)
	}
	if t.Expired(now) {
		return Newf(KindTransactionExpired, "transaction expired at %s (now %s)", t.CreationTime.Add(t.TTL), now)
	}
	if t.CreationTime.After(now.Add(limits.FutureThreshold)) {
		return Newf(KindTransactionExpired, "transaction created %s in the future exceeds threshold %s", t.CreationTime.Sub(now), limits.FutureThreshold)
	}
	if len(t.Signatures) == 0 || len(t.Signatures) > limits.MaxSignatures {
		return Newf(KindTransactionLimitExceeded, "signature count %d outside [1,%d]", len(t.Signatures), limits.MaxSignatures)
	}
	switch t.Executable.Kind {
	case ExecutableInstructions:
		if len(t.Executable.Instructions) > limits.MaxInstructionCount {
			return Newf(KindTransactionLimitExceeded, "instruction count %d exceeds limit %d", len(t.Executable.Instructions), limits.MaxInstructionCount)
		}
	case ExecutableWasm:
		if len(t.Executable.Wasm) > limits.MaxWasmSizeBytes {
			return Newf(KindTransactionLimitExceeded, "wasm payload %d bytes exceeds limit %d", len(t.Executable.Wasm), limits.MaxWasmSizeBytes)
		}
	}
	return nil
}

// VerifySignatures checks that every signature covers PayloadHash
// (spec.md §4.E step 2); an empty signature list passes here and is
// rejected by Accept's signature-count check instead. The k-of-n policy
// itself is intentionally NOT checked here — it is enforced against the
// authority account's live policy at block-application time.
func VerifySignatures(t *Transaction, verify func(pub PublicKey, sig, msg []byte) bool) error {
	msg := t.PayloadHash()
	for _, sig := range t.Signatures {
		if !verify(sig.PublicKey, sig.Bytes, msg[:]) {
			return Newf(KindSignatureMismatch, "signature from %s does not verify", sig.PublicKey)
		}
	}
	return nil
}

// CountValidSignatures counts signatures in sigs whose PublicKey is among
// account's current signatories, used at block-application time to enforce
// the authority's live k-of-n policy.
func CountValidSignatures(account *Account, sigs []Signature) int {
	set := make(map[PublicKey]struct{}, len(account.Signatories))
	for _, pk := range account.Signatories {
		set[pk] = struct{}{}
	}
	n := 0
	for _, s := range sigs {
		if _, ok := set[s.PublicKey]; ok {
			n++
		}
	}
	return n
}
