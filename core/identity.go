package core

// identity.go – node and account key material (spec.md §2: "cryptographic
// primitives (ed25519/BLS digests and signatures are assumed; the
// executor only invokes sign, verify, hash)"). Grounded on the teacher's
// Sign/Verify in security.go, trimmed from its Ed25519+BLS dual-algorithm
// surface to Ed25519 only: every signature in a permissioned network of
// this scale is carried individually (spec.md §3 Transaction/Block
// Signatures lists), so there is no aggregation step that would benefit
// from BLS's constant-size multi-sig.

import (
	"crypto/ed25519"
	"crypto/rand"
)

// KeyPair is a node or account's Ed25519 signing identity.
type KeyPair struct {
	Public  PublicKey
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random Ed25519 identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, WrapErr(KindCrypto, err)
	}
	var pk PublicKey
	copy(pk[:], pub)
	return KeyPair{Public: pk, private: priv}, nil
}

// KeyPairFromSeed deterministically derives an identity from a 32-byte
// seed, used by cmd/iroha's loadOrCreateKeyPair to reload a persisted
// identity and by tests that need stable peer identities across runs.
func KeyPairFromSeed(seed [ed25519.SeedSize]byte) KeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)
	var pk PublicKey
	copy(pk[:], pub)
	return KeyPair{Public: pk, private: priv}
}

// Sign signs msg, returning a Signature attributed to kp's public key.
func (kp KeyPair) Sign(msg []byte) Signature {
	return Signature{PublicKey: kp.Public, Bytes: ed25519.Sign(kp.private, msg)}
}

// SignBytes signs msg and returns only the raw signature bytes, the shape
// Sumeragi's sign closure needs.
func (kp KeyPair) SignBytes(msg []byte) []byte {
	return ed25519.Sign(kp.private, msg)
}

// VerifySignature checks sig against msg under pub, the shape every
// verify closure threaded through Queue and Sumeragi takes.
func VerifySignature(pub PublicKey, sig, msg []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// Seed returns kp's private seed, the form cmd/iroha's keygen subcommand
// and loadOrCreateKeyPair persist to disk and reload on the next start.
func (kp KeyPair) Seed() [ed25519.SeedSize]byte {
	var seed [ed25519.SeedSize]byte
	copy(seed[:], kp.private.Seed())
	return seed
}
