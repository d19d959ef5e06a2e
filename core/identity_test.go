package core

import "testing"

func TestGenerateKeyPairSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("validate_transaction")
	sig := kp.Sign(msg)
	if sig.PublicKey != kp.Public {
		t.Fatalf("signature public key mismatch")
	}
	if !VerifySignature(kp.Public, sig.Bytes, msg) {
		t.Fatalf("signature did not verify against its own message")
	}
	if VerifySignature(kp.Public, sig.Bytes, []byte("different message")) {
		t.Fatalf("signature verified against a tampered message")
	}
}

func TestKeyPairFromSeedIsDeterministic(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}
	a := KeyPairFromSeed(seed)
	b := KeyPairFromSeed(seed)
	if a.Public != b.Public {
		t.Fatalf("same seed produced different public keys")
	}
	msg := []byte("round trip")
	if !VerifySignature(b.Public, a.SignBytes(msg), msg) {
		t.Fatalf("signature from one instance did not verify under the other's public key")
	}
}

func TestKeyPairSeedRoundTrips(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	reloaded := KeyPairFromSeed(kp.Seed())
	if reloaded.Public != kp.Public {
		t.Fatalf("reloading from seed changed the public key")
	}
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("authority check")
	if VerifySignature(kp2.Public, kp1.SignBytes(msg), msg) {
		t.Fatalf("signature verified under an unrelated public key")
	}
}
