package core

// block.go – the committed Block and its header (spec.md §3 Block,
// invariant I5: height/hash chaining). Grounded on the teacher's
// Block/BlockHeader shape in ledger.go, stripped of UTXO/contract
// bookkeeping and re-keyed to the typed Transaction/Hash here.

import "time"

// RejectedTransaction records a transaction that reached block assembly
// but failed instruction application, kept so clients can still look up
// why their submission didn't take effect.
type RejectedTransaction struct {
	Hash   Hash
	Reason string
}

// BlockHeader is the chained, hashed part of a Block.
type BlockHeader struct {
	Height           uint64
	PrevBlockHash    Hash
	TransactionsHash Hash
	Timestamp        time.Time
}

// headerPayload is BlockHeader's wire shape, kept separate so JSON field
// order (and therefore the hash) is pinned independent of struct layout.
type headerPayload struct {
	Height           uint64
	PrevBlockHash    Hash
	TransactionsHash Hash
	TimestampMillis  int64
}

// Hash returns the content hash chained by invariant I5: it covers height,
// previous block hash and the transactions hash, so two blocks with
// identical contents at different heights never collide.
func (h BlockHeader) Hash() Hash {
	return HashBytes(EncodeWire(headerPayload{
		Height:           h.Height,
		PrevBlockHash:    h.PrevBlockHash,
		TransactionsHash: h.TransactionsHash,
		TimestampMillis:  h.Timestamp.UnixMilli(),
	}))
}

// Block is one committed unit of the chain.
type Block struct {
	Header               BlockHeader
	Transactions         []*Transaction
	RejectedTransactions []RejectedTransaction
}

// Hash returns the block's content hash, i.e. its header hash.
func (b *Block) Hash() Hash { return b.Header.Hash() }

// TransactionsHash returns the hash chaining every committed transaction's
// payload hash in order, used to populate BlockHeader.TransactionsHash.
func TransactionsHash(txs []*Transaction) Hash {
	hashes := make([]Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.PayloadHash()
	}
	return HashBytes(EncodeWire(hashes))
}
