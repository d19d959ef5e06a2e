package core

// genesis.go – genesis bootstrap (spec.md invariant I8: the genesis block
// is exempt from the normal admission pipeline and is immutable once
// committed). Grounded on original_source/core/src/genesis.rs: a
// RawGenesisBlock of transactions submitted once by the peer designated
// to submit genesis, after which every instruction runs exactly as a
// normal block's would. The genesis block may also carry its own executor
// WASM blob, installed into WSV before any instruction is applied so that
// every transaction from block 2 onward — and every later call to
// Executor.ValidateTransaction — runs against it instead of taking the
// no-executor direct-interpreter branch. Genesis's own instructions still
// run through applyExecutableDirect: they are the trusted bootstrap data
// that installs the executor, not input the executor should be validating.

import (
	"encoding/json"
	"os"
	"time"
)

// GenesisTransactionTTL mirrors the generous TTL the original genesis
// transactions carry, since peers may take time to come online together.
const GenesisTransactionTTL = 100 * time.Second

// RawGenesisBlock is the on-disk genesis definition: an ordered list of
// instruction batches, each applied as its own transaction-shaped scope,
// plus an optional executor WASM module installed before any of them run.
type RawGenesisBlock struct {
	Transactions [][]Instruction `json:"transactions"`
	ExecutorWasm []byte          `json:"executor_wasm,omitempty"`
}

// LoadGenesisFile reads and decodes a genesis block from path.
func LoadGenesisFile(path string) (*RawGenesisBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapErr(KindConfig, err)
	}
	var block RawGenesisBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, WrapErr(KindConfig, err)
	}
	return &block, nil
}

// ApplyGenesis commits block as height 1 under authority, the genesis
// account, marking domain and account as the network's permanent genesis
// identities (I8: Unregister on either is rejected thereafter). If block
// carries an executor WASM blob it is installed before genesis's own
// instructions are applied, so it is already the live executor by the
// time the first post-genesis transaction is validated.
func ApplyGenesis(wsv *WorldStateView, store *BlockStore, authority AccountId, block *RawGenesisBlock, limits Limits, now time.Time) error {
	if wsv.Height() != 0 {
		return Newf(KindInvariantViolation, "genesis can only be applied to an empty world state")
	}
	genesisBlock, err := applyGenesisInstructions(wsv, authority, block, limits, now)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.Append(genesisBlock); err != nil {
			return err
		}
	}
	return nil
}

// RestoreGenesis re-derives WSV genesis state from the on-disk genesis
// block on a peer that already has it persisted in its kura store (a
// restart, not a first start): it applies the same instructions ApplyGenesis
// would but never re-appends to store, since block 1 is already there.
func RestoreGenesis(wsv *WorldStateView, authority AccountId, block *RawGenesisBlock, limits Limits, now time.Time) error {
	if wsv.Height() != 0 {
		return Newf(KindInvariantViolation, "genesis can only be restored into an empty world state")
	}
	_, err := applyGenesisInstructions(wsv, authority, block, limits, now)
	return err
}

func applyGenesisInstructions(wsv *WorldStateView, authority AccountId, block *RawGenesisBlock, limits Limits, now time.Time) (*Block, error) {
	st := wsv.Begin(1, now)
	if len(block.ExecutorWasm) > 0 {
		st.SetExecutorWasm(block.ExecutorWasm)
	}
	var allInstructions []Instruction
	for _, batch := range block.Transactions {
		sub := st.BeginSub()
		exec := Executable{Kind: ExecutableInstructions, Instructions: batch}
		if err := applyExecutableDirect(sub, authority, exec, limits); err != nil {
			st.Discard()
			return nil, WrapErr(KindInvariantViolation, err)
		}
		st.MergeSub(sub)
		allInstructions = append(allInstructions, batch...)
	}

	header := BlockHeader{
		Height:           1,
		PrevBlockHash:    Hash{},
		TransactionsHash: HashBytes(EncodeWire(allInstructions)),
		Timestamp:        now,
	}
	genesisBlock := &Block{Header: header}
	st.SetBlockHash(genesisBlock.Hash())
	st.Commit()

	wsv.MarkGenesis(authority.Domain, authority)
	return genesisBlock, nil
}
