package core

// restore.go – rebuilds an in-memory WorldStateView from an already
// populated kura store on restart. Grounded on the teacher's
// replay-on-startup idea in ledger.go (the block log itself is replayed
// to rebuild kura.go's index); this extends the same idea one layer up,
// since spec.md's WSV is a derived projection of the committed block
// history rather than something persisted directly.

// RestoreFromStore replays every block already in store into an empty
// wsv: block 1 via genesisBlock's recorded instructions (the genesis
// block carries no transaction list of its own, so it cannot be replayed
// generically), and every later block through the normal executor path.
// It is a no-op if store is empty.
func RestoreFromStore(wsv *WorldStateView, store *BlockStore, executor *Executor, genesisAuthority AccountId, genesis *RawGenesisBlock, limits Limits) error {
	if store.Height() == 0 {
		return nil
	}
	if wsv.Height() != 0 {
		return Newf(KindInvariantViolation, "restore requires an empty world state")
	}

	first, err := store.Get(1)
	if err != nil {
		return err
	}
	if genesis == nil {
		return Newf(KindConfig, "store has a genesis block but no genesis file was provided to restore it")
	}
	if err := RestoreGenesis(wsv, genesisAuthority, genesis, limits, first.Header.Timestamp); err != nil {
		return err
	}

	for height := uint64(2); height <= store.Height(); height++ {
		blk, err := store.Get(height)
		if err != nil {
			return err
		}
		if err := replayBlock(wsv, executor, limits, blk); err != nil {
			return err
		}
	}
	return nil
}

// replayBlock re-derives wsv's state for one already-committed block
// without touching the store, mirroring Sumeragi.applyAndPersist minus
// the persistence and gossip side effects.
func replayBlock(wsv *WorldStateView, executor *Executor, limits Limits, block *Block) error {
	st := wsv.Begin(block.Header.Height, block.Header.Timestamp)
	for _, tx := range block.Transactions {
		sub := st.BeginSub()
		if err := executor.ValidateTransaction(sub, tx.Authority, tx, limits); err != nil {
			st.Discard()
			return WrapErr(KindConsensus, err)
		}
		st.MergeSub(sub)
		st.RecordTxHash(tx.PayloadHash())
	}
	st.SetBlockHash(block.Hash())
	st.Commit()
	return nil
}
