package core

// txscope.go – StateTransaction (component B): the single mutable scope a
// block application opens over the WorldStateView, and the per-transaction
// sub-scopes instructions run in. Grounded on the teacher's lock-mutate-
// persist-then-log control flow in ledger.go's applyBlock, replacing its
// raw UTXO maps with the layered typed-entity overlay from wsv.go.

import "time"

// Event is a minimal notification of a state change, collected during a
// StateTransaction and handed to the event bus (component I) on commit.
type Event struct {
	Type        string
	Subject     string
	BlockHeight uint64
	Timestamp   time.Time
}

// StateTransaction is the only way core code mutates a WorldStateView.
// It is not internally synchronised: WorldStateView.Begin takes the WSV's
// write lock for the lifetime of the scope, released by Commit or Discard.
type StateTransaction struct {
	wsv *WorldStateView

	domains    *layer[DomainId, *Domain]
	accounts   *layer[AccountId, *Account]
	assetDefs  *layer[AssetDefinitionId, *AssetDefinition]
	assets     *layer[AssetId, *Asset]
	roles      *layer[RoleId, *Role]
	triggers   *layer[TriggerId, *Trigger]
	parameters *layer[ParameterId, *Parameter]
	peers      *layer[PublicKey, *Peer]

	executorWasm    []byte
	executorWasmSet bool

	blockHeight uint64
	blockTime   time.Time
	blockHash   Hash

	events       []Event
	committedTxs []Hash
}

// Begin opens the top-level StateTransaction for one block application,
// holding the WSV's write lock until Commit or Discard.
func (w *WorldStateView) Begin(blockHeight uint64, blockTime time.Time) *StateTransaction {
	w.mu.Lock()
	return &StateTransaction{
		wsv:          w,
		domains:      newLayer(w.domains, &w.domainOrd),
		accounts:     newLayer(w.accounts, &w.accountOrd),
		assetDefs:    newLayer(w.assetDefs, &w.assetDefOrd),
		assets:       newLayer(w.assets, &w.assetOrd),
		roles:        newLayer(w.roles, &w.roleOrd),
		triggers:     newLayer(w.triggers, &w.triggerOrd),
		parameters:   newLayer(w.parameters, &w.paramOrd),
		peers:        newLayer(w.peers, &w.peerOrd),
		executorWasm: w.executorWasm,
		blockHeight:  blockHeight,
		blockTime:    blockTime,
	}
}

// BeginSub opens a per-transaction sub-scope over the parent scope's
// current (possibly already-mutated-by-earlier-transactions) view. A sub
// that is never passed to MergeSub has no effect.
func (st *StateTransaction) BeginSub() *StateTransaction {
	return &StateTransaction{
		wsv:             st.wsv,
		domains:         st.domains.clone(),
		accounts:        st.accounts.clone(),
		assetDefs:       st.assetDefs.clone(),
		assets:          st.assets.clone(),
		roles:           st.roles.clone(),
		triggers:        st.triggers.clone(),
		parameters:      st.parameters.clone(),
		peers:           st.peers.clone(),
		executorWasm:    st.executorWasm,
		executorWasmSet: st.executorWasmSet,
		blockHeight:     st.blockHeight,
		blockTime:       st.blockTime,
	}
}

// MergeSub folds a successful sub-scope's buffered changes and events back
// into its parent. Call only after the sub's instructions all succeeded.
func (st *StateTransaction) MergeSub(sub *StateTransaction) {
	st.domains = sub.domains
	st.accounts = sub.accounts
	st.assetDefs = sub.assetDefs
	st.assets = sub.assets
	st.roles = sub.roles
	st.triggers = sub.triggers
	st.parameters = sub.parameters
	st.peers = sub.peers
	st.executorWasm = sub.executorWasm
	st.executorWasmSet = sub.executorWasmSet
	st.events = append(st.events, sub.events...)
}

// SetBlockHash records the block hash to be committed alongside this
// scope's buffered changes.
func (st *StateTransaction) SetBlockHash(h Hash) { st.blockHash = h }

// RecordTxHash marks a transaction hash as committed, for I6 dedup.
func (st *StateTransaction) RecordTxHash(h Hash) { st.committedTxs = append(st.committedTxs, h) }

func (st *StateTransaction) BlockHeight() uint64   { return st.blockHeight }
func (st *StateTransaction) BlockTime() time.Time  { return st.blockTime }
func (st *StateTransaction) Emit(e Event)          { st.events = append(st.events, e) }
func (st *StateTransaction) Events() []Event       { return st.events }
func (st *StateTransaction) ExecutorWasm() []byte  { return st.executorWasm }
func (st *StateTransaction) SetExecutorWasm(w []byte) {
	st.executorWasm = w
	st.executorWasmSet = true
}

// Commit writes every buffered change into the live WorldStateView and
// releases its write lock.
func (st *StateTransaction) Commit() []Event {
	st.domains.commitInto()
	st.accounts.commitInto()
	st.assetDefs.commitInto()
	st.assets.commitInto()
	st.roles.commitInto()
	st.triggers.commitInto()
	st.parameters.commitInto()
	st.peers.commitInto()
	if st.executorWasmSet {
		st.wsv.executorWasm = st.executorWasm
	}
	st.wsv.height = st.blockHeight
	st.wsv.blockTime = st.blockTime
	st.wsv.prevHash = st.blockHash
	for _, h := range st.committedTxs {
		st.wsv.committedTxHashes[h] = struct{}{}
	}
	st.wsv.mu.Unlock()
	return st.events
}

// Discard abandons every buffered change and releases the write lock.
func (st *StateTransaction) Discard() {
	st.wsv.mu.Unlock()
}

// --- Domain ---

func (st *StateTransaction) FindDomain(id DomainId) (*Domain, bool) { return st.domains.Get(id) }
func (st *StateTransaction) PutDomain(d *Domain)                    { st.domains.Put(d.Id, d) }
func (st *StateTransaction) DeleteDomain(id DomainId)               { st.domains.Del(id) }
func (st *StateTransaction) DomainIds() []DomainId                  { return st.domains.All() }

// --- Account ---

func (st *StateTransaction) FindAccount(id AccountId) (*Account, bool) { return st.accounts.Get(id) }
func (st *StateTransaction) PutAccount(a *Account)                     { st.accounts.Put(a.Id, a) }
func (st *StateTransaction) DeleteAccount(id AccountId)                { st.accounts.Del(id) }
func (st *StateTransaction) AccountIds() []AccountId                   { return st.accounts.All() }

// --- AssetDefinition ---

func (st *StateTransaction) FindAssetDefinition(id AssetDefinitionId) (*AssetDefinition, bool) {
	return st.assetDefs.Get(id)
}
func (st *StateTransaction) PutAssetDefinition(d *AssetDefinition) { st.assetDefs.Put(d.Id, d) }
func (st *StateTransaction) DeleteAssetDefinition(id AssetDefinitionId) { st.assetDefs.Del(id) }
func (st *StateTransaction) AssetDefinitionIds() []AssetDefinitionId    { return st.assetDefs.All() }

// --- Asset ---

func (st *StateTransaction) FindAsset(id AssetId) (*Asset, bool) { return st.assets.Get(id) }
func (st *StateTransaction) PutAsset(a *Asset)                   { st.assets.Put(a.Id, a) }
func (st *StateTransaction) DeleteAsset(id AssetId)              { st.assets.Del(id) }
func (st *StateTransaction) AssetIds() []AssetId                 { return st.assets.All() }

// --- Role ---

func (st *StateTransaction) FindRole(id RoleId) (*Role, bool) { return st.roles.Get(id) }
func (st *StateTransaction) PutRole(r *Role)                  { st.roles.Put(r.Id, r) }
func (st *StateTransaction) DeleteRole(id RoleId)             { st.roles.Del(id) }
func (st *StateTransaction) RoleIds() []RoleId                { return st.roles.All() }

// --- Trigger ---

func (st *StateTransaction) FindTrigger(id TriggerId) (*Trigger, bool) { return st.triggers.Get(id) }
func (st *StateTransaction) PutTrigger(t *Trigger)                     { st.triggers.Put(t.Id, t) }
func (st *StateTransaction) DeleteTrigger(id TriggerId)                { st.triggers.Del(id) }
func (st *StateTransaction) TriggerIds() []TriggerId                   { return st.triggers.All() }

// --- Parameter ---

func (st *StateTransaction) FindParameter(id ParameterId) (*Parameter, bool) {
	return st.parameters.Get(id)
}
func (st *StateTransaction) PutParameter(p *Parameter)     { st.parameters.Put(p.Id, p) }
func (st *StateTransaction) DeleteParameter(id ParameterId) { st.parameters.Del(id) }
func (st *StateTransaction) ParameterIds() []ParameterId    { return st.parameters.All() }

// --- Peer ---

func (st *StateTransaction) FindPeer(pk PublicKey) (*Peer, bool) { return st.peers.Get(pk) }
func (st *StateTransaction) PutPeer(p *Peer)                     { st.peers.Put(p.PublicKey, p) }
func (st *StateTransaction) DeletePeer(pk PublicKey)             { st.peers.Del(pk) }
func (st *StateTransaction) PeerKeys() []PublicKey               { return st.peers.All() }
