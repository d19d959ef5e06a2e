package core

// wsv.go – the World State View (component B): an in-memory, versioned map
// of domains/accounts/assets/roles/triggers/parameters, and the
// StateTransaction scope instructions mutate. Generalised from the
// teacher's single in-memory Ledger map-of-maps (ledger.go) into typed
// entity maps with a layered, read-your-writes transaction on top — the
// "single owned WSV behind an apply_block entry point" re-architecture
// named in spec.md §9.

import (
	"bytes"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// layer is a copy-on-write overlay used both by the top-level
// StateTransaction (over the committed WSV) and by each instruction's
// sub-scope (over its transaction's StateTransaction). Clone is O(size of
// prior buffered changes), matching the discard-cost requirement in
// spec.md §4.B.
type layer[K comparable, V any] struct {
	base    map[K]V
	order   *[]K // pointer to the shared insertion-order slice of base
	set     map[K]V
	deleted map[K]struct{}
}

func newLayer[K comparable, V any](base map[K]V, order *[]K) *layer[K, V] {
	return &layer[K, V]{base: base, order: order, set: make(map[K]V), deleted: make(map[K]struct{})}
}

func (l *layer[K, V]) Get(k K) (V, bool) {
	if _, gone := l.deleted[k]; gone {
		var zero V
		return zero, false
	}
	if v, ok := l.set[k]; ok {
		return v, true
	}
	v, ok := l.base[k]
	return v, ok
}

func (l *layer[K, V]) Put(k K, v V) {
	delete(l.deleted, k)
	l.set[k] = v
}

func (l *layer[K, V]) Del(k K) {
	delete(l.set, k)
	l.deleted[k] = struct{}{}
}

// Has reports presence without distinguishing base vs overlay.
func (l *layer[K, V]) Has(k K) bool {
	_, ok := l.Get(k)
	return ok
}

// All returns every live key, preserving base insertion order and
// appending newly-created overlay keys after, so iteration is
// deterministic (spec.md §4.F).
func (l *layer[K, V]) All() []K {
	out := make([]K, 0, len(*l.order)+len(l.set))
	seen := make(map[K]struct{}, len(*l.order))
	for _, k := range *l.order {
		seen[k] = struct{}{}
		if _, gone := l.deleted[k]; gone {
			continue
		}
		out = append(out, k)
	}
	for k := range l.set {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func (l *layer[K, V]) clone() *layer[K, V] {
	set := make(map[K]V, len(l.set))
	for k, v := range l.set {
		set[k] = v
	}
	del := make(map[K]struct{}, len(l.deleted))
	for k := range l.deleted {
		del[k] = struct{}{}
	}
	return &layer[K, V]{base: l.base, order: l.order, set: set, deleted: del}
}

// commitInto writes every buffered change into the underlying base map and
// extends the insertion-order slice with genuinely new keys.
func (l *layer[K, V]) commitInto() {
	for k := range l.deleted {
		delete(l.base, k)
	}
	existing := make(map[K]struct{}, len(*l.order))
	for _, k := range *l.order {
		existing[k] = struct{}{}
	}
	for k, v := range l.set {
		if _, ok := existing[k]; !ok {
			*l.order = append(*l.order, k)
		}
		l.base[k] = v
	}
}

// WorldStateView is the sole mutable owner of all entities between blocks.
type WorldStateView struct {
	mu sync.RWMutex

	domains    map[DomainId]*Domain
	domainOrd  []DomainId
	accounts   map[AccountId]*Account
	accountOrd []AccountId
	assetDefs  map[AssetDefinitionId]*AssetDefinition
	assetDefOrd []AssetDefinitionId
	assets     map[AssetId]*Asset
	assetOrd   []AssetId
	roles      map[RoleId]*Role
	roleOrd    []RoleId
	triggers   map[TriggerId]*Trigger
	triggerOrd []TriggerId
	parameters map[ParameterId]*Parameter
	paramOrd   []ParameterId
	peers      map[PublicKey]*Peer
	peerOrd    []PublicKey

	executorWasm []byte

	height   uint64
	prevHash Hash
	blockTime time.Time

	committedTxHashes map[Hash]struct{}

	genesisDomain  DomainId
	genesisAccount AccountId
	genesisSet     bool

	logger *logrus.Logger
}

func NewWorldStateView(logger *logrus.Logger) *WorldStateView {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WorldStateView{
		domains:           make(map[DomainId]*Domain),
		accounts:          make(map[AccountId]*Account),
		assetDefs:         make(map[AssetDefinitionId]*AssetDefinition),
		assets:            make(map[AssetId]*Asset),
		roles:             make(map[RoleId]*Role),
		triggers:          make(map[TriggerId]*Trigger),
		parameters:        make(map[ParameterId]*Parameter),
		peers:             make(map[PublicKey]*Peer),
		committedTxHashes: make(map[Hash]struct{}),
		logger:            logger,
	}
}

// Height returns the height of the last committed block.
func (w *WorldStateView) Height() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.height
}

// LastBlockHash returns the hash of the last committed block.
func (w *WorldStateView) LastBlockHash() Hash {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.prevHash
}

// MarkGenesis records the genesis domain/account ids so I8 (genesis
// immutability) can be enforced once genesis (height 1) is committed.
func (w *WorldStateView) MarkGenesis(domain DomainId, account AccountId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.genesisDomain, w.genesisAccount, w.genesisSet = domain, account, true
}

func (w *WorldStateView) IsGenesis(id DomainId) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.genesisSet && id == w.genesisDomain
}

// CommittedTxHash reports whether a transaction hash already appears in a
// committed block (I6 dedup).
func (w *WorldStateView) CommittedTxHash(h Hash) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.committedTxHashes[h]
	return ok
}

// ExecutorWasm returns the currently installed executor module bytes.
func (w *WorldStateView) ExecutorWasm() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.executorWasm
}

// --- read accessors (snapshot-consistent under the RWMutex) ---

func (w *WorldStateView) FindDomain(id DomainId) (*Domain, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d, ok := w.domains[id]
	return d, ok
}

func (w *WorldStateView) FindAccount(id AccountId) (*Account, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.accounts[id]
	return a, ok
}

func (w *WorldStateView) FindAssetDefinition(id AssetDefinitionId) (*AssetDefinition, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.assetDefs[id]
	return a, ok
}

func (w *WorldStateView) FindAsset(id AssetId) (*Asset, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.assets[id]
	return a, ok
}

func (w *WorldStateView) FindRole(id RoleId) (*Role, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.roles[id]
	return r, ok
}

func (w *WorldStateView) FindTrigger(id TriggerId) (*Trigger, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.triggers[id]
	return t, ok
}

func (w *WorldStateView) FindParameter(id ParameterId) (*Parameter, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.parameters[id]
	return p, ok
}

// Peers returns the peer set in deterministic (insertion) order, used to
// derive consensus topology at a block boundary (I7).
func (w *WorldStateView) Peers() []*Peer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Peer, 0, len(w.peerOrd))
	for _, k := range w.peerOrd {
		if p, ok := w.peers[k]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AllDomains lists every domain in insertion order.
func (w *WorldStateView) AllDomains() []*Domain {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Domain, 0, len(w.domainOrd))
	for _, id := range w.domainOrd {
		if d, ok := w.domains[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// AllAccounts lists every account in insertion order.
func (w *WorldStateView) AllAccounts() []*Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Account, 0, len(w.accountOrd))
	for _, id := range w.accountOrd {
		if a, ok := w.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// AllRoles lists every role in insertion order.
func (w *WorldStateView) AllRoles() []*Role {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Role, 0, len(w.roleOrd))
	for _, id := range w.roleOrd {
		if r, ok := w.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// AllParameters lists every global parameter in insertion order.
func (w *WorldStateView) AllParameters() []*Parameter {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Parameter, 0, len(w.paramOrd))
	for _, id := range w.paramOrd {
		if p, ok := w.parameters[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AssetDefinitionsByDomain lists, in insertion order, every asset
// definition whose Id.Domain matches domain.
func (w *WorldStateView) AssetDefinitionsByDomain(domain DomainId) []*AssetDefinition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*AssetDefinition
	for _, id := range w.assetDefOrd {
		if def, ok := w.assetDefs[id]; ok && def.Id.Domain == domain {
			out = append(out, def)
		}
	}
	return out
}

// AssetsByAccount lists, in insertion order, every asset owned by account.
func (w *WorldStateView) AssetsByAccount(account AccountId) []*Asset {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Asset
	for _, id := range w.assetOrd {
		if a, ok := w.assets[id]; ok && a.Id.Account == account {
			out = append(out, a)
		}
	}
	return out
}

// PageQuery bounds a paginated, optionally sorted listing.
type PageQuery struct {
	Start   int
	Limit   int // <= 0 means unbounded
	SortKey string
}

// Paginate applies q.Start/q.Limit to items, which must already be in the
// desired order.
func Paginate[T any](items []T, q PageQuery) []T {
	if q.Start >= len(items) {
		return nil
	}
	end := len(items)
	if q.Limit > 0 && q.Start+q.Limit < end {
		end = q.Start + q.Limit
	}
	return items[q.Start:end]
}

// SortByMetadataKey orders items by the canonical total order of their
// Metadata[key] value; entries lacking key are appended, in their
// original relative order, after entries that have it (spec.md §4.B).
func SortByMetadataKey[T any](items []T, key string, metaOf func(T) Metadata) []T {
	if key == "" {
		return items
	}
	type entry struct {
		item T
		val  []byte
		has  bool
		idx  int
	}
	entries := make([]entry, len(items))
	for i, it := range items {
		v, ok := metaOf(it)[key]
		entries[i] = entry{item: it, val: v, has: ok, idx: i}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.has != b.has {
			return a.has
		}
		if !a.has {
			return a.idx < b.idx
		}
		return compareMetaValue(a.val, b.val) < 0
	})
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

// compareMetaValue compares two metadata values under their canonical
// total order: numerically if both parse as base-10 integers, lexically
// otherwise.
func compareMetaValue(a, b []byte) int {
	ai, aerr := strconv.ParseInt(string(a), 10, 64)
	bi, berr := strconv.ParseInt(string(b), 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return bytes.Compare(a, b)
}
