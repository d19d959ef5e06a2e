package core

// entities.go – the typed world-state entities of spec.md §3: Domain,
// Account, AssetDefinition, Asset, Role, PermissionToken, Trigger, Action,
// Parameter and Peer. Grounded on the teacher's plain-struct style in
// common_structs.go, generalised from UTXO/token bookkeeping to Iroha's
// domain-scoped entity graph.

import "time"

// SignatureCheckCondition is an account's k-of-n multisig policy.
type SignatureCheckCondition struct {
	Quorum int
}

func (c SignatureCheckCondition) Satisfied(validSignatures int) bool {
	return validSignatures >= c.Quorum
}

// Domain owns accounts and asset definitions, and carries an owner account,
// metadata and an optional logo reference.
type Domain struct {
	Id       DomainId
	OwnerId  AccountId
	Logo     string
	Metadata Metadata
}

// Account owns a signatory set, a signature-check policy, metadata, and
// granted permission tokens/roles.
type Account struct {
	Id         AccountId
	Signatories []PublicKey
	CheckCondition SignatureCheckCondition
	Metadata   Metadata
	Tokens     map[PermissionTokenDefinitionId][]PermissionToken
	Roles      map[RoleId]struct{}
}

func NewAccount(id AccountId) *Account {
	return &Account{
		Id:             id,
		Signatories:    []PublicKey{id.Signatory},
		CheckCondition: SignatureCheckCondition{Quorum: 1},
		Metadata:       Metadata{},
		Tokens:         make(map[PermissionTokenDefinitionId][]PermissionToken),
		Roles:          make(map[RoleId]struct{}),
	}
}

// AssetDefinition describes the shape and lifecycle rules of an asset kind.
type AssetDefinition struct {
	Id            AssetDefinitionId
	Type          AssetType
	Scale         uint32 // only meaningful when Type == AssetTypeNumeric
	Mintability   Mintability
	Owner         AccountId
	TotalQuantity Numeric
	Metadata      Metadata
	everMinted    bool // tracks I3 for Mintability == MintOnce
}

// Asset is one account's holding of one asset definition.
type Asset struct {
	Id    AssetId
	Value AssetValue
}

// Role is a named bundle of permission tokens, granted to accounts as a
// single unit.
type Role struct {
	Id     RoleId
	Tokens []PermissionToken
}

// PermissionToken is an opaque, executor-interpreted capability grant.
type PermissionToken struct {
	DefinitionId PermissionTokenDefinitionId
	Payload      []byte // opaque JSON, interpreted by the executor
}

// Repeats controls how many more times a Trigger may fire.
type Repeats struct {
	Indefinite bool
	Remaining  uint32 // meaningful only when !Indefinite
}

func (r Repeats) Exhausted() bool { return !r.Indefinite && r.Remaining == 0 }

// Consume decrements Remaining by one firing, returning the post-firing
// Repeats value.
func (r Repeats) Consume() Repeats {
	if r.Indefinite || r.Remaining == 0 {
		return r
	}
	r.Remaining--
	return r
}

// ExecutableKind distinguishes an inline instruction list from a WASM blob
// as a trigger/transaction payload.
type ExecutableKind int

const (
	ExecutableInstructions ExecutableKind = iota
	ExecutableWasm
)

type Executable struct {
	Kind         ExecutableKind
	Instructions []Instruction
	Wasm         []byte
}

// EventFilterKind selects which event family a trigger listens to.
type EventFilterKind int

const (
	FilterData EventFilterKind = iota
	FilterTime
	FilterPreCommit
	FilterExecuteTriggerCall
)

// EventFilter narrows a Trigger's firing condition.
type EventFilter struct {
	Kind EventFilterKind
	// DataEventType, when Kind == FilterData, restricts which data event
	// type names (e.g. "Asset.Minted") this trigger reacts to. Empty
	// matches every data event.
	DataEventType string
	// TimePeriod, when Kind == FilterTime, is the firing interval.
	TimePeriod time.Duration
}

// Action is the body of a Trigger: what to run, under what authority, how
// many more times, and under what firing condition.
type Action struct {
	Executable Executable
	Repeats    Repeats
	Authority  AccountId
	Filter     EventFilter
	Metadata   Metadata
}

// Trigger is a stored procedure fired by events, time, pre-commit, or
// explicit ExecuteTrigger invocation.
type Trigger struct {
	Id     TriggerId
	Action Action
	Domain DomainId // scope for cascading Unregister<Domain>
}

// Parameter is a typed, named, globally-scoped tuning knob.
type Parameter struct {
	Id    ParameterId
	Value int64
}

// Peer is a consensus participant identified by its public key and network
// address.
type Peer struct {
	PublicKey PublicKey
	Address   string
}
