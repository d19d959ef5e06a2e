package core

// instructions.go – the closed instruction set of spec.md §4.C, expressed
// as a tagged-union struct rather than a Go interface so that the whole
// tree stays trivially wire/JSON encodable (see wire.go and spec.md §9's
// "replace macro-generated versioned enums with an explicit version tag"
// guidance, extended here to every sum type the instruction set needs).

// InstructionTag selects which box of an Instruction is populated.
type InstructionTag int

const (
	TagRegister InstructionTag = iota
	TagUnregister
	TagMint
	TagBurn
	TagTransfer
	TagSetKeyValue
	TagRemoveKeyValue
	TagGrant
	TagRevoke
	TagSetParameter
	TagNewParameter
	TagExecuteTrigger
	TagUpgrade
	TagLog
	TagFail
)

// Instruction is one step of a transaction's or trigger's instruction
// list. Exactly one box matching Tag is populated.
type Instruction struct {
	Tag            InstructionTag
	Register       *RegisterBox       `json:",omitempty"`
	Unregister     *UnregisterBox     `json:",omitempty"`
	Mint           *MintBox           `json:",omitempty"`
	Burn           *BurnBox           `json:",omitempty"`
	Transfer       *TransferBox       `json:",omitempty"`
	SetKeyValue    *SetKeyValueBox    `json:",omitempty"`
	RemoveKeyValue *RemoveKeyValueBox `json:",omitempty"`
	Grant          *GrantBox          `json:",omitempty"`
	Revoke         *RevokeBox         `json:",omitempty"`
	SetParameter   *SetParameterBox   `json:",omitempty"`
	NewParameter   *NewParameterBox   `json:",omitempty"`
	ExecuteTrigger *ExecuteTriggerBox `json:",omitempty"`
	Upgrade        *UpgradeBox        `json:",omitempty"`
	Log            *LogBox            `json:",omitempty"`
	Fail           *FailBox           `json:",omitempty"`
}

// IdKind tags which field of IdBox is populated.
type IdKind int

const (
	IdKindPeer IdKind = iota
	IdKindDomain
	IdKindAccount
	IdKindAssetDefinition
	IdKindAsset
	IdKindRole
	IdKindTrigger
	IdKindParameter
	IdKindPermissionTokenDefinition
)

// IdBox is a tagged union over every identifier type, used wherever an
// instruction names an existing entity rather than carrying its full
// value (Unregister, SetKeyValue, Grant/Revoke targets, ...).
type IdBox struct {
	Kind                      IdKind
	Peer                      PublicKey                   `json:",omitempty"`
	Domain                    DomainId                    `json:",omitempty"`
	Account                   AccountId                   `json:",omitempty"`
	AssetDefinition           AssetDefinitionId           `json:",omitempty"`
	Asset                     AssetId                     `json:",omitempty"`
	Role                      RoleId                      `json:",omitempty"`
	Trigger                   TriggerId                   `json:",omitempty"`
	Parameter                 ParameterId                 `json:",omitempty"`
	PermissionTokenDefinition PermissionTokenDefinitionId `json:",omitempty"`
}

// RegistrableKind tags which field of RegistrableBox is populated.
type RegistrableKind int

const (
	RegistrablePeer RegistrableKind = iota
	RegistrableDomain
	RegistrableAccount
	RegistrableAssetDefinition
	RegistrableAsset
	RegistrableRole
	RegistrableTrigger
)

// RegistrableBox carries the full value being registered: Register needs
// more than an id, it needs the new entity's initial state.
type RegistrableBox struct {
	Kind            RegistrableKind
	Peer            *Peer            `json:",omitempty"`
	Domain          *Domain          `json:",omitempty"`
	Account         *Account         `json:",omitempty"`
	AssetDefinition *AssetDefinition `json:",omitempty"`
	Asset           *Asset           `json:",omitempty"`
	Role            *Role            `json:",omitempty"`
	Trigger         *Trigger         `json:",omitempty"`
}

type RegisterBox struct {
	Object RegistrableBox
}

type UnregisterBox struct {
	Id IdBox
}

// MintKind distinguishes minting asset quantity from minting trigger
// repetitions (spec.md's Mint<Asset,Numeric> / Mint<Trigger,u32>).
type MintKind int

const (
	MintAssetQuantity MintKind = iota
	MintTriggerRepetitions
)

type MintBox struct {
	Kind        MintKind
	Asset       AssetId `json:",omitempty"`
	Quantity    Numeric `json:",omitempty"`
	Trigger     TriggerId `json:",omitempty"`
	Repetitions uint32  `json:",omitempty"`
}

type BurnKind int

const (
	BurnAssetQuantity BurnKind = iota
	BurnTriggerRepetitions
)

type BurnBox struct {
	Kind        BurnKind
	Asset       AssetId `json:",omitempty"`
	Quantity    Numeric `json:",omitempty"`
	Trigger     TriggerId `json:",omitempty"`
	Repetitions uint32  `json:",omitempty"`
}

// TransferKind distinguishes an asset-quantity transfer from a domain or
// asset-definition ownership handover.
type TransferKind int

const (
	TransferAssetQuantity TransferKind = iota
	TransferDomainOwnership
	TransferAssetDefinitionOwnership
)

type TransferBox struct {
	Kind            TransferKind
	Asset           AssetId           `json:",omitempty"`
	Quantity        Numeric           `json:",omitempty"`
	Domain          DomainId          `json:",omitempty"`
	AssetDefinition AssetDefinitionId `json:",omitempty"`
	Source          AccountId         `json:",omitempty"`
	Destination     AccountId
}

type SetKeyValueBox struct {
	Target IdBox
	Key    string
	Value  []byte
}

type RemoveKeyValueBox struct {
	Target IdBox
	Key    string
}

// GrantRevokeKind distinguishes granting a bare permission token from
// granting an entire role.
type GrantRevokeKind int

const (
	GrantRevokePermissionToken GrantRevokeKind = iota
	GrantRevokeRole
)

type GrantRevokeObjectBox struct {
	Kind            GrantRevokeKind
	PermissionToken PermissionToken `json:",omitempty"`
	Role            RoleId          `json:",omitempty"`
}

type GrantBox struct {
	Object   GrantRevokeObjectBox
	Receiver AccountId
}

type RevokeBox struct {
	Object   GrantRevokeObjectBox
	Receiver AccountId
}

type SetParameterBox struct {
	Parameter Parameter
}

type NewParameterBox struct {
	Parameter Parameter
}

type ExecuteTriggerBox struct {
	Trigger TriggerId
}

type UpgradeBox struct {
	Wasm []byte
}

type LogBox struct {
	Level   string
	Message string
}

type FailBox struct {
	Message string
}
