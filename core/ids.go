package core

// ids.go – strongly-typed identifiers for every addressable entity in the
// world-state view. Generalised from the teacher's Address/Hash value types
// in favour of Iroha's compound, human-readable identifiers: names scoped by
// domain rather than raw 20-byte addresses.

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Hash is a 32-byte content digest, reused for transaction and block
// addressing exactly as the teacher's Hash type is used for block hashing.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

// HashBytes returns the Keccak256 digest of b, the same primitive the
// teacher uses to hash block headers.
func HashBytes(b []byte) Hash {
	return Hash(crypto.Keccak256Hash(b))
}

// PublicKey is a compressed ed25519/BLS public key, assumed opaque per
// spec.md §1 ("cryptographic primitives are assumed").
type PublicKey [32]byte

func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

// ParsePublicKey decodes a hex-encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := hex.DecodeString(strings.TrimPrefix(s, "ed01"))
	if err != nil {
		return pk, Newf(KindType, "invalid public key hex: %w", err)
	}
	if len(b) != len(pk) {
		return pk, Newf(KindType, "public key must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// Name is a validated identifier component (domain name, asset name, role
// name, ...). ParseName validates a string against ident_length_limits
// (invariant I4); the Parse*Id functions below and Register do not call
// it, so names built through them are not length-checked.
type Name string

func ParseName(s string, limits IdentLengthLimits) (Name, error) {
	if len(s) < limits.Min || len(s) > limits.Max {
		return "", Newf(KindMetadata, "identifier %q length %d outside [%d,%d]", s, len(s), limits.Min, limits.Max)
	}
	if strings.ContainsAny(s, "@#$ \t\n") {
		return "", Newf(KindType, "identifier %q contains reserved character", s)
	}
	return Name(s), nil
}

// DomainId identifies a Domain by name.
type DomainId struct{ Name Name }

func (d DomainId) String() string { return string(d.Name) }

func ParseDomainId(s string) (DomainId, error) {
	return DomainId{Name: Name(s)}, nil
}

// AccountId identifies an Account by its signatory public key scoped to a
// domain, written "<pubkey>@<domain>".
type AccountId struct {
	Signatory PublicKey
	Domain    DomainId
}

func (a AccountId) String() string {
	return fmt.Sprintf("%s@%s", a.Signatory, a.Domain)
}

func ParseAccountId(s string) (AccountId, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return AccountId{}, Newf(KindType, "account id %q must be <signatory>@<domain>", s)
	}
	pk, err := ParsePublicKey(parts[0])
	if err != nil {
		return AccountId{}, err
	}
	return AccountId{Signatory: pk, Domain: DomainId{Name: Name(parts[1])}}, nil
}

// AssetDefinitionId identifies an AssetDefinition by name scoped to a
// domain, written "<name>#<domain>".
type AssetDefinitionId struct {
	Name   Name
	Domain DomainId
}

func (a AssetDefinitionId) String() string {
	return fmt.Sprintf("%s#%s", a.Name, a.Domain)
}

func ParseAssetDefinitionId(s string) (AssetDefinitionId, error) {
	parts := strings.SplitN(s, "#", 2)
	if len(parts) != 2 {
		return AssetDefinitionId{}, Newf(KindType, "asset definition id %q must be <name>#<domain>", s)
	}
	return AssetDefinitionId{Name: Name(parts[0]), Domain: DomainId{Name: Name(parts[1])}}, nil
}

// AssetId identifies an Asset owned by an account, written
// "<name>#<domain>##<account>".
type AssetId struct {
	Definition AssetDefinitionId
	Account    AccountId
}

func (a AssetId) String() string {
	return fmt.Sprintf("%s##%s", a.Definition, a.Account)
}

// RoleId identifies a Role by name.
type RoleId struct{ Name Name }

func (r RoleId) String() string { return string(r.Name) }

// TriggerId identifies a Trigger by name.
type TriggerId struct{ Name Name }

func (t TriggerId) String() string { return string(t.Name) }

// ParameterId identifies a global tuning Parameter, e.g. "BlockTime".
type ParameterId struct{ Name Name }

func (p ParameterId) String() string { return string(p.Name) }

// PermissionTokenDefinitionId names a kind of permission token recognised
// by the executor's permission-token schema.
type PermissionTokenDefinitionId struct{ Name Name }

func (p PermissionTokenDefinitionId) String() string { return string(p.Name) }

// IdentLengthLimits bounds identifier component length (spec.md §4.B/I4).
type IdentLengthLimits struct {
	Min int
	Max int
}

// MetadataLimits bounds a Metadata map's entry count and per-value size
// (spec.md §4.B/I4).
type MetadataLimits struct {
	Capacity     int
	MaxEntryBytes int
}

// Metadata is a bounded string-keyed map of opaque JSON-able values attached
// to most entities.
type Metadata map[string][]byte

// Validate enforces capacity and per-entry byte size against limits,
// classified as KindMetadata per the error taxonomy.
func (m Metadata) Validate(limits MetadataLimits) error {
	if len(m) > limits.Capacity {
		return Newf(KindMetadata, "metadata has %d entries, limit is %d", len(m), limits.Capacity)
	}
	for k, v := range m {
		if len(v) > limits.MaxEntryBytes {
			return Newf(KindMetadata, "metadata key %q value is %d bytes, limit is %d", k, len(v), limits.MaxEntryBytes)
		}
	}
	return nil
}

// SortedKeys returns m's keys in canonical total order so that iteration
// over metadata never depends on Go's randomised map order, a determinism
// requirement from spec.md §4.F.
func (m Metadata) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
