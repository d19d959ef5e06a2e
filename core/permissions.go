package core

// permissions.go – the permission-token schema that Grant checks a token
// definition against (passed in as Limits.Schema by the executor,
// component D) and that an executor module fills in through its
// register_token host import.
// Grounded on the teacher's AccessController in access_control.go: same
// mutex-guarded cache-over-backing-store shape, generalised from
// address+role string pairs to typed PermissionTokenDefinitionId
// validators and WSV-backed account/role token lookups.

import "sync"

// PermissionValidator checks that a token's opaque payload is well-formed
// for its definition, e.g. that a "CanTransferAsset" token's payload
// actually names an AssetId.
type PermissionValidator func(payload []byte) error

// PermissionTokenSchema is the registry of recognised permission token
// definitions and how to validate their payloads.
type PermissionTokenSchema struct {
	mu         sync.RWMutex
	validators map[PermissionTokenDefinitionId]PermissionValidator
}

func NewPermissionTokenSchema() *PermissionTokenSchema {
	return &PermissionTokenSchema{validators: make(map[PermissionTokenDefinitionId]PermissionValidator)}
}

// Register adds or replaces the validator for a token definition. Executor
// migrations (component D's migrate entry point) call this to install the
// schema a new executor module expects.
func (s *PermissionTokenSchema) Register(id PermissionTokenDefinitionId, v PermissionValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[id] = v
}

// Validate checks tok's payload against its registered validator. An
// unregistered definition id is itself a KindMetadata error: the executor
// never grants tokens of a kind it hasn't declared.
func (s *PermissionTokenSchema) Validate(tok PermissionToken) error {
	s.mu.RLock()
	v, ok := s.validators[tok.DefinitionId]
	s.mu.RUnlock()
	if !ok {
		return Newf(KindMetadata, "unregistered permission token definition %s", tok.DefinitionId)
	}
	if v == nil {
		return nil
	}
	return v(tok.Payload)
}

// HasPermission reports whether account holds a token matching definition
// id, either directly or via a granted role, mirroring the teacher's
// HasRole check of direct grants falling back to the backing store.
func HasPermission(st *StateTransaction, account AccountId, id PermissionTokenDefinitionId) bool {
	acc, ok := st.FindAccount(account)
	if !ok {
		return false
	}
	if toks, ok := acc.Tokens[id]; ok && len(toks) > 0 {
		return true
	}
	for roleId := range acc.Roles {
		role, ok := st.FindRole(roleId)
		if !ok {
			continue
		}
		for _, t := range role.Tokens {
			if t.DefinitionId == id {
				return true
			}
		}
	}
	return false
}
