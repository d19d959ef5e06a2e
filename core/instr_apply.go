package core

// instr_apply.go – the instruction interpreter (component C): one
// function per instruction family enforcing spec.md's referential
// integrity (I1), quantity conservation (I2), mintability lifecycle (I3)
// and the metadata limits of I4. Identifier lengths are not checked here:
// Register accepts an id of any length. Permission-token authorization is
// layered on top by the executor (executor.go); this file only enforces
// invariants that hold regardless of who is asking.

// Limits bundles the identifier and metadata bounds, taken from the node's
// configuration file (only Metadata is read by the instructions in this
// file; Ident is carried unchecked), and the permission-token
// schema Grant<Token, Role> checks a token definition against. Schema may
// be nil before any executor module has registered one (e.g. during
// genesis bootstrap prior to the genesis executor's own install), in
// which case Grant accepts any token definition.
type Limits struct {
	Ident    IdentLengthLimits
	Metadata MetadataLimits
	Schema   *PermissionTokenSchema
}

// ApplyInstruction executes one instruction against st under authority,
// mutating st in place. Callers run each transaction's instructions in a
// BeginSub/MergeSub scope so a mid-list failure discards only that
// transaction's buffered changes.
func ApplyInstruction(st *StateTransaction, authority AccountId, inst Instruction, limits Limits) error {
	switch inst.Tag {
	case TagRegister:
		return applyRegister(st, authority, inst.Register, limits)
	case TagUnregister:
		return applyUnregister(st, authority, inst.Unregister)
	case TagMint:
		return applyMint(st, inst.Mint)
	case TagBurn:
		return applyBurn(st, inst.Burn)
	case TagTransfer:
		return applyTransfer(st, inst.Transfer)
	case TagSetKeyValue:
		return applySetKeyValue(st, inst.SetKeyValue, limits)
	case TagRemoveKeyValue:
		return applyRemoveKeyValue(st, inst.RemoveKeyValue)
	case TagGrant:
		return applyGrant(st, inst.Grant, limits.Schema)
	case TagRevoke:
		return applyRevoke(st, inst.Revoke)
	case TagSetParameter:
		return applySetParameter(st, inst.SetParameter)
	case TagNewParameter:
		return applyNewParameter(st, inst.NewParameter)
	case TagExecuteTrigger:
		return applyExecuteTrigger(st, authority, inst.ExecuteTrigger)
	case TagUpgrade:
		st.SetExecutorWasm(inst.Upgrade.Wasm)
		st.Emit(Event{Type: "Executor.Upgraded", BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case TagLog:
		st.Emit(Event{Type: "Log." + inst.Log.Level, Subject: inst.Log.Message, BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case TagFail:
		return Newf(KindInvariantViolation, "Fail instruction: %s", inst.Fail.Message)
	default:
		return Newf(KindType, "unknown instruction tag %d", inst.Tag)
	}
}

func applyRegister(st *StateTransaction, authority AccountId, box *RegisterBox, limits Limits) error {
	switch box.Kind {
	case RegistrablePeer:
		p := box.Peer
		if _, exists := st.FindPeer(p.PublicKey); exists {
			return Newf(KindRepetition, "peer %s already registered", p.PublicKey)
		}
		st.PutPeer(p)
		st.Emit(Event{Type: "Peer.Added", Subject: p.PublicKey.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case RegistrableDomain:
		d := box.Domain
		if _, exists := st.FindDomain(d.Id); exists {
			return Newf(KindRepetition, "domain %s already registered", d.Id)
		}
		if err := d.Metadata.Validate(limits.Metadata); err != nil {
			return err
		}
		st.PutDomain(d)
		st.Emit(Event{Type: "Domain.Created", Subject: d.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case RegistrableAccount:
		a := box.Account
		if _, exists := st.FindAccount(a.Id); exists {
			return Newf(KindRepetition, "account %s already registered", a.Id)
		}
		if _, ok := st.FindDomain(a.Id.Domain); !ok {
			return Newf(KindFind, "domain %s not found for account %s", a.Id.Domain, a.Id)
		}
		if err := a.Metadata.Validate(limits.Metadata); err != nil {
			return err
		}
		st.PutAccount(a)
		st.Emit(Event{Type: "Account.Created", Subject: a.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case RegistrableAssetDefinition:
		def := box.AssetDefinition
		if _, exists := st.FindAssetDefinition(def.Id); exists {
			return Newf(KindRepetition, "asset definition %s already registered", def.Id)
		}
		if _, ok := st.FindDomain(def.Id.Domain); !ok {
			return Newf(KindFind, "domain %s not found for asset definition %s", def.Id.Domain, def.Id)
		}
		if _, ok := st.FindAccount(def.Owner); !ok {
			return Newf(KindFind, "owner account %s not found", def.Owner)
		}
		st.PutAssetDefinition(def)
		st.Emit(Event{Type: "AssetDefinition.Created", Subject: def.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case RegistrableAsset:
		asset := box.Asset
		if _, exists := st.FindAsset(asset.Id); exists {
			return Newf(KindRepetition, "asset %s already registered", asset.Id)
		}
		if _, ok := st.FindAssetDefinition(asset.Id.Definition); !ok {
			return Newf(KindFind, "asset definition %s not found", asset.Id.Definition)
		}
		if _, ok := st.FindAccount(asset.Id.Account); !ok {
			return Newf(KindFind, "account %s not found", asset.Id.Account)
		}
		st.PutAsset(asset)
		return nil
	case RegistrableRole:
		r := box.Role
		if _, exists := st.FindRole(r.Id); exists {
			return Newf(KindRepetition, "role %s already registered", r.Id)
		}
		st.PutRole(r)
		st.Emit(Event{Type: "Role.Created", Subject: r.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case RegistrableTrigger:
		t := box.Trigger
		if _, exists := st.FindTrigger(t.Id); exists {
			return Newf(KindRepetition, "trigger %s already registered", t.Id)
		}
		if _, ok := st.FindAccount(t.Action.Authority); !ok {
			return Newf(KindFind, "trigger authority %s not found", t.Action.Authority)
		}
		st.PutTrigger(t)
		return nil
	default:
		return Newf(KindType, "unknown registrable kind %d", box.Kind)
	}
}

func applyUnregister(st *StateTransaction, authority AccountId, box *UnregisterBox) error {
	switch box.Id.Kind {
	case IdKindPeer:
		if _, ok := st.FindPeer(box.Id.Peer); !ok {
			return Newf(KindFind, "peer %s not found", box.Id.Peer)
		}
		st.DeletePeer(box.Id.Peer)
		st.Emit(Event{Type: "Peer.Removed", Subject: box.Id.Peer.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case IdKindDomain:
		// Begin holds the WSV's write lock for the scope's lifetime, so the
		// genesis ids are read directly rather than through IsGenesis.
		if st.wsv.genesisSet && box.Id.Domain == st.wsv.genesisDomain {
			return Newf(KindAccessDenied, "genesis domain %s cannot be unregistered", box.Id.Domain)
		}
		if _, ok := st.FindDomain(box.Id.Domain); !ok {
			return Newf(KindFind, "domain %s not found", box.Id.Domain)
		}
		for _, aid := range st.AssetIds() {
			if aid.Account.Domain == box.Id.Domain || aid.Definition.Domain == box.Id.Domain {
				st.DeleteAsset(aid)
			}
		}
		for _, aid := range st.AccountIds() {
			if aid.Domain == box.Id.Domain {
				st.DeleteAccount(aid)
			}
		}
		for _, did := range st.AssetDefinitionIds() {
			if did.Domain == box.Id.Domain {
				st.DeleteAssetDefinition(did)
			}
		}
		for _, tid := range st.TriggerIds() {
			if t, ok := st.FindTrigger(tid); ok && t.Domain == box.Id.Domain {
				st.DeleteTrigger(tid)
			}
		}
		st.DeleteDomain(box.Id.Domain)
		return nil
	case IdKindAccount:
		if st.wsv.genesisSet && box.Id.Account == st.wsv.genesisAccount {
			return Newf(KindAccessDenied, "genesis account %s cannot be unregistered", box.Id.Account)
		}
		if _, ok := st.FindAccount(box.Id.Account); !ok {
			return Newf(KindFind, "account %s not found", box.Id.Account)
		}
		for _, aid := range st.AssetIds() {
			if aid.Account == box.Id.Account {
				st.DeleteAsset(aid)
			}
		}
		st.DeleteAccount(box.Id.Account)
		return nil
	case IdKindAssetDefinition:
		if _, ok := st.FindAssetDefinition(box.Id.AssetDefinition); !ok {
			return Newf(KindFind, "asset definition %s not found", box.Id.AssetDefinition)
		}
		for _, aid := range st.AssetIds() {
			if aid.Definition == box.Id.AssetDefinition {
				st.DeleteAsset(aid)
			}
		}
		st.DeleteAssetDefinition(box.Id.AssetDefinition)
		return nil
	case IdKindRole:
		if _, ok := st.FindRole(box.Id.Role); !ok {
			return Newf(KindFind, "role %s not found", box.Id.Role)
		}
		for _, aid := range st.AccountIds() {
			acc, _ := st.FindAccount(aid)
			if _, has := acc.Roles[box.Id.Role]; has {
				delete(acc.Roles, box.Id.Role)
			}
		}
		st.DeleteRole(box.Id.Role)
		return nil
	case IdKindTrigger:
		if _, ok := st.FindTrigger(box.Id.Trigger); !ok {
			return Newf(KindFind, "trigger %s not found", box.Id.Trigger)
		}
		st.DeleteTrigger(box.Id.Trigger)
		return nil
	default:
		return Newf(KindType, "unsupported unregister target kind %d", box.Id.Kind)
	}
}

func applyMint(st *StateTransaction, box *MintBox) error {
	switch box.Kind {
	case MintAssetQuantity:
		def, ok := st.FindAssetDefinition(box.Asset.Definition)
		if !ok {
			return Newf(KindFind, "asset definition %s not found", box.Asset.Definition)
		}
		if def.Mintability == MintNot {
			return Newf(KindMintability, "asset definition %s is not mintable", def.Id)
		}
		if def.Mintability == MintOnce && def.everMinted {
			return Newf(KindMintability, "asset definition %s already minted once", def.Id)
		}
		asset, ok := st.FindAsset(box.Asset)
		if !ok {
			asset = &Asset{Id: box.Asset, Value: NumericValue(ZeroNumeric(def.Scale))}
		}
		sum, err := asset.Value.Numeric.Add(box.Quantity)
		if err != nil {
			return err
		}
		total, err := def.TotalQuantity.Add(box.Quantity)
		if err != nil {
			return err
		}
		asset.Value = NumericValue(sum)
		def.TotalQuantity = total
		def.everMinted = true
		st.PutAsset(asset)
		st.PutAssetDefinition(def)
		st.Emit(Event{Type: "Asset.Minted", Subject: asset.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case MintTriggerRepetitions:
		t, ok := st.FindTrigger(box.Trigger)
		if !ok {
			return Newf(KindFind, "trigger %s not found", box.Trigger)
		}
		if !t.Action.Repeats.Indefinite {
			t.Action.Repeats.Remaining += box.Repetitions
		}
		st.PutTrigger(t)
		return nil
	default:
		return Newf(KindType, "unknown mint kind %d", box.Kind)
	}
}

func applyBurn(st *StateTransaction, box *BurnBox) error {
	switch box.Kind {
	case BurnAssetQuantity:
		def, ok := st.FindAssetDefinition(box.Asset.Definition)
		if !ok {
			return Newf(KindFind, "asset definition %s not found", box.Asset.Definition)
		}
		asset, ok := st.FindAsset(box.Asset)
		if !ok {
			return Newf(KindFind, "asset %s not found", box.Asset)
		}
		remaining, err := asset.Value.Numeric.Sub(box.Quantity)
		if err != nil {
			return err
		}
		total, err := def.TotalQuantity.Sub(box.Quantity)
		if err != nil {
			return err
		}
		asset.Value = NumericValue(remaining)
		def.TotalQuantity = total
		st.PutAsset(asset)
		st.PutAssetDefinition(def)
		st.Emit(Event{Type: "Asset.Burned", Subject: asset.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case BurnTriggerRepetitions:
		t, ok := st.FindTrigger(box.Trigger)
		if !ok {
			return Newf(KindFind, "trigger %s not found", box.Trigger)
		}
		if !t.Action.Repeats.Indefinite {
			if box.Repetitions > t.Action.Repeats.Remaining {
				return Newf(KindMath, "cannot burn %d repetitions, only %d remain", box.Repetitions, t.Action.Repeats.Remaining)
			}
			t.Action.Repeats.Remaining -= box.Repetitions
		}
		st.PutTrigger(t)
		return nil
	default:
		return Newf(KindType, "unknown burn kind %d", box.Kind)
	}
}

func applyTransfer(st *StateTransaction, box *TransferBox) error {
	switch box.Kind {
	case TransferAssetQuantity:
		source, ok := st.FindAsset(box.Asset)
		if !ok {
			return Newf(KindFind, "asset %s not found", box.Asset)
		}
		remaining, err := source.Value.Numeric.Sub(box.Quantity)
		if err != nil {
			return err
		}
		destId := AssetId{Definition: box.Asset.Definition, Account: box.Destination}
		dest, ok := st.FindAsset(destId)
		if !ok {
			dest = &Asset{Id: destId, Value: NumericValue(ZeroNumeric(box.Quantity.Scale))}
		}
		sum, err := dest.Value.Numeric.Add(box.Quantity)
		if err != nil {
			return err
		}
		source.Value = NumericValue(remaining)
		dest.Value = NumericValue(sum)
		st.PutAsset(source)
		st.PutAsset(dest)
		st.Emit(Event{Type: "Asset.Transferred", Subject: box.Asset.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
		return nil
	case TransferDomainOwnership:
		d, ok := st.FindDomain(box.Domain)
		if !ok {
			return Newf(KindFind, "domain %s not found", box.Domain)
		}
		if _, ok := st.FindAccount(box.Destination); !ok {
			return Newf(KindFind, "destination account %s not found", box.Destination)
		}
		d.OwnerId = box.Destination
		st.PutDomain(d)
		return nil
	case TransferAssetDefinitionOwnership:
		def, ok := st.FindAssetDefinition(box.AssetDefinition)
		if !ok {
			return Newf(KindFind, "asset definition %s not found", box.AssetDefinition)
		}
		if _, ok := st.FindAccount(box.Destination); !ok {
			return Newf(KindFind, "destination account %s not found", box.Destination)
		}
		def.Owner = box.Destination
		st.PutAssetDefinition(def)
		return nil
	default:
		return Newf(KindType, "unknown transfer kind %d", box.Kind)
	}
}

func applySetKeyValue(st *StateTransaction, box *SetKeyValueBox, limits Limits) error {
	apply := func(m Metadata) (Metadata, error) {
		if m == nil {
			m = Metadata{}
		}
		m[box.Key] = box.Value
		if err := m.Validate(limits.Metadata); err != nil {
			return nil, err
		}
		return m, nil
	}
	switch box.Target.Kind {
	case IdKindDomain:
		d, ok := st.FindDomain(box.Target.Domain)
		if !ok {
			return Newf(KindFind, "domain %s not found", box.Target.Domain)
		}
		m, err := apply(d.Metadata)
		if err != nil {
			return err
		}
		d.Metadata = m
		st.PutDomain(d)
		return nil
	case IdKindAccount:
		a, ok := st.FindAccount(box.Target.Account)
		if !ok {
			return Newf(KindFind, "account %s not found", box.Target.Account)
		}
		m, err := apply(a.Metadata)
		if err != nil {
			return err
		}
		a.Metadata = m
		st.PutAccount(a)
		return nil
	case IdKindAssetDefinition:
		d, ok := st.FindAssetDefinition(box.Target.AssetDefinition)
		if !ok {
			return Newf(KindFind, "asset definition %s not found", box.Target.AssetDefinition)
		}
		m, err := apply(d.Metadata)
		if err != nil {
			return err
		}
		d.Metadata = m
		st.PutAssetDefinition(d)
		return nil
	case IdKindAsset:
		a, ok := st.FindAsset(box.Target.Asset)
		if !ok {
			return Newf(KindFind, "asset %s not found", box.Target.Asset)
		}
		if a.Value.Type != AssetTypeStore {
			return Newf(KindType, "asset %s is not a Store asset", a.Id)
		}
		m, err := apply(a.Value.Store)
		if err != nil {
			return err
		}
		a.Value.Store = m
		st.PutAsset(a)
		return nil
	default:
		return Newf(KindType, "unsupported set-key-value target kind %d", box.Target.Kind)
	}
}

func applyRemoveKeyValue(st *StateTransaction, box *RemoveKeyValueBox) error {
	switch box.Target.Kind {
	case IdKindDomain:
		d, ok := st.FindDomain(box.Target.Domain)
		if !ok {
			return Newf(KindFind, "domain %s not found", box.Target.Domain)
		}
		delete(d.Metadata, box.Key)
		st.PutDomain(d)
		return nil
	case IdKindAccount:
		a, ok := st.FindAccount(box.Target.Account)
		if !ok {
			return Newf(KindFind, "account %s not found", box.Target.Account)
		}
		delete(a.Metadata, box.Key)
		st.PutAccount(a)
		return nil
	case IdKindAssetDefinition:
		d, ok := st.FindAssetDefinition(box.Target.AssetDefinition)
		if !ok {
			return Newf(KindFind, "asset definition %s not found", box.Target.AssetDefinition)
		}
		delete(d.Metadata, box.Key)
		st.PutAssetDefinition(d)
		return nil
	case IdKindAsset:
		a, ok := st.FindAsset(box.Target.Asset)
		if !ok {
			return Newf(KindFind, "asset %s not found", box.Target.Asset)
		}
		delete(a.Value.Store, box.Key)
		st.PutAsset(a)
		return nil
	default:
		return Newf(KindType, "unsupported remove-key-value target kind %d", box.Target.Kind)
	}
}

func applyGrant(st *StateTransaction, box *GrantBox, schema *PermissionTokenSchema) error {
	acc, ok := st.FindAccount(box.Receiver)
	if !ok {
		return Newf(KindFind, "account %s not found", box.Receiver)
	}
	switch box.Object.Kind {
	case GrantRevokePermissionToken:
		tok := box.Object.PermissionToken
		if schema != nil {
			if err := schema.Validate(tok); err != nil {
				return err
			}
		}
		for _, existing := range acc.Tokens[tok.DefinitionId] {
			if string(existing.Payload) == string(tok.Payload) {
				return Newf(KindRepetition, "account %s already holds token %s", box.Receiver, tok.DefinitionId)
			}
		}
		acc.Tokens[tok.DefinitionId] = append(acc.Tokens[tok.DefinitionId], tok)
	case GrantRevokeRole:
		if _, ok := st.FindRole(box.Object.Role); !ok {
			return Newf(KindFind, "role %s not found", box.Object.Role)
		}
		if _, has := acc.Roles[box.Object.Role]; has {
			return Newf(KindRepetition, "account %s already has role %s", box.Receiver, box.Object.Role)
		}
		acc.Roles[box.Object.Role] = struct{}{}
	default:
		return Newf(KindType, "unknown grant/revoke object kind %d", box.Object.Kind)
	}
	st.PutAccount(acc)
	st.Emit(Event{Type: "PermissionToken.Granted", Subject: box.Receiver.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
	return nil
}

func applyRevoke(st *StateTransaction, box *RevokeBox) error {
	acc, ok := st.FindAccount(box.Receiver)
	if !ok {
		return Newf(KindFind, "account %s not found", box.Receiver)
	}
	switch box.Object.Kind {
	case GrantRevokePermissionToken:
		tok := box.Object.PermissionToken
		toks := acc.Tokens[tok.DefinitionId]
		found := -1
		for i, existing := range toks {
			if string(existing.Payload) == string(tok.Payload) {
				found = i
				break
			}
		}
		if found < 0 {
			return Newf(KindFind, "account %s does not hold token %s", box.Receiver, tok.DefinitionId)
		}
		acc.Tokens[tok.DefinitionId] = append(toks[:found], toks[found+1:]...)
	case GrantRevokeRole:
		if _, has := acc.Roles[box.Object.Role]; !has {
			return Newf(KindFind, "account %s does not have role %s", box.Receiver, box.Object.Role)
		}
		delete(acc.Roles, box.Object.Role)
	default:
		return Newf(KindType, "unknown grant/revoke object kind %d", box.Object.Kind)
	}
	st.PutAccount(acc)
	st.Emit(Event{Type: "PermissionToken.Revoked", Subject: box.Receiver.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
	return nil
}

func applySetParameter(st *StateTransaction, box *SetParameterBox) error {
	if _, ok := st.FindParameter(box.Parameter.Id); !ok {
		return Newf(KindFind, "parameter %s not found", box.Parameter.Id)
	}
	p := box.Parameter
	st.PutParameter(&p)
	return nil
}

func applyNewParameter(st *StateTransaction, box *NewParameterBox) error {
	if _, ok := st.FindParameter(box.Parameter.Id); ok {
		return Newf(KindRepetition, "parameter %s already exists", box.Parameter.Id)
	}
	p := box.Parameter
	st.PutParameter(&p)
	return nil
}

func applyExecuteTrigger(st *StateTransaction, authority AccountId, box *ExecuteTriggerBox) error {
	t, ok := st.FindTrigger(box.Trigger)
	if !ok {
		return Newf(KindFind, "trigger %s not found", box.Trigger)
	}
	if t.Action.Filter.Kind != FilterExecuteTriggerCall {
		return Newf(KindAccessDenied, "trigger %s is not explicitly invocable", box.Trigger)
	}
	return fireTrigger(st, t)
}

// fireTrigger runs a trigger's executable in a fresh sub-scope, merging it
// on success and decrementing its repeat counter either way.
func fireTrigger(st *StateTransaction, t *Trigger) error {
	if t.Action.Repeats.Exhausted() {
		return Newf(KindInvariantViolation, "trigger %s has no repetitions remaining", t.Id)
	}
	sub := st.BeginSub()
	var err error
	if t.Action.Executable.Kind == ExecutableInstructions {
		for _, instr := range t.Action.Executable.Instructions {
			if err = ApplyInstruction(sub, t.Action.Authority, instr, Limits{}); err != nil {
				break
			}
		}
	}
	t.Action.Repeats = t.Action.Repeats.Consume()
	st.PutTrigger(t)
	if err != nil {
		return WrapErr(KindWasmExecution, err)
	}
	st.MergeSub(sub)
	st.Emit(Event{Type: "TriggerCompleted.Success", Subject: t.Id.String(), BlockHeight: st.BlockHeight(), Timestamp: st.BlockTime()})
	return nil
}
