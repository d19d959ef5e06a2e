package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLimits() Limits {
	return Limits{
		Ident:    IdentLengthLimits{Min: 1, Max: 128},
		Metadata: MetadataLimits{Capacity: 1024, MaxEntryBytes: 4096},
	}
}

func testGenesisAuthority() AccountId {
	return AccountId{Signatory: keyAt(1), Domain: DomainId{Name: "genesis"}}
}

func testGenesisBlock(authority AccountId) *RawGenesisBlock {
	domain := DomainId{Name: "wonderland"}
	return &RawGenesisBlock{
		Transactions: [][]Instruction{
			{
				{
					Tag: TagRegister,
					Register: &RegisterBox{
						Object: RegistrableBox{
							Kind:   RegistrableDomain,
							Domain: &Domain{Id: domain, OwnerId: authority},
						},
					},
				},
			},
		},
	}
}

func TestApplyGenesisAppendsBlockOne(t *testing.T) {
	logger := testLogger()
	wsv := NewWorldStateView(logger)
	store, err := OpenBlockStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	authority := testGenesisAuthority()
	genesis := testGenesisBlock(authority)

	if err := ApplyGenesis(wsv, store, authority, genesis, testLimits(), time.Now()); err != nil {
		t.Fatalf("ApplyGenesis: %v", err)
	}
	if wsv.Height() != 1 {
		t.Fatalf("wsv.Height() = %d, want 1", wsv.Height())
	}
	if store.Height() != 1 {
		t.Fatalf("store.Height() = %d, want 1", store.Height())
	}
	if _, ok := wsv.FindDomain(DomainId{Name: "wonderland"}); !ok {
		t.Fatalf("genesis-registered domain not found in world state")
	}
	if !wsv.IsGenesis(authority.Domain) {
		t.Fatalf("genesis domain not marked as genesis")
	}
}

func TestApplyGenesisRejectsNonEmptyWSV(t *testing.T) {
	logger := testLogger()
	wsv := NewWorldStateView(logger)
	store, err := OpenBlockStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	authority := testGenesisAuthority()
	genesis := testGenesisBlock(authority)
	if err := ApplyGenesis(wsv, store, authority, genesis, testLimits(), time.Now()); err != nil {
		t.Fatalf("ApplyGenesis: %v", err)
	}
	if err := ApplyGenesis(wsv, store, authority, genesis, testLimits(), time.Now()); err == nil {
		t.Fatalf("expected a second ApplyGenesis against a non-empty world state to fail")
	}
}

func TestRestoreFromStoreRebuildsWorldState(t *testing.T) {
	logger := testLogger()
	dir := t.TempDir()
	authority := testGenesisAuthority()
	genesis := testGenesisBlock(authority)
	limits := testLimits()

	// first start: apply genesis and persist it.
	store, err := OpenBlockStore(dir, logger)
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	wsv := NewWorldStateView(logger)
	if err := ApplyGenesis(wsv, store, authority, genesis, limits, time.Now()); err != nil {
		t.Fatalf("ApplyGenesis: %v", err)
	}

	// restart: a fresh store handle and an empty world state view, rebuilt
	// from the block log rather than re-applying genesis.
	store2, err := OpenBlockStore(dir, logger)
	if err != nil {
		t.Fatalf("reopen OpenBlockStore: %v", err)
	}
	if store2.Height() != 1 {
		t.Fatalf("reopened store height = %d, want 1", store2.Height())
	}
	wsv2 := NewWorldStateView(logger)
	schema := NewPermissionTokenSchema()
	executor := NewExecutor(schema, 10_000_000, logger)

	if err := RestoreFromStore(wsv2, store2, executor, authority, genesis, limits); err != nil {
		t.Fatalf("RestoreFromStore: %v", err)
	}
	if wsv2.Height() != 1 {
		t.Fatalf("restored wsv.Height() = %d, want 1", wsv2.Height())
	}
	if _, ok := wsv2.FindDomain(DomainId{Name: "wonderland"}); !ok {
		t.Fatalf("restored world state is missing the genesis-registered domain")
	}
}

func TestRestoreFromStoreNoopOnEmptyStore(t *testing.T) {
	logger := testLogger()
	store, err := OpenBlockStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	wsv := NewWorldStateView(logger)
	schema := NewPermissionTokenSchema()
	executor := NewExecutor(schema, 10_000_000, logger)

	if err := RestoreFromStore(wsv, store, executor, testGenesisAuthority(), nil, testLimits()); err != nil {
		t.Fatalf("RestoreFromStore on an empty store should be a no-op, got error: %v", err)
	}
	if wsv.Height() != 0 {
		t.Fatalf("wsv.Height() = %d, want 0 after a no-op restore", wsv.Height())
	}
}

func TestRestoreFromStoreRejectsMissingGenesisFile(t *testing.T) {
	logger := testLogger()
	dir := t.TempDir()
	authority := testGenesisAuthority()
	genesis := testGenesisBlock(authority)
	limits := testLimits()

	store, err := OpenBlockStore(dir, logger)
	if err != nil {
		t.Fatalf("OpenBlockStore: %v", err)
	}
	wsv := NewWorldStateView(logger)
	if err := ApplyGenesis(wsv, store, authority, genesis, limits, time.Now()); err != nil {
		t.Fatalf("ApplyGenesis: %v", err)
	}

	store2, err := OpenBlockStore(dir, logger)
	if err != nil {
		t.Fatalf("reopen OpenBlockStore: %v", err)
	}
	wsv2 := NewWorldStateView(logger)
	schema := NewPermissionTokenSchema()
	executor := NewExecutor(schema, 10_000_000, logger)

	if err := RestoreFromStore(wsv2, store2, executor, authority, nil, limits); err == nil {
		t.Fatalf("expected RestoreFromStore to fail when no genesis file is provided for a non-empty store")
	}
}
