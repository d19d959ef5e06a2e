package core

// sandbox.go – tracks currently-running executor invocations, exposed
// through Executor.Sandboxes; the gateway does not read it and exports no
// in-flight-executions metric. Grounded on the teacher's global sandbox
// registry in vm_sandbox_management.go (RWMutex-guarded map keyed by
// contract address, Start/Stop/Status/List), generalised from per-
// contract memory/CPU limits to per-call fuel budgets keyed by the
// content hash of the call's payload.

import (
	"sync"
	"time"
)

// SandboxInfo is a snapshot of one in-flight executor call; Stop removes
// a call's entry, so finished calls are not retained.
type SandboxInfo struct {
	CallId     Hash
	EntryPoint string
	FuelLimit  uint64
	Started    time.Time
	Active     bool
}

// SandboxTracker is a process-wide registry of executor calls, safe for
// concurrent use from multiple block-application and query goroutines.
type SandboxTracker struct {
	mu     sync.RWMutex
	active map[Hash]*SandboxInfo
}

func NewSandboxTracker() *SandboxTracker {
	return &SandboxTracker{active: make(map[Hash]*SandboxInfo)}
}

func (t *SandboxTracker) Start(callId Hash, entryPoint string, fuelLimit uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[callId] = &SandboxInfo{CallId: callId, EntryPoint: entryPoint, FuelLimit: fuelLimit, Started: time.Now(), Active: true}
}

func (t *SandboxTracker) Stop(callId Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, callId)
}

func (t *SandboxTracker) Status(callId Hash) (SandboxInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sb, ok := t.active[callId]
	if !ok {
		return SandboxInfo{}, false
	}
	return *sb, true
}

// List returns every currently-active executor call.
func (t *SandboxTracker) List() []SandboxInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SandboxInfo, 0, len(t.active))
	for _, sb := range t.active {
		out = append(out, *sb)
	}
	return out
}

// Len reports how many executor calls are currently in flight.
func (t *SandboxTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}
