package core

import "testing"

func keyAt(b byte) PublicKey {
	var pk PublicKey
	pk[0] = b
	return pk
}

func TestTopologyVotingSetSizeIsSupermajority(t *testing.T) {
	peers := []PublicKey{keyAt(1), keyAt(2), keyAt(3), keyAt(4)}
	topo := NewTopology(peers)

	if got, want := topo.MaxFaulty(), 1; got != want {
		t.Fatalf("MaxFaulty() = %d, want %d", got, want)
	}
	if got, want := topo.VotingSetSize(), 3; got != want {
		t.Fatalf("VotingSetSize() = %d, want %d", got, want)
	}
	if got, want := len(topo.Observers(0)), 1; got != want {
		t.Fatalf("len(Observers) = %d, want %d", got, want)
	}
}

func TestTopologyRoleOf(t *testing.T) {
	peers := []PublicKey{keyAt(1), keyAt(2), keyAt(3), keyAt(4)}
	topo := NewTopology(peers)
	vs := topo.VotingSet(0)

	leader, ok := topo.Leader(0)
	if !ok || leader != vs[0] {
		t.Fatalf("Leader() = %v, want %v", leader, vs[0])
	}
	tail, ok := topo.ProxyTail(0)
	if !ok || tail != vs[len(vs)-1] {
		t.Fatalf("ProxyTail() = %v, want %v", tail, vs[len(vs)-1])
	}
	if role := topo.RoleOf(leader, 0); role != RoleLeader {
		t.Fatalf("RoleOf(leader) = %v, want RoleLeader", role)
	}
	if role := topo.RoleOf(tail, 0); role != RoleProxyTail {
		t.Fatalf("RoleOf(tail) = %v, want RoleProxyTail", role)
	}
	for _, obs := range topo.Observers(0) {
		if role := topo.RoleOf(obs, 0); role != RoleObserver {
			t.Fatalf("RoleOf(observer) = %v, want RoleObserver", role)
		}
	}
}

func TestTopologyViewChangeRotatesLeader(t *testing.T) {
	peers := []PublicKey{keyAt(1), keyAt(2), keyAt(3), keyAt(4)}
	topo := NewTopology(peers)

	leader0, _ := topo.Leader(0)
	leader1, _ := topo.Leader(1)
	if leader0 == leader1 {
		t.Fatalf("leader did not rotate across a view change")
	}

	// a full rotation (view == peer count) returns to the original leader.
	leaderFull, _ := topo.Leader(uint64(len(peers)))
	if leaderFull != leader0 {
		t.Fatalf("rotation did not cycle back after a full round, got %v want %v", leaderFull, leader0)
	}
}

func TestTopologyOrderingIsDeterministic(t *testing.T) {
	a := NewTopology([]PublicKey{keyAt(3), keyAt(1), keyAt(2)})
	b := NewTopology([]PublicKey{keyAt(1), keyAt(2), keyAt(3)})

	for view := uint64(0); view < 3; view++ {
		la, _ := a.Leader(view)
		lb, _ := b.Leader(view)
		if la != lb {
			t.Fatalf("topologies built from differently-ordered peer slices disagreed at view %d", view)
		}
	}
}

func TestTopologyEmpty(t *testing.T) {
	topo := NewTopology(nil)
	if _, ok := topo.Leader(0); ok {
		t.Fatalf("empty topology should have no leader")
	}
	if topo.VotingSetSize() != 1 {
		t.Fatalf("empty topology's formal voting set size should still be 2f+1 with f=0")
	}
}
