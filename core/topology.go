package core

// topology.go – Sumeragi's peer-set topology (spec.md §4.F): the 2f+1
// voting set, leader/proxy-tail roles within it, and the observer peers
// beyond it. Recomputed at every block boundary (I7) and rotated by one
// position on every view change.

import (
	"bytes"
	"sort"
)

// Role is a peer's position within the current Topology.
type Role int

const (
	RoleObserver Role = iota
	RoleValidatingPeer
	RoleLeader
	RoleProxyTail
)

// Topology is the canonically-ordered peer set for one height/view pair.
type Topology struct {
	peers []PublicKey // canonical order, rotated by view
}

// NewTopology sorts peers into canonical order (lexicographic by public
// key), independent of WSV insertion order, so every honest node derives
// an identical topology from the same peer set.
func NewTopology(peers []PublicKey) Topology {
	sorted := make([]PublicKey, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })
	return Topology{peers: sorted}
}

// MaxFaulty returns f, the largest number of simultaneous faulty peers the
// topology can tolerate: f = floor((n-1)/3).
func (t Topology) MaxFaulty() int {
	n := len(t.peers)
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}

// VotingSetSize returns 2f+1, the supermajority threshold and the size of
// the voting set (leader + validating peers + proxy tail).
func (t Topology) VotingSetSize() int {
	return 2*t.MaxFaulty() + 1
}

// RequiredVotes is an alias for VotingSetSize, named for call-site clarity
// at vote-tallying points.
func (t Topology) RequiredVotes() int { return t.VotingSetSize() }

// rotated returns the peer set rotated left by view positions, the
// standard Sumeragi view-change remedy: the faulty former leader rotates
// to the tail of the ordering.
func (t Topology) rotated(view uint64) []PublicKey {
	n := len(t.peers)
	if n == 0 {
		return nil
	}
	shift := int(view % uint64(n))
	out := make([]PublicKey, n)
	copy(out, t.peers[shift:])
	copy(out[n-shift:], t.peers[:shift])
	return out
}

// VotingSet returns the 2f+1 peers responsible for this view's block, in
// leader-first order.
func (t Topology) VotingSet(view uint64) []PublicKey {
	peers := t.rotated(view)
	n := t.VotingSetSize()
	if n > len(peers) {
		n = len(peers)
	}
	return peers[:n]
}

// Observers returns the peers outside the voting set: they receive
// committed blocks but never vote.
func (t Topology) Observers(view uint64) []PublicKey {
	peers := t.rotated(view)
	n := t.VotingSetSize()
	if n > len(peers) {
		return nil
	}
	return peers[n:]
}

// Leader returns the voting set's first peer for view.
func (t Topology) Leader(view uint64) (PublicKey, bool) {
	vs := t.VotingSet(view)
	if len(vs) == 0 {
		return PublicKey{}, false
	}
	return vs[0], true
}

// ProxyTail returns the voting set's last peer for view, the peer
// responsible for aggregating signatures and broadcasting commit.
func (t Topology) ProxyTail(view uint64) (PublicKey, bool) {
	vs := t.VotingSet(view)
	if len(vs) == 0 {
		return PublicKey{}, false
	}
	return vs[len(vs)-1], true
}

// RoleOf classifies self within view.
func (t Topology) RoleOf(self PublicKey, view uint64) Role {
	vs := t.VotingSet(view)
	if len(vs) == 0 {
		return RoleObserver
	}
	if vs[0] == self {
		return RoleLeader
	}
	if vs[len(vs)-1] == self {
		return RoleProxyTail
	}
	for _, p := range vs[1 : len(vs)-1] {
		if p == self {
			return RoleValidatingPeer
		}
	}
	return RoleObserver
}

func (t Topology) Len() int { return len(t.peers) }
