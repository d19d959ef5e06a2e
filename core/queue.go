package core

// queue.go – the transaction admission pipeline (component E). Grounded
// on the teacher's TxPool mutex-guarded slice+map in txpool_addtx.go /
// txpool_snapshot.go, generalised from "append with minimal validation"
// into the full accept pipeline spec.md §4.E describes: stateless checks,
// signature verification, per-authority rate limiting, dedup against both
// the pool and committed history, and a bounded capacity with eviction.

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// QueueConfig bounds the pool and the admission pipeline's checks.
type QueueConfig struct {
	Capacity     int
	ChainId      string
	AcceptLimits AcceptLimits
	RatePerSec   float64
	RateBurst    int
}

// Queue is the pending-transaction pool transactions pass through between
// client submission and block proposal.
type Queue struct {
	mu      sync.RWMutex
	cfg     QueueConfig
	lookup  map[Hash]*Transaction
	order   []Hash
	wsv     *WorldStateView
	verify  func(pub PublicKey, sig, msg []byte) bool
	limiters map[AccountId]*rate.Limiter
}

func NewQueue(cfg QueueConfig, wsv *WorldStateView, verify func(pub PublicKey, sig, msg []byte) bool) *Queue {
	return &Queue{
		cfg:      cfg,
		lookup:   make(map[Hash]*Transaction),
		wsv:      wsv,
		verify:   verify,
		limiters: make(map[AccountId]*rate.Limiter),
	}
}

func (q *Queue) limiterFor(authority AccountId) *rate.Limiter {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.limiters[authority]
	if !ok {
		l = rate.NewLimiter(rate.Limit(q.cfg.RatePerSec), q.cfg.RateBurst)
		q.limiters[authority] = l
	}
	return l
}

// Submit runs a transaction through the full admission pipeline and, on
// success, adds it to the pool.
func (q *Queue) Submit(tx *Transaction, now time.Time) error {
	if err := Accept(tx, q.cfg.ChainId, now, q.cfg.AcceptLimits); err != nil {
		return err
	}
	if err := VerifySignatures(tx, q.verify); err != nil {
		return err
	}
	if _, ok := q.wsv.FindAccount(tx.Authority); !ok {
		return Newf(KindFind, "authority account %s not found", tx.Authority)
	}
	// The authority's k-of-n signature-check condition is deliberately not
	// enforced here: the policy can change between submission and commit,
	// so it is only meaningful against the account's state at block
	// application time (see applyAndPersist in consensus.go).
	if !q.limiterFor(tx.Authority).Allow() {
		return Newf(KindTransactionLimitExceeded, "authority %s exceeded submission rate", tx.Authority)
	}
	h := tx.PayloadHash()
	if q.wsv.CommittedTxHash(h) {
		return Newf(KindRepetition, "transaction %s already committed", h)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.lookup[h]; exists {
		return Newf(KindRepetition, "transaction %s already pending", h)
	}
	if q.cfg.Capacity > 0 && len(q.order) >= q.cfg.Capacity {
		q.evictOldestLocked()
	}
	q.lookup[h] = tx
	q.order = append(q.order, h)
	return nil
}

// evictOldestLocked drops the longest-pending transaction to make room,
// caller must hold q.mu.
func (q *Queue) evictOldestLocked() {
	if len(q.order) == 0 {
		return
	}
	oldest := q.order[0]
	q.order = q.order[1:]
	delete(q.lookup, oldest)
}

// Snapshot returns, in FIFO order, up to limit pending transactions for
// block proposal. limit <= 0 returns every pending transaction.
func (q *Queue) Snapshot(limit int) []*Transaction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := len(q.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Transaction, 0, n)
	for _, h := range q.order[:n] {
		out = append(out, q.lookup[h])
	}
	return out
}

// Remove drops committed or rejected transactions from the pool after a
// block has been applied.
func (q *Queue) Remove(hashes []Hash) {
	if len(hashes) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	drop := make(map[Hash]struct{}, len(hashes))
	for _, h := range hashes {
		drop[h] = struct{}{}
		delete(q.lookup, h)
	}
	kept := q.order[:0:0]
	for _, h := range q.order {
		if _, gone := drop[h]; !gone {
			kept = append(kept, h)
		}
	}
	q.order = kept
}

// EvictExpired drops every pending transaction whose TTL has elapsed.
func (q *Queue) EvictExpired(now time.Time) []Hash {
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired []Hash
	kept := q.order[:0:0]
	for _, h := range q.order {
		tx := q.lookup[h]
		if tx.Expired(now) {
			expired = append(expired, h)
			delete(q.lookup, h)
			continue
		}
		kept = append(kept, h)
	}
	q.order = kept
	return expired
}

// Len returns the current pending transaction count.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}
