package core

// consensus.go – Sumeragi, the BFT consensus engine (component F, spec.md
// §4.F): leader proposes, validating peers and the proxy tail sign, the
// proxy tail commits on 2f+1 signatures, and a stalled round rotates the
// topology by view change. Grounded on the teacher's SynnergyConsensus in
// the original consensus.go: same decoupled networkAdapter/txPool
// interfaces, the same Start(ctx) spawning one goroutine per
// propose/vote/commit/view-change loop subscribed over the message bus,
// and the same mutex-guarded height/view counters — with the PoW/PoS
// hybrid's block-sealing and reward-distribution machinery replaced by
// Sumeragi's topology-rotation and supermajority-signature model.

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	topicProposal   = "sumeragi/proposal"
	topicVote       = "sumeragi/vote"
	topicCommit     = "sumeragi/commit"
	topicViewChange = "sumeragi/view-change"
)

// networkAdapter is the message bus Sumeragi runs over; *Node satisfies
// it directly.
type networkAdapter interface {
	Broadcast(topic string, data []byte) error
	Subscribe(topic string) (<-chan InboundMsg, func(), error)
}

// SumeragiConfig bounds one consensus engine's timing and per-block
// transaction selection.
type SumeragiConfig struct {
	ChainId           string
	Self              PublicKey
	BlockInterval     time.Duration
	ViewTimeout       time.Duration
	MaxTxPerBlock     int
	AcceptLimits      AcceptLimits
	InstructionLimits Limits
}

type proposalMsg struct {
	Block *Block
	View  uint64
}

type voteMsg struct {
	BlockHash Hash
	Height    uint64
	View      uint64
	Signer    PublicKey
	Sig       []byte
}

type commitMsg struct {
	Block      *Block
	Signatures []Signature
}

type viewChangeMsg struct {
	Height uint64
	View   uint64
	Signer PublicKey
	Sig    []byte
}

// Sumeragi is one peer's view of BFT consensus: it proposes blocks when
// leader, signs and forwards votes when a validating peer or proxy tail,
// and applies committed blocks regardless of role.
type Sumeragi struct {
	cfg      SumeragiConfig
	logger   *logrus.Logger
	wsv      *WorldStateView
	store    *BlockStore
	queue    *Queue
	executor *Executor
	net      networkAdapter
	events   *EventBus
	blockSync *BlockSync
	sign     func(data []byte) []byte
	verify   func(pub PublicKey, sig, msg []byte) bool

	mu            sync.Mutex
	view          uint64
	topology      Topology
	votes         map[Hash][]voteMsg
	pendingBlocks map[Hash]*Block
	viewChanges   map[uint64]map[PublicKey]struct{}
	lastCommit    time.Time
}

func NewSumeragi(
	cfg SumeragiConfig,
	logger *logrus.Logger,
	wsv *WorldStateView,
	store *BlockStore,
	queue *Queue,
	executor *Executor,
	net networkAdapter,
	events *EventBus,
	blockSync *BlockSync,
	sign func(data []byte) []byte,
	verify func(pub PublicKey, sig, msg []byte) bool,
) *Sumeragi {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sumeragi{
		cfg:           cfg,
		logger:        logger,
		wsv:           wsv,
		store:         store,
		queue:         queue,
		executor:      executor,
		net:           net,
		events:        events,
		blockSync:     blockSync,
		sign:          sign,
		verify:        verify,
		topology:      NewTopology(peerKeys(wsv.Peers())),
		votes:         make(map[Hash][]voteMsg),
		pendingBlocks: make(map[Hash]*Block),
		viewChanges:   make(map[uint64]map[PublicKey]struct{}),
		lastCommit:    time.Now(),
	}
}

func peerKeys(peers []*Peer) []PublicKey {
	out := make([]PublicKey, len(peers))
	for i, p := range peers {
		out[i] = p.PublicKey
	}
	return out
}

// refreshTopology recomputes the peer-set topology from the current WSV,
// called after every commit since Register/UnregisterPeer instructions
// change the peer set (I7: the change only takes effect at the next
// block boundary, never mid-block).
func (sc *Sumeragi) refreshTopology() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.topology = NewTopology(peerKeys(sc.wsv.Peers()))
}

func (sc *Sumeragi) currentView() uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.view
}

// Start launches the propose, vote, commit and view-change loops. It
// returns once every loop goroutine has been spawned; callers cancel ctx
// to stop them all.
func (sc *Sumeragi) Start(ctx context.Context) error {
	proposals, unsubProposal, err := sc.net.Subscribe(topicProposal)
	if err != nil {
		return err
	}
	votes, unsubVote, err := sc.net.Subscribe(topicVote)
	if err != nil {
		return err
	}
	commits, unsubCommit, err := sc.net.Subscribe(topicCommit)
	if err != nil {
		return err
	}
	viewChanges, unsubVC, err := sc.net.Subscribe(topicViewChange)
	if err != nil {
		return err
	}

	go sc.proposeLoop(ctx)
	go sc.handleProposals(ctx, proposals, unsubProposal)
	go sc.handleVotes(ctx, votes, unsubVote)
	go sc.handleCommits(ctx, commits, unsubCommit)
	go sc.handleViewChanges(ctx, viewChanges, unsubVC)
	go sc.viewChangeWatchdog(ctx)

	sc.logger.Info("consensus: sumeragi started")
	return nil
}

// proposeLoop ticks every BlockInterval and, if this peer is leader for
// the current view, assembles and broadcasts a proposal.
func (sc *Sumeragi) proposeLoop(ctx context.Context) {
	ticker := time.NewTicker(sc.cfg.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view := sc.currentView()
			leader, ok := sc.topology.Leader(view)
			if !ok || leader != sc.cfg.Self {
				continue
			}
			if err := sc.propose(view); err != nil {
				sc.logger.Warnf("consensus: propose failed: %v", err)
			}
		}
	}
}

// validateTransactionForBlock runs the executor's validate_transaction
// entry point and, since queue.go's Submit deliberately skips it (the
// policy can change between submission and commit), enforces the
// authority's current k-of-n signature-check condition against sub's
// live account state (spec.md §4.E step 2: enforced at block-application
// time). Called identically by propose, validateProposal and
// applyAndPersist so every peer derives the same committed/rejected split.
func (sc *Sumeragi) validateTransactionForBlock(sub *StateTransaction, tx *Transaction) error {
	account, ok := sub.FindAccount(tx.Authority)
	if !ok {
		return Newf(KindFind, "authority account %s not found", tx.Authority)
	}
	if !account.CheckCondition.Satisfied(CountValidSignatures(account, tx.Signatures)) {
		return Newf(KindSignatureMismatch, "authority %s requires %d valid signatures", tx.Authority, account.CheckCondition.Quorum)
	}
	return sc.executor.ValidateTransaction(sub, tx.Authority, tx, sc.cfg.InstructionLimits)
}

// propose assembles a block from the pending pool, applies it against a
// fresh StateTransaction to compute its transactions/rejected split and
// the resulting transactions hash, discards that trial application (the
// block isn't committed until 2f+1 signatures land), and broadcasts it.
func (sc *Sumeragi) propose(view uint64) error {
	pending := sc.queue.Snapshot(sc.cfg.MaxTxPerBlock)
	if len(pending) == 0 {
		return nil
	}

	height := sc.wsv.Height() + 1
	prevHash := sc.wsv.LastBlockHash()
	st := sc.wsv.Begin(height, time.Now())
	defer st.Discard()

	var committed []*Transaction
	var rejected []RejectedTransaction
	for _, tx := range pending {
		sub := st.BeginSub()
		if err := sc.validateTransactionForBlock(sub, tx); err != nil {
			rejected = append(rejected, RejectedTransaction{Hash: tx.PayloadHash(), Reason: err.Error()})
			continue
		}
		st.MergeSub(sub)
		st.RecordTxHash(tx.PayloadHash())
		committed = append(committed, tx)
	}
	if len(committed) == 0 {
		return nil
	}

	header := BlockHeader{
		Height:           height,
		PrevBlockHash:    prevHash,
		TransactionsHash: TransactionsHash(committed),
		Timestamp:        time.Now(),
	}
	block := &Block{Header: header, Transactions: committed, RejectedTransactions: rejected}

	if err := sc.net.Broadcast(topicProposal, EncodeWire(proposalMsg{Block: block, View: view})); err != nil {
		return err
	}
	// The leader's own signature is one of the 2f+1 the proxy tail collects.
	hash := block.Hash()
	vote := voteMsg{BlockHash: hash, Height: height, View: view, Signer: sc.cfg.Self, Sig: sc.sign(hash[:])}
	return sc.net.Broadcast(topicVote, EncodeWire(vote))
}

// handleProposals validates an incoming proposal by re-applying it
// against a trial StateTransaction (determinism means any honest peer
// gets the same transactions/rejected split) and, if valid, signs and
// forwards a vote. The proxy tail instead waits for handleVotes to
// gather votes under its own signature.
func (sc *Sumeragi) handleProposals(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var pm proposalMsg
			if err := DecodeWire(msg.Data, &pm); err != nil || pm.Block == nil {
				continue
			}
			role := sc.topology.RoleOf(sc.cfg.Self, pm.View)
			if role != RoleValidatingPeer && role != RoleProxyTail {
				continue
			}
			if err := sc.validateProposal(pm.Block); err != nil {
				sc.logger.Debugf("consensus: rejecting proposal at height %d: %v", pm.Block.Header.Height, err)
				continue
			}
			hash := pm.Block.Hash()
			sig := sc.sign(hash[:])
			vote := voteMsg{BlockHash: hash, Height: pm.Block.Header.Height, View: pm.View, Signer: sc.cfg.Self, Sig: sig}
			if role == RoleProxyTail {
				sc.mu.Lock()
				sc.pendingBlocks[hash] = pm.Block
				sc.mu.Unlock()
				sc.recordVote(vote)
				continue
			}
			if err := sc.net.Broadcast(topicVote, EncodeWire(vote)); err != nil {
				sc.logger.Warnf("consensus: broadcast vote: %v", err)
			}
		}
	}
}

// validateProposal re-runs a proposed block's committed transactions in
// a discarded trial scope, confirming the proposer's transactions hash.
func (sc *Sumeragi) validateProposal(block *Block) error {
	if block.Header.Height != sc.wsv.Height()+1 {
		return Newf(KindConsensus, "proposal height %d does not follow %d", block.Header.Height, sc.wsv.Height())
	}
	if block.Header.PrevBlockHash != sc.wsv.LastBlockHash() {
		return Newf(KindConsensus, "proposal prev hash does not match chain tip")
	}
	st := sc.wsv.Begin(block.Header.Height, block.Header.Timestamp)
	defer st.Discard()
	for _, tx := range block.Transactions {
		sub := st.BeginSub()
		if err := sc.validateTransactionForBlock(sub, tx); err != nil {
			return WrapErr(KindConsensus, err)
		}
		st.MergeSub(sub)
	}
	if TransactionsHash(block.Transactions) != block.Header.TransactionsHash {
		return Newf(KindConsensus, "proposal transactions hash mismatch")
	}
	return nil
}

// handleVotes is the proxy tail's aggregation loop: once a block hash
// reaches the topology's required vote count, it commits and broadcasts
// the commit with the collected signatures.
func (sc *Sumeragi) handleVotes(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var v voteMsg
			if err := DecodeWire(msg.Data, &v); err != nil {
				continue
			}
			if sc.topology.RoleOf(sc.cfg.Self, v.View) != RoleProxyTail {
				continue
			}
			if !sc.verify(v.Signer, v.Sig, v.BlockHash[:]) {
				continue
			}
			sc.recordVote(v)
		}
	}
}

func (sc *Sumeragi) recordVote(v voteMsg) {
	sc.mu.Lock()
	sc.votes[v.BlockHash] = append(sc.votes[v.BlockHash], v)
	count := len(sc.votes[v.BlockHash])
	required := sc.topology.RequiredVotes()
	sc.mu.Unlock()

	if count < required {
		return
	}
	sc.commitByHash(v.BlockHash)
}

// commitByHash looks up the proposal (held in pendingBlocks keyed by hash;
// the proxy tail stores it there in handleProposals when it validates and
// votes for it itself) and, once quorum is reached, persists and broadcasts it.
// The block payload itself travels inside the proposal broadcast, so the
// proxy tail re-requests it here from its own validated copy.
func (sc *Sumeragi) commitByHash(hash Hash) {
	sc.mu.Lock()
	votes := sc.votes[hash]
	block, ok := sc.pendingBlocks[hash]
	delete(sc.votes, hash)
	delete(sc.pendingBlocks, hash)
	sc.mu.Unlock()
	if !ok {
		return
	}

	sigs := make([]Signature, len(votes))
	for i, v := range votes {
		sigs[i] = Signature{PublicKey: v.Signer, Bytes: v.Sig}
	}

	if err := sc.applyAndPersist(block); err != nil {
		sc.logger.Warnf("consensus: commit block %d failed: %v", block.Header.Height, err)
		return
	}
	if err := sc.net.Broadcast(topicCommit, EncodeWire(commitMsg{Block: block, Signatures: sigs})); err != nil {
		sc.logger.Warnf("consensus: broadcast commit: %v", err)
	}
}

// handleCommits applies a committed block to every peer's state,
// including observers who never voted. Re-applying is idempotent with
// respect to the proxy tail's own commit: a height already applied is
// skipped.
func (sc *Sumeragi) handleCommits(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var cm commitMsg
			if err := DecodeWire(msg.Data, &cm); err != nil || cm.Block == nil {
				continue
			}
			if cm.Block.Header.Height != sc.wsv.Height()+1 {
				continue
			}
			if err := sc.applyAndPersist(cm.Block); err != nil {
				sc.logger.Warnf("consensus: apply committed block %d failed: %v", cm.Block.Header.Height, err)
			}
		}
	}
}

// ApplyExternal applies a block obtained out-of-band from the normal
// proposal/commit flow (spec.md §4.H: a catch-up peer re-validates and
// applies synced blocks directly, bypassing proposal). Callers must only
// pass blocks whose signature set already met the BFT threshold.
func (sc *Sumeragi) ApplyExternal(block *Block) error {
	if block.Header.Height != sc.wsv.Height()+1 {
		return Newf(KindConsensus, "external block height %d does not follow current height %d", block.Header.Height, sc.wsv.Height())
	}
	return sc.applyAndPersist(block)
}

// applyAndPersist re-applies block's transactions against the live WSV,
// commits the StateTransaction, appends the block to the kura store and
// drops its transactions from the pending pool.
func (sc *Sumeragi) applyAndPersist(block *Block) error {
	st := sc.wsv.Begin(block.Header.Height, block.Header.Timestamp)
	for _, tx := range block.Transactions {
		sub := st.BeginSub()
		if err := sc.validateTransactionForBlock(sub, tx); err != nil {
			st.Discard()
			return WrapErr(KindConsensus, err)
		}
		st.MergeSub(sub)
		st.RecordTxHash(tx.PayloadHash())
	}
	st.SetBlockHash(block.Hash())
	events := st.Commit()

	if err := sc.store.Append(block); err != nil {
		return err
	}
	if sc.events != nil {
		sc.events.PublishAll(events)
		sc.events.Publish(Event{Type: EventKindPipelineStatus, Subject: block.Hash().String(), BlockHeight: block.Header.Height, Timestamp: block.Header.Timestamp})
	}
	if sc.blockSync != nil {
		if err := sc.blockSync.Announce(block); err != nil {
			sc.logger.Warnf("consensus: announce block %d: %v", block.Header.Height, err)
		}
	}

	hashes := make([]Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		hashes[i] = tx.PayloadHash()
	}
	sc.queue.Remove(hashes)

	sc.mu.Lock()
	sc.lastCommit = time.Now()
	sc.mu.Unlock()
	sc.refreshTopology()
	return nil
}

// viewChangeWatchdog broadcasts a view-change vote when no block has
// committed within ViewTimeout, the Sumeragi remedy for a silent or
// faulty leader/proxy-tail.
func (sc *Sumeragi) viewChangeWatchdog(ctx context.Context) {
	ticker := time.NewTicker(sc.cfg.ViewTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.mu.Lock()
			stalled := time.Since(sc.lastCommit) > sc.cfg.ViewTimeout
			view := sc.view
			sc.mu.Unlock()
			if !stalled {
				continue
			}
			height := sc.wsv.Height() + 1
			sig := sc.sign(viewChangePayload(height, view+1))
			vc := viewChangeMsg{Height: height, View: view + 1, Signer: sc.cfg.Self, Sig: sig}
			if err := sc.net.Broadcast(topicViewChange, EncodeWire(vc)); err != nil {
				sc.logger.Warnf("consensus: broadcast view-change: %v", err)
			}
		}
	}
}

func viewChangePayload(height, view uint64) []byte {
	h := HashBytes(EncodeWire(struct {
		Height uint64
		View   uint64
	}{height, view}))
	return h[:]
}

// handleViewChanges tallies view-change votes and, once 2f+1 peers have
// requested the same view, rotates the topology to it.
func (sc *Sumeragi) handleViewChanges(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var vc viewChangeMsg
			if err := DecodeWire(msg.Data, &vc); err != nil {
				continue
			}
			if vc.Height != sc.wsv.Height()+1 {
				continue
			}
			if !sc.verify(vc.Signer, vc.Sig, viewChangePayload(vc.Height, vc.View)) {
				continue
			}
			sc.mu.Lock()
			voters, ok := sc.viewChanges[vc.View]
			if !ok {
				voters = make(map[PublicKey]struct{})
				sc.viewChanges[vc.View] = voters
			}
			voters[vc.Signer] = struct{}{}
			required := sc.topology.RequiredVotes()
			advance := len(voters) >= required && vc.View > sc.view
			if advance {
				sc.view = vc.View
				sc.lastCommit = time.Now()
				delete(sc.viewChanges, vc.View)
			}
			sc.mu.Unlock()
			if advance {
				sc.logger.Infof("consensus: view changed to %d", vc.View)
			}
		}
	}
}
