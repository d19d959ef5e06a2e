package core

// blocksync.go – block-sync gossip (component H, spec.md §4.H): announces
// newly committed blocks by inventory, serves on-demand single-block and
// range requests, and drives startup catch-up against the rest of the
// network. Grounded on the teacher's Replicator in replication.go — same
// inv/getdata/block/getrange/rangeblocks message vocabulary and the same
// gossip-then-serve shape — adapted from direct per-peer streams
// (PeerManagement.SendAsync) to topic broadcast over Node, since gossipsub
// has no point-to-point send; requests and responses are instead
// dedicated topics every peer subscribes to and filters locally.

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	topicBlockInv  = "blocksync/inv"
	topicBlockGet  = "blocksync/getdata"
	topicBlockData = "blocksync/block"
	topicRangeGet  = "blocksync/getrange"
	topicRangeData = "blocksync/range"
)

type invMsg struct {
	Hashes []Hash
}

type getDataMsg struct {
	Hash Hash
}

type blockMsg struct {
	Block *Block
}

type getRangeMsg struct {
	Start uint64
	End   uint64
	ReqId Hash
}

type rangeBlocksMsg struct {
	ReqId  Hash
	Blocks []*Block
}

// BlockSyncConfig bounds one sync session.
type BlockSyncConfig struct {
	SyncBatchSize  uint64
	RequestTimeout time.Duration
}

// BlockSync announces and serves committed blocks and catches a newly
// joined or restarted peer up to the network's height.
type BlockSync struct {
	cfg    BlockSyncConfig
	logger *logrus.Logger
	store  *BlockStore
	net    networkAdapter

	mu           sync.Mutex
	rangeWaiters map[Hash]chan []*Block
	blockWaiters map[Hash]chan *Block
}

func NewBlockSync(cfg BlockSyncConfig, logger *logrus.Logger, store *BlockStore, net networkAdapter) *BlockSync {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BlockSync{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		net:          net,
		rangeWaiters: make(map[Hash]chan []*Block),
		blockWaiters: make(map[Hash]chan *Block),
	}
}

// Announce gossips a newly committed block's hash, letting peers missing
// it request the full payload.
func (bs *BlockSync) Announce(block *Block) error {
	return bs.net.Broadcast(topicBlockInv, EncodeWire(invMsg{Hashes: []Hash{block.Hash()}}))
}

// Start subscribes to every block-sync topic and serves requests until
// ctx is cancelled.
func (bs *BlockSync) Start(ctx context.Context) error {
	inv, unsubInv, err := bs.net.Subscribe(topicBlockInv)
	if err != nil {
		return err
	}
	getData, unsubGet, err := bs.net.Subscribe(topicBlockGet)
	if err != nil {
		return err
	}
	data, unsubData, err := bs.net.Subscribe(topicBlockData)
	if err != nil {
		return err
	}
	getRange, unsubGetRange, err := bs.net.Subscribe(topicRangeGet)
	if err != nil {
		return err
	}
	rangeData, unsubRangeData, err := bs.net.Subscribe(topicRangeData)
	if err != nil {
		return err
	}

	go bs.handleInv(ctx, inv, unsubInv)
	go bs.handleGetData(ctx, getData, unsubGet)
	go bs.handleBlockData(ctx, data, unsubData)
	go bs.handleGetRange(ctx, getRange, unsubGetRange)
	go bs.handleRangeData(ctx, rangeData, unsubRangeData)
	return nil
}

func (bs *BlockSync) handleInv(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var m invMsg
			if err := DecodeWire(msg.Data, &m); err != nil {
				continue
			}
			for _, h := range m.Hashes {
				if _, err := bs.store.GetByHash(h); err == nil {
					continue
				}
				if err := bs.net.Broadcast(topicBlockGet, EncodeWire(getDataMsg{Hash: h})); err != nil {
					bs.logger.Warnf("blocksync: request missing %s: %v", h, err)
				}
			}
		}
	}
}

func (bs *BlockSync) handleGetData(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var req getDataMsg
			if err := DecodeWire(msg.Data, &req); err != nil {
				continue
			}
			blk, err := bs.store.GetByHash(req.Hash)
			if err != nil {
				continue
			}
			if err := bs.net.Broadcast(topicBlockData, EncodeWire(blockMsg{Block: blk})); err != nil {
				bs.logger.Warnf("blocksync: serve block %s: %v", req.Hash, err)
			}
		}
	}
}

func (bs *BlockSync) handleBlockData(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var m blockMsg
			if err := DecodeWire(msg.Data, &m); err != nil || m.Block == nil {
				continue
			}
			hash := m.Block.Hash()
			bs.mu.Lock()
			ch, ok := bs.blockWaiters[hash]
			bs.mu.Unlock()
			if ok {
				select {
				case ch <- m.Block:
				default:
				}
			}
		}
	}
}

func (bs *BlockSync) handleGetRange(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var req getRangeMsg
			if err := DecodeWire(msg.Data, &req); err != nil {
				continue
			}
			blocks, err := bs.store.Range(req.Start, req.End)
			if err != nil || len(blocks) == 0 {
				continue
			}
			if err := bs.net.Broadcast(topicRangeData, EncodeWire(rangeBlocksMsg{ReqId: req.ReqId, Blocks: blocks})); err != nil {
				bs.logger.Warnf("blocksync: serve range: %v", err)
			}
		}
	}
}

func (bs *BlockSync) handleRangeData(ctx context.Context, in <-chan InboundMsg, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var m rangeBlocksMsg
			if err := DecodeWire(msg.Data, &m); err != nil {
				continue
			}
			bs.mu.Lock()
			ch, ok := bs.rangeWaiters[m.ReqId]
			bs.mu.Unlock()
			if ok {
				select {
				case ch <- m.Blocks:
				default:
				}
			}
		}
	}
}

// RequestMissing broadcasts a getdata request for h and waits up to
// RequestTimeout for a reply.
func (bs *BlockSync) RequestMissing(ctx context.Context, h Hash) (*Block, error) {
	ch := make(chan *Block, 1)
	bs.mu.Lock()
	bs.blockWaiters[h] = ch
	bs.mu.Unlock()
	defer func() {
		bs.mu.Lock()
		delete(bs.blockWaiters, h)
		bs.mu.Unlock()
	}()

	if err := bs.net.Broadcast(topicBlockGet, EncodeWire(getDataMsg{Hash: h})); err != nil {
		return nil, err
	}
	timeout := bs.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case blk := <-ch:
		return blk, nil
	case <-tctx.Done():
		return nil, Newf(KindConsensus, "block %s not received before timeout", h)
	}
}

// Synchronize fetches blocks in SyncBatchSize-sized windows starting from
// the store's current height until a request returns nothing new,
// applying each via apply before moving to the next window.
func (bs *BlockSync) Synchronize(ctx context.Context, apply func(*Block) error) error {
	start := bs.store.Height() + 1
	for {
		end := start + bs.cfg.SyncBatchSize - 1
		reqId := HashBytes(EncodeWire(getRangeMsg{Start: start, End: end}))
		ch := make(chan []*Block, 1)
		bs.mu.Lock()
		bs.rangeWaiters[reqId] = ch
		bs.mu.Unlock()
		if err := bs.net.Broadcast(topicRangeGet, EncodeWire(getRangeMsg{Start: start, End: end, ReqId: reqId})); err != nil {
			bs.mu.Lock()
			delete(bs.rangeWaiters, reqId)
			bs.mu.Unlock()
			return err
		}

		timeout := bs.cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		tctx, cancel := context.WithTimeout(ctx, timeout)
		var blocks []*Block
		select {
		case blocks = <-ch:
		case <-tctx.Done():
		}
		cancel()
		bs.mu.Lock()
		delete(bs.rangeWaiters, reqId)
		bs.mu.Unlock()

		if len(blocks) == 0 {
			return nil
		}
		for _, blk := range blocks {
			if err := apply(blk); err != nil {
				bs.logger.Warnf("blocksync: apply synced block %d: %v", blk.Header.Height, err)
				return err
			}
		}
		start += uint64(len(blocks))
	}
}
