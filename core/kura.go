package core

// kura.go – the append-only block store (component G). Grounded on the
// teacher's WAL in ledger.go (os.OpenFile O_CREATE|O_RDWR|O_APPEND,
// fsync-after-write, replay-on-startup), replacing its newline-delimited
// JSON framing with the length+payload+crc framing spec.md requires so a
// torn trailing write from a crash is detected and truncated rather than
// treated as corruption of the whole segment.

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

type blockIndexEntry struct {
	Height uint64
	Offset int64
	Length uint32
	Hash   Hash
}

// BlockStore is the single append-only log of committed blocks.
type BlockStore struct {
	mu     sync.Mutex
	file   *os.File
	index  []blockIndexEntry
	byHash map[Hash]int
	logger *logrus.Logger
}

// OpenBlockStore opens (creating if necessary) the block log under dir,
// replaying its frames to rebuild the in-memory index. A torn trailing
// frame — a partial write from a crash mid-append — is truncated away
// rather than rejected.
func OpenBlockStore(dir string, logger *logrus.Logger) (*BlockStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, WrapErr(KindStorage, err)
	}
	path := filepath.Join(dir, "blocks.kura")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, WrapErr(KindStorage, err)
	}
	bs := &BlockStore{file: f, byHash: make(map[Hash]int), logger: logger}
	if err := bs.replay(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return bs, nil
}

// replay scans every frame from the start of the file, stopping (and
// truncating the file) at the first frame that is incomplete or whose
// CRC doesn't match.
func (bs *BlockStore) replay() error {
	if _, err := bs.file.Seek(0, io.SeekStart); err != nil {
		return WrapErr(KindStorage, err)
	}
	r := bufio.NewReader(bs.file)
	var offset int64
	for {
		lenBuf := make([]byte, 4)
		n, err := io.ReadFull(r, lenBuf)
		if err == io.EOF {
			break
		}
		if err != nil || n < 4 {
			bs.logger.Warnf("kura: truncating torn frame length at offset %d", offset)
			break
		}
		length := binary.BigEndian.Uint32(lenBuf)
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			bs.logger.Warnf("kura: truncating torn frame payload at offset %d", offset)
			break
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, crcBuf); err != nil {
			bs.logger.Warnf("kura: truncating torn frame crc at offset %d", offset)
			break
		}
		wantCRC := binary.BigEndian.Uint32(crcBuf)
		if crc32.ChecksumIEEE(payload) != wantCRC {
			bs.logger.Warnf("kura: crc mismatch at offset %d, truncating", offset)
			break
		}
		var blk Block
		if err := DecodeWire(payload, &blk); err != nil {
			bs.logger.Warnf("kura: undecodable frame at offset %d, truncating", offset)
			break
		}
		entry := blockIndexEntry{Height: blk.Header.Height, Offset: offset, Length: length, Hash: blk.Hash()}
		bs.index = append(bs.index, entry)
		bs.byHash[entry.Hash] = len(bs.index) - 1
		offset += int64(4 + length + 4)
	}
	if err := bs.file.Truncate(offset); err != nil {
		return WrapErr(KindStorage, err)
	}
	if _, err := bs.file.Seek(offset, io.SeekStart); err != nil {
		return WrapErr(KindStorage, err)
	}
	return nil
}

// Append writes block to the end of the log and fsyncs before returning.
func (bs *BlockStore) Append(block *Block) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if len(bs.index) > 0 {
		last := bs.index[len(bs.index)-1]
		if block.Header.Height != last.Height+1 {
			return Newf(KindInvariantViolation, "block height %d does not follow %d", block.Header.Height, last.Height)
		}
		if block.Header.PrevBlockHash != last.Hash {
			return Newf(KindInvariantViolation, "block %d prev hash does not match stored block %d", block.Header.Height, last.Height)
		}
	} else if block.Header.Height != 1 {
		return Newf(KindInvariantViolation, "first block must be height 1, got %d", block.Header.Height)
	}

	payload := EncodeWire(block)
	offset, err := bs.file.Seek(0, io.SeekEnd)
	if err != nil {
		return WrapErr(KindStorage, err)
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc32.ChecksumIEEE(payload))

	if _, err := bs.file.Write(lenBuf); err != nil {
		return WrapErr(KindStorage, err)
	}
	if _, err := bs.file.Write(payload); err != nil {
		return WrapErr(KindStorage, err)
	}
	if _, err := bs.file.Write(crcBuf); err != nil {
		return WrapErr(KindStorage, err)
	}
	if err := bs.file.Sync(); err != nil {
		return WrapErr(KindStorage, err)
	}

	entry := blockIndexEntry{Height: block.Header.Height, Offset: offset, Length: uint32(len(payload)), Hash: block.Hash()}
	bs.index = append(bs.index, entry)
	bs.byHash[entry.Hash] = len(bs.index) - 1
	return nil
}

func (bs *BlockStore) readAt(entry blockIndexEntry) (*Block, error) {
	payload := make([]byte, entry.Length)
	if _, err := bs.file.ReadAt(payload, entry.Offset+4); err != nil {
		return nil, WrapErr(KindStorage, err)
	}
	var blk Block
	if err := DecodeWire(payload, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

// Get returns the block at height, or a KindFind error if absent.
func (bs *BlockStore) Get(height uint64) (*Block, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if height == 0 || height > uint64(len(bs.index)) {
		return nil, Newf(KindFind, "block at height %d not found", height)
	}
	return bs.readAt(bs.index[height-1])
}

// GetByHash returns the block whose hash is h.
func (bs *BlockStore) GetByHash(h Hash) (*Block, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	idx, ok := bs.byHash[h]
	if !ok {
		return nil, Newf(KindFind, "block with hash %s not found", h)
	}
	return bs.readAt(bs.index[idx])
}

// Range returns blocks [from, to] inclusive, used by block-sync gossip.
func (bs *BlockStore) Range(from, to uint64) ([]*Block, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if from == 0 {
		from = 1
	}
	if to > uint64(len(bs.index)) {
		to = uint64(len(bs.index))
	}
	if from > to {
		return nil, nil
	}
	out := make([]*Block, 0, to-from+1)
	for h := from; h <= to; h++ {
		blk, err := bs.readAt(bs.index[h-1])
		if err != nil {
			return nil, err
		}
		out = append(out, blk)
	}
	return out, nil
}

// Height returns the height of the last appended block, 0 if empty.
func (bs *BlockStore) Height() uint64 {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.index) == 0 {
		return 0
	}
	return bs.index[len(bs.index)-1].Height
}

// LastHash returns the hash of the last appended block.
func (bs *BlockStore) LastHash() Hash {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.index) == 0 {
		return Hash{}
	}
	return bs.index[len(bs.index)-1].Hash
}

func (bs *BlockStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.file.Close()
}
