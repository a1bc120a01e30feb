package anchor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// ChainClient is a single-node hash-chained ledger persisted in LevelDB.
// Each submitted transaction is sealed into its own block. A block is final
// once confirmations further blocks sit on top of it.
type ChainClient struct {
	db            *leveldb.DB
	mu            sync.Mutex
	confirmations uint64
	clock         func() time.Time
}

// Block is one sealed ledger entry.
type Block struct {
	Height    uint64      `json:"height"`
	PrevHash  string      `json:"prev_hash"`
	Timestamp time.Time   `json:"timestamp"`
	TxRef     string      `json:"tx_ref"`
	Tx        Transaction `json:"tx"`
	Hash      string      `json:"hash"`
}

const (
	keyHeight   = "height_latest"
	genesisHash = "genesis"
)

// OpenChainClient opens or creates the LevelDB ledger at path.
func OpenChainClient(path string, confirmations uint64) (*ChainClient, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("anchor: open chain db: %w", err)
	}
	return &ChainClient{db: db, confirmations: confirmations, clock: time.Now}, nil
}

// WithClock overrides the block timestamp source.
func (c *ChainClient) WithClock(clock func() time.Time) *ChainClient {
	c.clock = clock
	return c
}

// Close releases the database.
func (c *ChainClient) Close() error {
	return c.db.Close()
}

func (c *ChainClient) Submit(ctx context.Context, tx Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := tx.VerifySignature(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	ref, err := tx.Ref()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ok, err := c.db.Has([]byte("tx_"+ref), nil); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	} else if ok {
		return ref, nil
	}

	height, err := c.latestHeight()
	if err != nil {
		return "", err
	}
	prevHash := genesisHash
	if height > 0 {
		prev, err := c.block(height)
		if err != nil {
			return "", err
		}
		prevHash = prev.Hash
	}

	b := Block{
		Height:    height + 1,
		PrevHash:  prevHash,
		Timestamp: c.clock().UTC(),
		TxRef:     ref,
		Tx:        tx,
	}
	b.Hash = blockHash(b)

	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("anchor: marshal block: %w", err)
	}
	h := strconv.FormatUint(b.Height, 10)

	batch := new(leveldb.Batch)
	batch.Put([]byte("block_"+h), data)
	batch.Put([]byte("tx_"+ref), []byte(h))
	batch.Put([]byte(keyHeight), []byte(h))
	if err := c.db.Write(batch, nil); err != nil {
		return "", fmt.Errorf("%w: write block: %v", ErrLedgerUnavailable, err)
	}
	return ref, nil
}

func (c *ChainClient) Lookup(ctx context.Context, ref string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.db.Get([]byte("tx_"+ref), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Receipt{}, fmt.Errorf("%w: %s", ErrTxNotFound, ref)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	height, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return Receipt{}, fmt.Errorf("anchor: corrupt tx index for %s: %w", ref, err)
	}
	b, err := c.block(height)
	if err != nil {
		return Receipt{}, err
	}
	latest, err := c.latestHeight()
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Ref:         ref,
		Transaction: b.Tx,
		Height:      b.Height,
		Final:       latest-b.Height >= c.confirmations,
		RecordedAt:  b.Timestamp,
	}, nil
}

func (c *ChainClient) Ping(context.Context) error {
	if _, err := c.db.GetProperty("leveldb.stats"); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// VerifyChain walks every block and checks hashes and links.
func (c *ChainClient) VerifyChain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	latest, err := c.latestHeight()
	if err != nil {
		return err
	}
	prev := genesisHash
	for h := uint64(1); h <= latest; h++ {
		b, err := c.block(h)
		if err != nil {
			return err
		}
		if b.PrevHash != prev {
			return fmt.Errorf("anchor: chain broken at height %d: prev hash mismatch", h)
		}
		if blockHash(b) != b.Hash {
			return fmt.Errorf("anchor: chain broken at height %d: block hash mismatch", h)
		}
		prev = b.Hash
	}
	return nil
}

func (c *ChainClient) latestHeight() (uint64, error) {
	raw, err := c.db.Get([]byte(keyHeight), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

func (c *ChainClient) block(height uint64) (Block, error) {
	raw, err := c.db.Get([]byte("block_"+strconv.FormatUint(height, 10)), nil)
	if err != nil {
		return Block{}, fmt.Errorf("%w: read block %d: %v", ErrLedgerUnavailable, height, err)
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return Block{}, fmt.Errorf("anchor: decode block %d: %w", height, err)
	}
	return b, nil
}

func blockHash(b Block) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s",
		b.Height, b.PrevHash, b.Timestamp.Format(time.RFC3339Nano), b.TxRef, b.Tx.Signature)
	return hex.EncodeToString(h.Sum(nil))
}
