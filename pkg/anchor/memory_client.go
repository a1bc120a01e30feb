package anchor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryClient is a deterministic in-process ledger for tests and demo deployments.
// A transaction becomes final after confirmAfter lookups.
type MemoryClient struct {
	mu           sync.Mutex
	txs          map[string]*memoryTx
	height       uint64
	available    bool
	confirmAfter int
	submits      int
	clock        func() time.Time
}

type memoryTx struct {
	tx       Transaction
	height   uint64
	lookups  int
	recorded time.Time
}

// NewMemoryClient returns a reachable ledger that finalizes immediately.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		txs:       make(map[string]*memoryTx),
		available: true,
		clock:     time.Now,
	}
}

// SetAvailable simulates the ledger going down or coming back.
func (c *MemoryClient) SetAvailable(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = ok
}

// SetConfirmAfter delays finality by n lookups per transaction.
func (c *MemoryClient) SetConfirmAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmAfter = n
}

// Tamper rewrites the on-chain content hash of ref.
func (c *MemoryClient) Tamper(ref, contentHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.txs[ref]; ok {
		m.tx.Payload.ContentHash = contentHash
	}
}

// Submits counts accepted Submit calls, including idempotent repeats.
func (c *MemoryClient) Submits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits
}

func (c *MemoryClient) Submit(ctx context.Context, tx Transaction) (string, error) {
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
	if !c.available {
		return "", fmt.Errorf("%w: memory ledger offline", ErrLedgerUnavailable)
	}
	c.submits++
	if _, ok := c.txs[ref]; !ok {
		c.height++
		c.txs[ref] = &memoryTx{tx: tx, height: c.height, recorded: c.clock()}
	}
	return ref, nil
}

func (c *MemoryClient) Lookup(ctx context.Context, ref string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.available {
		return Receipt{}, fmt.Errorf("%w: memory ledger offline", ErrLedgerUnavailable)
	}
	m, ok := c.txs[ref]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrTxNotFound, ref)
	}
	m.lookups++
	return Receipt{
		Ref:         ref,
		Transaction: m.tx,
		Height:      m.height,
		Final:       m.lookups > c.confirmAfter,
		RecordedAt:  m.recorded,
	}, nil
}

func (c *MemoryClient) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.available {
		return fmt.Errorf("%w: memory ledger offline", ErrLedgerUnavailable)
	}
	return nil
}
