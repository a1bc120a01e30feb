package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
	"github.com/Mindburn-Labs/custody/pkg/resiliency"
)

var (
	// ErrContentNotFound means no backend holds a valid blob for the pointer.
	ErrContentNotFound = errors.New("content not found")
	// ErrStorageUnavailable means the fallback backend failed, so the operation cannot complete.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store is the two-backend content-addressed store.
type Store struct {
	primary  Backend
	fallback Backend
	breaker  *resiliency.CircuitBreaker
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrimary sets the distributed backend tried first.
func WithPrimary(b Backend) Option {
	return func(s *Store) { s.primary = b }
}

// WithPrimaryBreaker skips the primary while the breaker is open.
func WithPrimaryBreaker(cb *resiliency.CircuitBreaker) Option {
	return func(s *Store) { s.breaker = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New builds a Store. fallback is required.
func New(fallback Backend, opts ...Option) (*Store, error) {
	if fallback == nil {
		return nil, errors.New("contentstore: fallback backend is required")
	}
	s := &Store{
		fallback: fallback,
		logger:   slog.Default().With("component", "contentstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put stores ciphertext and reports which backend accepted it.
func (s *Store) Put(ctx context.Context, ciphertext []byte) (string, contracts.Provenance, error) {
	if s.primary != nil && s.allowPrimary() {
		pointer, err := s.primary.Put(ctx, ciphertext)
		if err == nil {
			s.primarySucceeded()
			return pointer, contracts.ProvenancePrimary, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		s.primaryFailed()
		s.logger.WarnContext(ctx, "primary put failed, using fallback",
			"backend", s.primary.Name(), "error", err)
	}

	pointer, err := s.fallback.Put(ctx, ciphertext)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s put: %v", ErrStorageUnavailable, s.fallback.Name(), err)
	}
	return pointer, contracts.ProvenanceFallback, nil
}

// Get returns the ciphertext for pointer from whichever backend holds it.
// Blobs whose bytes no longer hash to their pointer are treated as absent.
func (s *Store) Get(ctx context.Context, pointer string) ([]byte, error) {
	primaryUnreachable := false

	if s.primary != nil && s.allowPrimary() {
		data, err := s.primary.Get(ctx, pointer)
		switch {
		case err == nil && s.intact(ctx, s.primary, pointer, data):
			s.primarySucceeded()
			return data, nil
		case err == nil:
			s.primarySucceeded()
		case errors.Is(err, ErrBlobNotFound):
			s.primarySucceeded()
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.primaryFailed()
			primaryUnreachable = true
			s.logger.WarnContext(ctx, "primary get failed, trying fallback",
				"backend", s.primary.Name(), "pointer", pointer, "error", err)
		}
	} else if s.primary != nil {
		primaryUnreachable = true
	}

	data, err := s.fallback.Get(ctx, pointer)
	switch {
	case err == nil && s.intact(ctx, s.fallback, pointer, data):
		return data, nil
	case err == nil, errors.Is(err, ErrBlobNotFound):
		if primaryUnreachable {
			// The primary may still hold it; absence cannot be concluded.
			return nil, fmt.Errorf("%w: primary unreachable and %s does not hold %s",
				ErrStorageUnavailable, s.fallback.Name(), pointer)
		}
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, pointer)
	default:
		return nil, fmt.Errorf("%w: %s get: %v", ErrStorageUnavailable, s.fallback.Name(), err)
	}
}

// Health pings every configured backend. A nil value means healthy.
func (s *Store) Health(ctx context.Context) map[string]error {
	out := map[string]error{"fallback:" + s.fallback.Name(): s.fallback.Ping(ctx)}
	if s.primary != nil {
		out["primary:"+s.primary.Name()] = s.primary.Ping(ctx)
	}
	return out
}

func (s *Store) intact(ctx context.Context, b Backend, pointer string, data []byte) bool {
	if _, err := parsePointer(pointer); err != nil {
		// Not a content address this store minted; nothing to check against.
		return true
	}
	if PointerFor(data) == pointer {
		return true
	}
	s.logger.ErrorContext(ctx, "blob does not match its content address",
		"backend", b.Name(), "pointer", pointer)
	return false
}

func (s *Store) allowPrimary() bool {
	return s.breaker == nil || s.breaker.Allow()
}

func (s *Store) primarySucceeded() {
	if s.breaker != nil {
		s.breaker.Success()
	}
}

func (s *Store) primaryFailed() {
	if s.breaker != nil {
		s.breaker.Failure()
	}
}
