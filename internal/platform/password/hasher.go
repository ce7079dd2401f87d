// Package password hashes and verifies account secrets with bcrypt.
package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost matches the work factor accounts were historically hashed with.
const DefaultCost = 10

// bcrypt ignores input past 72 bytes, so longer secrets are refused instead of truncated.
const maxPasswordBytes = 72

var (
	// ErrHashing indicates bcrypt could not produce a hash (entropy or memory exhaustion).
	ErrHashing = errors.New("password: hashing failed")
	// ErrPasswordTooLong is returned for plaintexts bcrypt cannot represent.
	ErrPasswordTooLong = errors.New("password: must not exceed 72 bytes")
)

// Hasher runs bcrypt on a bounded number of workers so slow hashes cannot
// starve unrelated requests.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	decoy []byte
}

// NewHasher builds a Hasher. A zero cost selects DefaultCost and workers <= 0
// selects GOMAXPROCS.
func NewHasher(cost, workers int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password: cost %d outside [%d,%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("odyssey-accounts decoy secret"), cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(workers)),
		decoy: decoy,
	}, nil
}

// Cost returns the configured bcrypt work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a self-describing bcrypt blob with a fresh random salt.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := do(ctx, h.slots, func() ([]byte, error) {
		return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A mismatch, or a stored hash
// bcrypt cannot parse, is false with a nil error; only context errors are returned.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	return do(ctx, h.slots, func() (bool, error) {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil, nil
	})
}

// VerifyDecoy spends the same work as Verify against an internal hash. Login
// calls it for unknown emails so both failure paths take equally long.
func (h *Hasher) VerifyDecoy(ctx context.Context, plaintext string) {
	_, _ = h.Verify(ctx, plaintext, string(h.decoy))
}

// NeedsRehash reports whether hash was produced with a different work factor.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}

type result[T any] struct {
	val T
	err error
}

// do runs fn once a worker slot is free. If ctx ends first the caller returns
// immediately; the worker still finishes and frees its slot.
func do[T any](ctx context.Context, slots *semaphore.Weighted, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := slots.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	done := make(chan result[T], 1)
	go func() {
		defer slots.Release(1)
		val, err := fn()
		done <- result[T]{val: val, err: err}
	}()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-done:
		return res.val, res.err
	}
}
