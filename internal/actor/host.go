// Package actor serializes operations per key.
//
// Operations for the same key run one after the other in the order they were
// submitted, operations for different keys run concurrently.
package actor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/routines"
)

const loggerName = "actor"

type heldKeysCtxKey struct{}

type mailbox struct {
	pool *routines.Pool
	refs int
}

// Host owns one mailbox per active key.
// Mailboxes are created on first use and released when no operation for the
// key is pending anymore.
type Host struct {
	logger *zap.Logger

	mu        sync.Mutex
	mailboxes map[string]*mailbox
}

func NewHost() *Host {
	return &Host{
		logger:    zap.L().Named(loggerName),
		mailboxes: map[string]*mailbox{},
	}
}

// Do runs fn in the mailbox of key and returns its error.
// Do blocks until fn returned.
//
// When ctx was passed to fn by a Do call for the same key, fn is run
// directly. This allows an operation to call other operations of the same
// key without deadlocking.
func (h *Host) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if isHeld(ctx, key) {
		return fn(ctx)
	}

	mb := h.acquire(key)
	defer h.release(key, mb)

	var err error
	done := make(chan struct{})

	mb.pool.Queue(func() {
		defer close(done)

		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return
		}

		err = fn(withHeld(ctx, key))
	})

	<-done

	return err
}

// Active returns the number of keys that have pending operations.
func (h *Host) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.mailboxes)
}

func (h *Host) acquire(key string) *mailbox {
	h.mu.Lock()
	defer h.mu.Unlock()

	mb, exists := h.mailboxes[key]
	if !exists {
		mb = &mailbox{pool: routines.NewPool(1)}
		h.mailboxes[key] = mb

		h.logger.Debug("mailbox created", zap.String("actor_key", key))
	}

	mb.refs++

	return mb
}

func (h *Host) release(key string, mb *mailbox) {
	h.mu.Lock()

	mb.refs--
	if mb.refs > 0 {
		h.mu.Unlock()
		return
	}

	delete(h.mailboxes, key)
	h.mu.Unlock()

	mb.pool.Wait()

	h.logger.Debug("mailbox released", zap.String("actor_key", key))
}

func isHeld(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKeysCtxKey{}).(map[string]struct{})
	_, exists := held[key]
	return exists
}

func withHeld(ctx context.Context, key string) context.Context {
	held, _ := ctx.Value(heldKeysCtxKey{}).(map[string]struct{})

	newHeld := make(map[string]struct{}, len(held)+1)
	for k := range held {
		newHeld[k] = struct{}{}
	}
	newHeld[key] = struct{}{}

	return context.WithValue(ctx, heldKeysCtxKey{}, newHeld)
}
