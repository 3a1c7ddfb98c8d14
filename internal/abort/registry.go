// Package abort tracks cancellation handles for in-flight generations so
// a stop request or a duplicate-generation guard can cancel the correct
// upstream calls. The registry is process-local; cross-instance stops go
// through the persisted AbortedGeneration marker instead.
package abort

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
)

const (
	// MaxHandlesPerConversation bounds concurrent generation attempts
	// tracked per conversation (foreground + background duplicates).
	MaxHandlesPerConversation = 16

	// MaxTrackedConversations bounds total conversations tracked by the
	// registry. The globally least-recently-touched conversation is
	// force-cancelled and evicted when the bound is exceeded.
	MaxTrackedConversations = 1000
)

// Handle is one cancellable generation attempt. Cancelling it aborts the
// upstream request through its context.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHandle wraps a cancellable context in a registry handle.
func NewHandle(ctx context.Context, cancel context.CancelFunc) *Handle {
	return &Handle{ctx: ctx, cancel: cancel}
}

// Cancel aborts the generation attempt. Safe to call multiple times.
func (h *Handle) Cancel() { h.cancel() }

// Done reports completion or cancellation of the attempt.
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

type entry struct {
	conversationID string
	handles        []*Handle // insertion order, oldest first
	elem           *list.Element
}

// Registry holds cancellation handles keyed by conversation id. It is an
// injected service object, not a package singleton, and all operations are
// safe under concurrent use from multiple requests.
type Registry struct {
	mu            sync.Mutex
	conversations map[string]*entry
	order         *list.List // front = least recently touched
	logger        *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conversations: make(map[string]*entry),
		order:         list.New(),
		logger:        logger,
	}
}

// Register adds a handle for the conversation. If the conversation already
// tracks MaxHandlesPerConversation handles, the oldest is force-cancelled
// and evicted first. If tracking this conversation exceeds
// MaxTrackedConversations, the globally oldest conversation is
// force-cancelled and evicted. The handle removes itself from the registry
// when its context completes, so no manual unregister is needed on the
// happy path.
func (r *Registry) Register(conversationID string, h *Handle) {
	r.mu.Lock()

	e, ok := r.conversations[conversationID]
	if !ok {
		e = &entry{conversationID: conversationID}
		e.elem = r.order.PushBack(e)
		r.conversations[conversationID] = e

		if len(r.conversations) > MaxTrackedConversations {
			if oldest := r.order.Front(); oldest != nil && oldest != e.elem {
				r.evictLocked(oldest.Value.(*entry))
			}
		}
	} else {
		r.order.MoveToBack(e.elem)
	}

	if len(e.handles) >= MaxHandlesPerConversation {
		victim := e.handles[0]
		e.handles = e.handles[1:]
		victim.Cancel()
		r.logger.Debug("evicted oldest generation handle",
			"conversation_id", conversationID,
		)
	}
	e.handles = append(e.handles, h)

	r.mu.Unlock()

	go func() {
		<-h.Done()
		r.Unregister(conversationID, h)
	}()
}

// Abort cancels every handle registered for the conversation and clears
// its entry. No-op when nothing is tracked.
func (r *Registry) Abort(conversationID string) {
	r.mu.Lock()
	e, ok := r.conversations[conversationID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.evictLocked(e)
	r.mu.Unlock()

	r.logger.Debug("aborted active generation", "conversation_id", conversationID)
}

// Unregister removes one handle; the conversation entry is dropped when
// its handle set becomes empty.
func (r *Registry) Unregister(conversationID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conversations[conversationID]
	if !ok {
		return
	}
	for i, tracked := range e.handles {
		if tracked == h {
			e.handles = append(e.handles[:i], e.handles[i+1:]...)
			break
		}
	}
	if len(e.handles) == 0 {
		r.order.Remove(e.elem)
		delete(r.conversations, conversationID)
	}
}

// TrackedConversations returns the number of conversations with live
// handles.
func (r *Registry) TrackedConversations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}

// HandleCount returns the number of handles tracked for a conversation.
func (r *Registry) HandleCount(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conversations[conversationID]; ok {
		return len(e.handles)
	}
	return 0
}

// evictLocked cancels all handles of an entry and removes it. Caller holds
// the mutex; the self-unregister goroutines of cancelled handles will
// block on the lock until it is released and then find nothing to remove.
func (r *Registry) evictLocked(e *entry) {
	for _, h := range e.handles {
		h.Cancel()
	}
	e.handles = nil
	r.order.Remove(e.elem)
	delete(r.conversations, e.conversationID)
}
