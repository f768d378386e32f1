// Package conversation implements the Conversation State Store: the single
// source of truth for every live Conversation, serializing mutations per
// conversation id while letting distinct ids proceed in parallel.
package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// entry pairs a Conversation with the mutex that serializes access to it.
// The mutex is held only across the synchronous body of Update; readers
// never hold it across an await/suspension point.
type entry struct {
	mu   sync.Mutex
	conv forgetype.Conversation
}

// Store is the in-memory Conversation State Store described in spec.md
// §4.1. It is safe for concurrent use by multiple goroutines.
type Store struct {
	// mapMu guards the map itself (insertion of new ids); it is never held
	// while a per-conversation mutex is held, so map growth never blocks an
	// in-flight mutation and vice versa.
	mapMu sync.RWMutex
	byID  map[string]*entry
}

// NewStore constructs an empty Conversation State Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*entry)}
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mapMu.RLock()
	defer s.mapMu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Find returns a deep-cloned snapshot of the conversation with the given id,
// or (zero, false) if it does not exist. A snapshot observed mid-mutation is
// impossible: clones are taken only after a mutation has committed.
func (s *Store) Find(id string) (forgetype.Conversation, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return forgetype.Conversation{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone(), true
}

// Upsert replaces or inserts the given conversation unconditionally.
func (s *Store) Upsert(conv forgetype.Conversation) {
	s.mapMu.Lock()
	e, ok := s.byID[conv.ID]
	if !ok {
		e = &entry{}
		s.byID[conv.ID] = e
	}
	s.mapMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv = conv.Clone()
}

// Create assigns a fresh conversation id, initializes empty AgentState for
// every agent in the workflow, stores, and returns the new Conversation.
func (s *Store) Create(workflow forgetype.Workflow) forgetype.Conversation {
	conv := forgetype.Conversation{
		ID:          uuid.NewString(),
		Workflow:    workflow,
		AgentStates: make(map[string]forgetype.AgentState, len(workflow.Agents)),
		Variables:   map[string]any{},
	}
	for _, a := range workflow.Agents {
		conv.AgentStates[a.ID] = forgetype.AgentState{}
	}
	for k, v := range workflow.Variables {
		conv.Variables[k] = v
	}
	s.Upsert(conv)
	return conv
}

// Mutator is invoked by Update with exclusive access to the conversation;
// its return value is forwarded to Update's caller. The conv pointer must
// not be retained past the call.
type Mutator[T any] func(conv *forgetype.Conversation) (T, error)

// Update acquires exclusive access to the conversation with the given id,
// invokes mutate on a mutable reference, commits the result, and returns
// whatever mutate returned. Returns ErrConversationNotFound if id is absent.
func Update[T any](ctx context.Context, s *Store, id string, mutate Mutator[T]) (T, error) {
	var zero T
	e, ok := s.lookup(id)
	if !ok {
		return zero, errors.Wrapf(forgetype.ErrConversationNotFound, "id %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := mutate(&e.conv)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("conversation_id", id).Debug("conversation update returned error")
		return zero, err
	}
	return result, nil
}

// Delete removes a conversation from the store. It is not an error to
// delete an id that does not exist.
func (s *Store) Delete(id string) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	delete(s.byID, id)
}
