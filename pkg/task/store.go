// Package task provides task lifecycle management: creation, state
// transitions, history and artifact accumulation, and pluggable
// persistence behind the Store interface.
package task

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

// Store persists tasks. Implementations must make Transition atomic with
// respect to concurrent transitions on the same task.
type Store interface {
	// Create persists a fresh task in the submitted state.
	Create(ctx context.Context, contextID string) (*a2a.Task, error)

	// Get returns a snapshot of the task, or a not-found error.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Transition moves the task to next if the state machine allows it
	// from the task's current state, applying mutate (may be nil) to the
	// stored task under the same lock. It returns the updated snapshot,
	// or ErrTerminal when the task's current state forbids the move.
	Transition(ctx context.Context, taskID string, next a2a.TaskState, reason string, mutate func(*a2a.Task)) (*a2a.Task, error)

	// AppendMessage appends a message to the task history.
	AppendMessage(ctx context.Context, taskID string, msg a2a.Message) error

	// AppendArtifact appends an artifact, assigning it the next index.
	AppendArtifact(ctx context.Context, taskID string, art a2a.Artifact) error

	// List returns snapshots of every task in a context.
	List(ctx context.Context, contextID string) ([]*a2a.Task, error)

	// Close releases backing resources.
	Close() error
}

// Store-level errors. ErrTerminal doubles as the illegal-transition error
// since every illegal transition in this machine starts from a terminal
// state or targets one out of order.
var (
	ErrNotFound = a2a.NewError(a2a.CodeNotFound, "task not found")
	ErrTerminal = a2a.NewError(a2a.CodeValidation, "task is in a terminal state")
)

// newTask builds a task in the submitted state.
func newTask(contextID string) *a2a.Task {
	return &a2a.Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
	}
}

// cloneTask deep-copies a task so callers never share slices with the
// store's copy.
func cloneTask(t *a2a.Task) *a2a.Task {
	cp := *t
	if t.History != nil {
		cp.History = make([]a2a.Message, len(t.History))
		copy(cp.History, t.History)
	}
	if t.Artifacts != nil {
		cp.Artifacts = make([]a2a.Artifact, len(t.Artifacts))
		copy(cp.Artifacts, t.Artifacts)
	}
	return &cp
}

// ============================================================================
// IN-MEMORY STORE
// ============================================================================

const memoryShards = 16

type memoryShard struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

// MemoryStore is the in-memory Store. Tasks are sharded by id hash so
// unrelated tasks never contend on one lock.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{tasks: make(map[string]*a2a.Task)}
	}
	return s
}

func (s *MemoryStore) shard(taskID string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return s.shards[h.Sum32()%memoryShards]
}

func (s *MemoryStore) Create(_ context.Context, contextID string) (*a2a.Task, error) {
	t := newTask(contextID)
	sh := s.shard(t.ID)
	sh.mu.Lock()
	sh.tasks[t.ID] = t
	sh.mu.Unlock()
	return cloneTask(t), nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (*a2a.Task, error) {
	sh := s.shard(taskID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	t, ok := sh.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *MemoryStore) Transition(_ context.Context, taskID string, next a2a.TaskState, reason string, mutate func(*a2a.Task)) (*a2a.Task, error) {
	sh := s.shard(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	if !t.Status.State.CanTransitionTo(next) {
		return nil, ErrTerminal
	}

	t.Status = a2a.TaskStatus{
		State:     next,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
	if mutate != nil {
		mutate(t)
	}
	return cloneTask(t), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, taskID string, msg a2a.Message) error {
	sh := s.shard(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.History = append(t.History, msg)
	return nil
}

func (s *MemoryStore) AppendArtifact(_ context.Context, taskID string, art a2a.Artifact) error {
	sh := s.shard(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	art.Index = len(t.Artifacts)
	t.Artifacts = append(t.Artifacts, art)
	return nil
}

func (s *MemoryStore) List(_ context.Context, contextID string) ([]*a2a.Task, error) {
	var result []*a2a.Task
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, t := range sh.tasks {
			if t.ContextID == contextID {
				result = append(result, cloneTask(t))
			}
		}
		sh.mu.RUnlock()
	}
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }
