// Package journal defines the append-only message log that makes a
// deployment resumable, and its in-memory and file backends.
//
// Folding the messages returned by Read, in order, over an empty deployment
// state reproduces the state the engine had when it wrote them. The file
// backend guarantees a message is on disk before Record returns.
package journal

import (
	"context"
	"slices"
	"sync"
)

// Journal is an append-only sequence of messages.
type Journal interface {
	// Record durably appends m.
	Record(ctx context.Context, m Message) error

	// Read returns every recorded message in write order.
	Read(ctx context.Context) ([]Message, error)
}

// MemoryJournal keeps messages in memory. It is used for throwaway
// deployments and tests.
type MemoryJournal struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record implements Journal.
func (j *MemoryJournal) Record(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.messages = append(j.messages, m)
	return nil
}

// Read implements Journal.
func (j *MemoryJournal) Read(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.messages), nil
}
