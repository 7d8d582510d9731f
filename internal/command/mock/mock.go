// Package mock provides test doubles for the command package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/internal/command"
)

// Executor is a mock implementation of command.Executor.
type Executor struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Execute call.
	Err error

	// ErrFor overrides Err for individual actions.
	ErrFor map[command.ActionID]error

	// Block, if non-nil, is received from before Execute returns.
	Block chan struct{}

	// Calls records every request in order.
	Calls []command.ActionRequest
}

var _ command.Executor = (*Executor)(nil)

// Execute records req and returns the configured error.
func (e *Executor) Execute(ctx context.Context, req command.ActionRequest) error {
	e.mu.Lock()
	e.Calls = append(e.Calls, req)
	block := e.Block
	err := e.Err
	if e.ErrFor != nil {
		if specific, ok := e.ErrFor[req.Action]; ok {
			err = specific
		}
	}
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Requests returns a copy of Calls. Thread-safe.
func (e *Executor) Requests() []command.ActionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]command.ActionRequest(nil), e.Calls...)
}

// Querier is a mock implementation of command.Querier.
type Querier struct {
	mu sync.Mutex

	// Reply and Err are returned by every Query call.
	Reply string
	Err   error

	// Calls records every request in order.
	Calls []command.ActionRequest
}

var _ command.Querier = (*Querier)(nil)

// Query records req and returns Reply, Err.
func (q *Querier) Query(_ context.Context, req command.ActionRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Calls = append(q.Calls, req)
	return q.Reply, q.Err
}
