package batch

import (
	"context"
	"sync"

	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

// Connection owns a database and the statements created on it. It is safe for concurrent use; the statements
// it hands out are not.
type Connection struct {
	mu     sync.Mutex
	id     uint64
	env    *Environment
	db     *ksql.DB
	stmts  map[uint64]*Statement
	nextID uint64
	closed bool
}

// DB returns the underlying database.
func (c *Connection) DB() *ksql.DB {
	return c.db
}

// NewStatement allocates a statement in the Unbound state.
func (c *Connection) NewStatement(opts ...Option) (*Statement, error) {
	s := &Statement{
		conn:   c,
		size:   defaultRowArraySize,
		atomic: true,
		cols:   make(map[int]Buffer),
		params: make(map[int]Buffer),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.size < 1 {
		return nil, localError(KindSetup, "allocate", StateAttributeValue, ErrCapacity, "row array size %d", s.size)
	}

	s.paramsetSize = 1
	s.rowStatus = make([]RowStatus, s.size)
	s.paramStatus = make([]ParamStatus, s.size)

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil, localError(KindSetup, "allocate", StateNotConnected, ErrClosed, "connection")
	}

	c.nextID++
	s.id = c.nextID
	c.stmts[s.id] = s

	c.mu.Unlock()

	if m := c.env.metrics; m != nil {
		m.DeltaUpDownCounter(context.Background(), MetricOpenStatements, 1)
	}

	return s, nil
}

// Statements returns the number of open statements.
func (c *Connection) Statements() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.stmts)
}

// Close closes every open statement, then the database.
func (c *Connection) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true

	stmts := make([]*Statement, 0, len(c.stmts))
	for _, s := range c.stmts {
		stmts = append(stmts, s)
	}

	c.mu.Unlock()

	var first error

	for _, s := range stmts {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil && first == nil {
			first = newError(KindSetup, "disconnect", err)
		}
	}

	c.env.release(c.id)

	return first
}

func (c *Connection) release(id uint64) {
	c.mu.Lock()
	delete(c.stmts, id)
	c.mu.Unlock()
}
