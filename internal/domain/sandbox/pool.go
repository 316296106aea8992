package sandbox

import (
	"context"
	"fmt"
	"log/slog"
)

// Pool is a fixed set of pre-initialized sandboxes behind a claim/release
// contract. Claim blocks until a sandbox frees up; Release returns it
// without resetting the workdir, which the caller scrubs per use.
type Pool struct {
	available chan *Sandbox
	all       []*Sandbox
}

// NewPool allocates size sandboxes with the shared config.
func NewPool(size int, cfg Config, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	p := &Pool{
		available: make(chan *Sandbox, size),
		all:       make([]*Sandbox, 0, size),
	}
	for n := 0; n < size; n++ {
		sb, err := New(cfg, logger)
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("allocate sandbox %d: %w", n, err)
		}
		p.all = append(p.all, sb)
		p.available <- sb
	}
	return p, nil
}

// Claim blocks until a sandbox is free or the context is cancelled.
func (p *Pool) Claim(ctx context.Context) (*Sandbox, error) {
	select {
	case sb := <-p.available:
		return sb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a claimed sandbox to the pool.
func (p *Pool) Release(sb *Sandbox) {
	p.available <- sb
}

// Shutdown tears down every sandbox. The pool must not be used after.
func (p *Pool) Shutdown() {
	for _, sb := range p.all {
		sb.Teardown()
	}
}
