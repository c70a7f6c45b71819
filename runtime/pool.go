package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/wasmvm/errors"
)

// Pool maintains a bounded set of instances of one module. Instances are
// created on demand up to the pool size.
type Pool struct {
	module    *Module
	available chan struct{}
	done      chan struct{}
	instances []*Instance
	acquired  []bool
	mu        sync.Mutex
	closed    bool
}

// NewPool creates a pool of at most size instances of m.
func (m *Module) NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "pool size must be positive")
	}
	available := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		available <- struct{}{}
	}
	return &Pool{module: m, available: available, done: make(chan struct{})}, nil
}

// Acquire obtains an instance, waiting while all of them are in use and
// instantiating one as necessary.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errClosed()
	case <-p.available:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.available <- struct{}{}
		return nil, errClosed()
	}

	for i, inst := range p.instances {
		if !p.acquired[i] {
			p.acquired[i] = true
			return inst, nil
		}
	}

	p.mu.Unlock()
	inst, err := p.module.Instantiate(ctx)
	p.mu.Lock()

	if err != nil {
		p.available <- struct{}{}
		return nil, err
	}

	p.instances = append(p.instances, inst)
	p.acquired = append(p.acquired, true)
	return inst, nil
}

// Release returns an acquired instance to the pool. Its memory and globals
// are kept as the last invocation left them. Releasing an instance that is
// not checked out of this pool does nothing.
func (p *Pool) Release(inst *Instance) {
	p.mu.Lock()
	released := false
	for i := range p.instances {
		if p.instances[i] == inst && p.acquired[i] {
			p.acquired[i] = false
			released = true
			break
		}
	}
	p.mu.Unlock()
	if released {
		p.available <- struct{}{}
	}
}

// Discard drops an acquired instance, for example after a trap left it in
// an unknown state. The next Acquire re-instantiates. Instances that are
// not checked out of this pool are ignored.
func (p *Pool) Discard(inst *Instance) {
	p.mu.Lock()
	discarded := false
	for i := range p.instances {
		if p.instances[i] == inst && p.acquired[i] {
			p.instances = append(p.instances[:i], p.instances[i+1:]...)
			p.acquired = append(p.acquired[:i], p.acquired[i+1:]...)
			discarded = true
			break
		}
	}
	p.mu.Unlock()
	if discarded {
		p.available <- struct{}{}
	}
}

// Size returns the number of live instances.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

// Close stops the pool from handing out instances.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
	p.instances = nil
	p.acquired = nil
}

func errClosed() error {
	return errors.InvalidInput(errors.PhaseRuntime, "pool is closed")
}
