// Copyright 2018 The Mangos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"go.nanomsg.org/mangos/v3"
)

// ContextPool hands out transport contexts shared by name.  A context is
// created on first Acquire and torn down when the last holder releases it.
type ContextPool struct {
	mu       sync.Mutex
	contexts map[string]*TransportContext
}

// NewContextPool returns an empty pool.
func NewContextPool() *ContextPool {
	return &ContextPool{contexts: make(map[string]*TransportContext)}
}

// Acquire returns the context called name, creating it if needed, and
// takes a reference on it.
func (p *ContextPool) Acquire(name string) *TransportContext {
	if name == "" {
		name = DefaultContext
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.contexts[name]
	if !ok {
		c = &TransportContext{
			name:    name,
			pool:    p,
			sockets: make(map[mangos.Socket]struct{}),
			bound:   make(map[string]mangos.Socket),
		}
		p.contexts[name] = c
	}
	c.refs++
	return c
}

// Release drops a reference taken by Acquire.  The last release closes
// every socket the context still tracks.
func (p *ContextPool) Release(c *TransportContext) error {
	p.mu.Lock()
	if c.refs <= 0 || p.contexts[c.name] != c {
		p.mu.Unlock()
		return ErrReleased
	}
	c.refs--
	if c.refs > 0 {
		p.mu.Unlock()
		return nil
	}
	delete(p.contexts, c.name)
	p.mu.Unlock()
	c.teardown()
	return nil
}

// Len returns the number of live contexts.
func (p *ContextPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contexts)
}

// TransportContext creates sockets and keeps track of them, and of the
// addresses they are bound to.
type TransportContext struct {
	name string
	pool *ContextPool
	refs int // guarded by pool.mu

	mu      sync.Mutex
	sockets map[mangos.Socket]struct{}
	bound   map[string]mangos.Socket
	closed  bool
}

// Name returns the name the context is shared under.
func (c *TransportContext) Name() string { return c.name }

// Refs returns the number of references held on the context.
func (c *TransportContext) Refs() int {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.refs
}

// Sockets returns the number of open sockets created by the context.
func (c *TransportContext) Sockets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sockets)
}

// NewSocket creates a socket of the given pattern.
func (c *TransportContext) NewSocket(p Pattern, raw bool) (mangos.Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrReleased
	}
	sock, err := p.newSocket(raw)
	if err != nil {
		return nil, err
	}
	c.sockets[sock] = struct{}{}
	return sock, nil
}

// Listen binds sock to addr.  An address already bound, by this context or
// by anyone else in the process, fails with ErrAddrInUse.
func (c *TransportContext) Listen(sock mangos.Socket, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrReleased
	}
	if _, ok := c.bound[addr]; ok {
		return fmt.Errorf("%s: %w", addr, ErrAddrInUse)
	}
	if err := sock.Listen(addr); err != nil {
		if errors.Is(err, mangos.ErrAddrInUse) || errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%s: %w", addr, ErrAddrInUse)
		}
		return err
	}
	c.bound[addr] = sock
	return nil
}

// Dial connects sock to addr in the background; the connection is retried
// until the peer appears.
func (c *TransportContext) Dial(sock mangos.Socket, addr string) error {
	return sock.DialOptions(addr, map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
}

// CloseSocket closes a socket created by the context, releasing any
// address it holds.
func (c *TransportContext) CloseSocket(sock mangos.Socket) error {
	c.mu.Lock()
	_, ok := c.sockets[sock]
	delete(c.sockets, sock)
	for addr, s := range c.bound {
		if s == sock {
			delete(c.bound, addr)
		}
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return sock.Close()
}

func (c *TransportContext) teardown() {
	c.mu.Lock()
	c.closed = true
	socks := c.sockets
	c.sockets = make(map[mangos.Socket]struct{})
	c.bound = make(map[string]mangos.Socket)
	c.mu.Unlock()
	for sock := range socks {
		sock.Close()
	}
}
