// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// Dialer opens connections to a server. The address format is the
// dialer's own: host:port, a socket path, or a memory network name.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// NetDialer dials over TCP or a Unix socket.
type NetDialer struct {
	// Network is "tcp" or "unix". Empty selects tcp.
	Network string

	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a connection to address.
func (d NetDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	network := d.Network
	if network == "" {
		network = "tcp"
	}
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, network, address)
}

// Listen opens a TCP or Unix socket listener. A stale Unix socket file
// left by a previous process is removed first.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket %s: %w", address, err)
		}
	}
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s %s: %w", network, address, err)
	}
	return listener, nil
}

// MemoryNetwork is an in-process network of named listeners. Dialing a
// name connects to the listener with that name through net.Pipe.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{listeners: make(map[string]*memoryListener)}
}

// Listen registers a listener under name.
func (n *MemoryNetwork) Listen(name string) (net.Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.listeners[name]; exists {
		return nil, fmt.Errorf("memory network: %q already has a listener", name)
	}
	listener := &memoryListener{
		network: n,
		name:    name,
		accept:  make(chan net.Conn),
		closed:  make(chan struct{}),
	}
	n.listeners[name] = listener
	return listener, nil
}

// DialContext connects to the listener registered under name. It blocks
// until the listener accepts or ctx ends.
func (n *MemoryNetwork) DialContext(ctx context.Context, name string) (net.Conn, error) {
	n.mu.Lock()
	listener, ok := n.listeners[name]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memory network: no listener for %q", name)
	}

	clientSide, serverSide := net.Pipe()
	select {
	case listener.accept <- serverSide:
		return clientSide, nil
	case <-listener.closed:
		clientSide.Close()
		serverSide.Close()
		return nil, fmt.Errorf("memory network: listener %q closed", name)
	case <-ctx.Done():
		clientSide.Close()
		serverSide.Close()
		return nil, ctx.Err()
	}
}

type memoryListener struct {
	network   *MemoryNetwork
	name      string
	accept    chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *memoryListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.accept:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *memoryListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.network.mu.Lock()
		delete(l.network.listeners, l.name)
		l.network.mu.Unlock()
	})
	return nil
}

func (l *memoryListener) Addr() net.Addr { return memoryAddr(l.name) }

type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }
