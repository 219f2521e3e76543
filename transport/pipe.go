package transport

import (
	"context"
	"sync"

	"github.com/joshuaskelly/twitch-observer/errors"
)

// Pipe is an in-memory Transport for tests: the test plays the server side,
// feeding lines the engine will read and inspecting lines the engine wrote.
// It lives in the package proper (not a _test file) so engine and facade
// tests can share it.
type Pipe struct {
	incoming chan string

	mu         sync.Mutex
	written    []string
	connectErr error
	writeErr   error
	connected  bool
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewPipe creates an unconnected pipe transport.
func NewPipe() *Pipe {
	return &Pipe{
		incoming: make(chan string, 64),
		closed:   make(chan struct{}),
	}
}

// FailConnect makes the next Connect return err.
func (p *Pipe) FailConnect(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// FailWrites makes subsequent WriteLine calls return err.
func (p *Pipe) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// FeedLine queues a server line for the engine's read loop.
func (p *Pipe) FeedLine(line string) {
	select {
	case p.incoming <- line:
	case <-p.closed:
	}
}

// Written returns a snapshot of every line written so far.
func (p *Pipe) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.written))
	copy(out, p.written)
	return out
}

// Connect implements Transport.
func (p *Pipe) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	return nil
}

// ReadLine implements Transport. It blocks until a line is fed or the pipe
// is closed.
func (p *Pipe) ReadLine() (string, error) {
	select {
	case line := <-p.incoming:
		return line, nil
	case <-p.closed:
		return "", errors.ErrConnectionLost
	}
}

// WriteLine implements Transport.
func (p *Pipe) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return errors.ErrTransportNotConnected
	}
	if p.writeErr != nil {
		return p.writeErr
	}
	p.written = append(p.written, line)
	return nil
}

// Close implements Transport.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		close(p.closed)
	})
	return nil
}
