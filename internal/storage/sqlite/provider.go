package sqlite

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/pkg/logger"
)

var ErrProviderClosed = errors.New("sqlite provider is closed")

// Provider owns the process-wide database handle. The connection is opened
// lazily by the first Acquire, shared by every later caller, and closed when
// the last holder releases it.
type Provider struct {
	path string
	open func(path string) (*Client, error)

	mu     sync.Mutex
	client *Client
	refs   int
	closed bool
}

func NewProvider(path string) *Provider {
	return &Provider{path: path, open: NewClient}
}

func (p *Provider) Acquire(ctx context.Context) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}

	if p.client == nil {
		client, err := p.open(p.path)
		if err != nil {
			return nil, err
		}
		p.client = client
	}

	p.refs++
	return p.client, nil
}

// Release drops one reference. The connection closes at zero.
func (p *Provider) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 {
		return nil
	}
	p.refs--
	if p.refs > 0 || p.client == nil {
		return nil
	}

	err := p.client.Close()
	p.client = nil
	logger.Debug("SQLite connection released", zap.String("path", p.path))
	return err
}

// Close closes the connection regardless of outstanding references and
// rejects later Acquire calls.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.refs = 0
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *Provider) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}
