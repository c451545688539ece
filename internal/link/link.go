// Package link reduces the wireless uplink to a connectivity signal plus a
// reconnect hook.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrDown is returned by Reconnect when the uplink stays unavailable.
var ErrDown = errors.New("link down")

// Link is the connectivity signal consumed by every network-using component.
type Link interface {
	Connected() bool
	// Reconnect re-establishes the uplink; it returns once the attempt is
	// finished, successful or not.
	Reconnect(ctx context.Context) error
}

// Probe treats the link as up while a TCP dial to Addr succeeds. The last
// result is cached for TTL so the per-tick callers don't dial every time.
type Probe struct {
	Addr    string
	Timeout time.Duration
	TTL     time.Duration

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time

	mu      sync.Mutex
	up      bool
	checked time.Time
}

var _ Link = (*Probe)(nil)

func NewProbe(addr string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &Probe{
		Addr:    addr,
		Timeout: timeout,
		TTL:     30 * time.Second,
		dial:    d.DialContext,
		now:     time.Now,
	}
}

func (p *Probe) Connected() bool {
	p.mu.Lock()
	fresh := !p.checked.IsZero() && p.now().Sub(p.checked) < p.TTL
	up := p.up
	p.mu.Unlock()
	if fresh {
		return up
	}
	return p.check(context.Background()) == nil
}

func (p *Probe) Reconnect(ctx context.Context) error {
	return p.check(ctx)
}

func (p *Probe) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.Addr)
	if conn != nil {
		conn.Close()
	}

	p.mu.Lock()
	was := p.up
	p.up = err == nil
	p.checked = p.now()
	p.mu.Unlock()

	if err != nil {
		if was {
			log.Warn().Err(err).Str("addr", p.Addr).Msg("link lost")
		}
		return fmt.Errorf("%w: probe %s: %v", ErrDown, p.Addr, err)
	}
	if !was {
		log.Info().Str("addr", p.Addr).Msg("link up")
	}
	return nil
}

// Static is a fixed link state, for tests and for offline-only deployments.
type Static struct {
	mu sync.Mutex
	up bool
	// Reconnects counts Reconnect calls.
	Reconnects int
}

var _ Link = (*Static)(nil)

func NewStatic(up bool) *Static {
	return &Static{up: up}
}

func (s *Static) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.up
}

func (s *Static) Set(up bool) {
	s.mu.Lock()
	s.up = up
	s.mu.Unlock()
}

func (s *Static) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reconnects++
	if !s.up {
		return ErrDown
	}
	return nil
}
