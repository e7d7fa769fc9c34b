// internal/fetch/pacer.go
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/valpere/relay-scraper/internal/clock"
)

// Pacer enforces a minimum delay between network requests, measured from the
// completion of the previous request. One Pacer is shared by every host.
type Pacer struct {
	mu       sync.Mutex
	clock    clock.Clock
	minDelay time.Duration
	last     time.Time
}

// NewPacer returns a pacer; a nil clock means the system clock.
func NewPacer(minDelay time.Duration, c clock.Clock) *Pacer {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Pacer{clock: c, minDelay: minDelay}
}

// Wait blocks until at least minDelay has passed since the last Done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last.IsZero() || p.minDelay <= 0 {
		return nil
	}
	if remaining := p.minDelay - p.clock.Now().Sub(p.last); remaining > 0 {
		p.clock.Sleep(remaining)
	}
	return ctx.Err()
}

// Done records the completion time of a request.
func (p *Pacer) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = p.clock.Now()
}
