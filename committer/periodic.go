package committer

import (
	"sync"
	"time"
)

var _ Committer = (*PeriodicCommitter)(nil)

type PeriodicCommitterConfig struct {
	MaxInterval time.Duration
	MaxCount    int
}

type PeriodicCommitterOption func(*PeriodicCommitterConfig)

func WithMaxInterval(d time.Duration) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		if d > 0 {
			cfg.MaxInterval = d
		}
	}
}

func WithMaxCount(c int) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		if c > 0 {
			cfg.MaxCount = c
		}
	}
}

// PeriodicCommitter signals once MaxCount records were resolved since the
// last commit, or MaxInterval elapsed with at least one resolved record.
type PeriodicCommitter struct {
	c PeriodicCommitterConfig

	mu         sync.Mutex
	count      int
	lastCommit time.Time

	channel   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewPeriodicCommitter(opts ...PeriodicCommitterOption) *PeriodicCommitter {
	cfg := PeriodicCommitterConfig{
		MaxInterval: 5 * time.Second,
		MaxCount:    100,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	p := &PeriodicCommitter{
		c:          cfg,
		lastCommit: time.Now(),
		channel:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go p.tick()

	return p
}

func (p *PeriodicCommitter) tick() {
	ticker := time.NewTicker(p.c.MaxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			due := p.count > 0 && time.Since(p.lastCommit) >= p.c.MaxInterval
			p.mu.Unlock()
			if due {
				p.signal()
			}
		}
	}
}

func (p *PeriodicCommitter) signal() {
	select {
	case p.channel <- struct{}{}:
	default:
	}
}

func (p *PeriodicCommitter) RecordProcessed(count int) {
	p.mu.Lock()
	p.count += count
	due := p.count >= p.c.MaxCount
	p.mu.Unlock()

	if due {
		p.signal()
	}
}

// Committed resets the counters after a successful commit.
func (p *PeriodicCommitter) Committed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
	p.lastCommit = time.Now()
}

// Pending is the number of records resolved since the last commit.
func (p *PeriodicCommitter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *PeriodicCommitter) C() <-chan struct{} {
	return p.channel
}

// Close stops the interval timer. C is left open so a select on it never
// spins after close.
func (p *PeriodicCommitter) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
