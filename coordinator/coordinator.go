package coordinator

import (
	"context"
	"sort"
	"sync"

	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
)

var _ kafka.RebalanceCallback = (*Coordinator)(nil)

// State is the ownership state of one partition as seen by this member.
type State int

const (
	StateUnassigned State = iota
	StateAssigned
	StateRevoking
)

func (s State) String() string {
	switch s {
	case StateAssigned:
		return "assigned"
	case StateRevoking:
		return "revoking"
	default:
		return "unassigned"
	}
}

// Handler reacts to ownership changes. Both methods run inside the broker's
// rebalance protocol and must not return before the work for the given
// partitions is set up or torn down.
type Handler interface {
	OnPartitionsAssigned(ctx context.Context, partitions []kafka.TopicPartition)
	OnPartitionsRevoked(ctx context.Context, partitions []kafka.TopicPartition)
}

// Pauser stops and restarts fetching. kafka.Consumer satisfies it.
type Pauser interface {
	PausePartitions(partitions ...kafka.TopicPartition)
	ResumePartitions(partitions ...kafka.TopicPartition)
}

type Config struct {
	Logger  logger.Logger
	Metrics *metrics.Metrics
	// OnChange is called with the number of owned partitions after every
	// assignment change.
	OnChange func(owned int)
}

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

func WithOnChange(fn func(owned int)) Option {
	return func(c *Config) {
		c.OnChange = fn
	}
}

// Coordinator sits between the broker's group callbacks and a Handler. It
// records which partitions may be pulled: a partition stops being pullable
// as soon as its revoke notification arrives and only becomes pullable again
// on the next assignment.
type Coordinator struct {
	handler Handler
	pauser  Pauser

	mu     sync.RWMutex
	states map[kafka.TopicPartition]State

	// rebalanceMu serialises callbacks so a revoke never interleaves with
	// an assign for the same member.
	rebalanceMu sync.Mutex

	onChange func(int)
	logger   logger.Logger
	metrics  *metrics.Metrics
}

func New(handler Handler, pauser Pauser, opts ...Option) *Coordinator {
	cfg := Config{Logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Coordinator{
		handler:  handler,
		pauser:   pauser,
		states:   make(map[kafka.TopicPartition]State),
		onChange: cfg.OnChange,
		logger:   cfg.Logger.With("component", "coordinator"),
		metrics:  cfg.Metrics,
	}
}

func (c *Coordinator) OnAssigned(ctx context.Context, partitions []kafka.TopicPartition) {
	if len(partitions) == 0 {
		return
	}

	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	c.logger.Info("Partitions assigned", "partitions", partitions)

	// pause state outlives an assignment in the broker client
	if c.pauser != nil {
		c.pauser.ResumePartitions(partitions...)
	}

	// the handler runs before the partitions become pullable so a worker
	// exists by the time the first record is routed
	c.handler.OnPartitionsAssigned(ctx, partitions)

	added := 0
	c.mu.Lock()
	for _, tp := range partitions {
		if c.states[tp] != StateAssigned {
			added++
		}
		c.states[tp] = StateAssigned
	}
	owned := len(c.states)
	c.mu.Unlock()

	c.metrics.Assigned(added)
	c.notify(owned)
}

func (c *Coordinator) OnRevoked(ctx context.Context, partitions []kafka.TopicPartition) {
	if len(partitions) == 0 {
		return
	}

	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()

	c.logger.Info("Partitions revoked", "partitions", partitions)

	removed := 0
	c.mu.Lock()
	for _, tp := range partitions {
		if _, ok := c.states[tp]; ok {
			removed++
		}
		c.states[tp] = StateRevoking
	}
	c.mu.Unlock()

	if c.pauser != nil {
		c.pauser.PausePartitions(partitions...)
	}

	c.handler.OnPartitionsRevoked(ctx, partitions)

	c.mu.Lock()
	for _, tp := range partitions {
		delete(c.states, tp)
	}
	owned := len(c.states)
	c.mu.Unlock()

	c.metrics.Assigned(-removed)
	c.notify(owned)

	c.logger.Debug("Revocation acknowledged", "partitions", partitions)
}

func (c *Coordinator) notify(owned int) {
	if c.onChange != nil {
		c.onChange(owned)
	}
}

// Pullable reports whether records of tp may be dispatched.
func (c *Coordinator) Pullable(tp kafka.TopicPartition) bool {
	return c.State(tp) == StateAssigned
}

func (c *Coordinator) State(tp kafka.TopicPartition) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[tp]
}

// Assigned returns the pullable partitions ordered by topic and partition.
func (c *Coordinator) Assigned() []kafka.TopicPartition {
	c.mu.RLock()
	tps := make([]kafka.TopicPartition, 0, len(c.states))
	for tp, s := range c.states {
		if s == StateAssigned {
			tps = append(tps, tp)
		}
	}
	c.mu.RUnlock()

	sort.Slice(
		tps, func(i, j int) bool {
			if tps[i].Topic != tps[j].Topic {
				return tps[i].Topic < tps[j].Topic
			}
			return tps[i].Partition < tps[j].Partition
		},
	)
	return tps
}
