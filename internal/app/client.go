package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/ports"
	"github.com/bft-labs/spbatch/pkg/log"
)

// DefaultMaxConcurrency bounds how many sub-batches of one batch are in flight.
const DefaultMaxConcurrency = 4

// Client queues operations into batches and executes them over the transport.
type Client struct {
	mu      sync.Mutex
	current *domain.Batch

	registry       *Registry
	transport      ports.Transport
	logger         ports.Logger
	policy         Policy
	maxConcurrency int
	now            func() time.Time
	dist           *distributor
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPreferredProtocol sets the protocol a mixed batch is unified onto first.
func WithPreferredProtocol(p domain.Protocol) Option {
	return func(c *Client) {
		c.policy.Preferred = p
	}
}

// WithDisabledProtocols prevents any call from being sent over the given protocols.
func WithDisabledProtocols(ps ...domain.Protocol) Option {
	return func(c *Client) {
		for _, p := range ps {
			c.policy.Disabled[p] = true
		}
	}
}

// WithMaxConcurrency bounds concurrent sub-batch dispatch. n <= 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		c.maxConcurrency = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRegistry shares a batch registry between clients.
func WithRegistry(r *Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

// NewClient creates a batch client sending over transport.
func NewClient(transport ports.Transport, opts ...Option) *Client {
	c := &Client{
		registry:       NewRegistry(),
		transport:      transport,
		logger:         log.NewNoopLogger(),
		policy:         Policy{Preferred: domain.ProtocolGraph, Disabled: make(map[domain.Protocol]bool)},
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dist = &distributor{logger: c.logger}
	return c
}

// Registry returns the registry of live batches.
func (c *Client) Registry() *Registry { return c.registry }

// EnsureBatch returns the implicit current batch, creating and registering a new
// one when there is none or the current one was executed.
func (c *Client) EnsureBatch() *domain.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.Executed() {
		return c.current
	}
	c.current = c.newBatch()
	return c.current
}

// NewBatch creates and registers an explicit batch. It does not touch the implicit batch.
func (c *Client) NewBatch() *domain.Batch {
	return c.newBatch()
}

func (c *Client) newBatch() *domain.Batch {
	for {
		b := domain.NewBatch(c.now())
		if err := c.registry.Put(b); err != nil {
			c.logger.Warn("batch id collision", ports.Stringer("batch", b.ID()))
			continue
		}
		c.logger.Debug("created batch", ports.Stringer("batch", b.ID()))
		return b
	}
}

// ContainsBatch reports whether id names a live batch.
func (c *Client) ContainsBatch(id uuid.UUID) bool {
	return c.registry.Contains(id)
}

// GetBatchByID returns the live batch with the given id.
func (c *Client) GetBatchByID(id uuid.UUID) (*domain.Batch, bool) {
	return c.registry.Get(id)
}

// Add queues call into b. A nil batch means the implicit batch; if that batch is
// executed concurrently the call goes into its successor. fallback, when non-nil,
// overrides the call's own fallback. Adding a call equal to a queued one binds
// owner to the existing record.
func (c *Client) Add(b *domain.Batch, call domain.Call, fallback *domain.Call, owner domain.Owner) (*domain.Record, error) {
	if call.IsZero() || !call.Protocol().Valid() {
		return nil, domain.ErrInvalidCall
	}
	var fb domain.Call
	if fallback != nil {
		fb = *fallback
	}

	implicit := b == nil
	for {
		target := b
		if implicit {
			target = c.EnsureBatch()
		}
		rec, dedup, err := target.Add(call, fb, owner)
		if errors.Is(err, domain.ErrBatchExecuted) && implicit {
			continue
		}
		if err != nil {
			return nil, err
		}

		if dedup {
			c.logger.Debug("deduplicated request",
				ports.Stringer("batch", target.ID()),
				ports.Int("order", rec.Order()),
				ports.Int("requests", rec.Requests()),
				ports.Stringer("call", call),
			)
		} else {
			c.logger.Debug("queued request",
				ports.Stringer("batch", target.ID()),
				ports.Int("order", rec.Order()),
				ports.Stringer("call", call),
			)
		}
		return rec, nil
	}
}

// Enqueue asks model for its descriptor of kind and queues it with the model as owner.
func (c *Client) Enqueue(b *domain.Batch, model ports.Model, kind domain.OperationKind) (*domain.Record, error) {
	call, err := model.Describe(kind)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", kind, err)
	}
	return c.Add(b, call, nil, model)
}

// ExecuteCurrent executes the implicit batch, if there is one.
func (c *Client) ExecuteCurrent(ctx context.Context) error {
	c.mu.Lock()
	b := c.current
	c.mu.Unlock()
	if b == nil {
		return nil
	}
	return c.Execute(ctx, b)
}

// Execute sends every record of b and settles it.
//
// Per-record and per-sub-batch failures are recorded on the records and do not
// make Execute fail. Execute returns ErrAlreadyExecuted for a batch that was
// executed before, ErrTransportUnavailable (leaving the batch untouched) when the
// transport cannot send, and the context error when ctx ends before every
// sub-batch was settled.
func (c *Client) Execute(ctx context.Context, b *domain.Batch) error {
	if b == nil {
		return errors.New("spbatch: nil batch")
	}
	if b.Executed() {
		return domain.ErrAlreadyExecuted
	}
	if av, ok := c.transport.(ports.Availability); ok && !av.Available() {
		return domain.ErrTransportUnavailable
	}
	if err := b.Seal(c.now()); err != nil {
		return err
	}
	defer c.registry.Remove(b.ID())

	c.mu.Lock()
	if c.current == b {
		c.current = nil
	}
	c.mu.Unlock()

	start := c.now()
	records := b.Records()
	plan := Split(records, c.policy)

	for _, rec := range plan.Unsplittable {
		if err := rec.Fail(0, domain.ErrUnsplittable); err != nil {
			c.logger.Error("failed to settle record", ports.Err(err), ports.Int("order", rec.Order()))
		}
		c.logger.Warn("no enabled protocol for request",
			ports.Stringer("batch", b.ID()),
			ports.Int("order", rec.Order()),
			ports.Stringer("call", rec.Primary()),
		)
	}

	// Sub-batch failures are isolated, so goroutines never return an error.
	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for _, sb := range plan.SubBatches {
		sb := sb
		g.Go(func() error {
			c.dispatch(ctx, b, sb)
			return nil
		})
	}
	_ = g.Wait()

	failed, unsettled := 0, 0
	for _, rec := range records {
		switch rec.State() {
		case domain.StateFailed:
			failed++
		case domain.StateQueued, domain.StateSent:
			unsettled++
		}
	}

	if err := ctx.Err(); err != nil && unsettled > 0 {
		c.logger.Warn("batch execution canceled",
			ports.Stringer("batch", b.ID()),
			ports.Int("unsettled", unsettled),
			ports.Err(err),
		)
		return err
	}
	c.logger.Info("executed batch",
		ports.Stringer("batch", b.ID()),
		ports.Int("records", len(records)),
		ports.Int("sub_batches", len(plan.SubBatches)),
		ports.Int("failed", failed),
		ports.Duration("duration", c.now().Sub(start)),
	)
	return nil
}

// dispatch sends one sub-batch and distributes its results.
func (c *Client) dispatch(ctx context.Context, b *domain.Batch, sb SubBatch) {
	if ctx.Err() != nil {
		return
	}
	for i, rec := range sb.Records {
		if err := rec.Resolve(sb.Calls[i]); err != nil {
			c.logger.Error("failed to resolve record", ports.Err(err), ports.Int("order", rec.Order()))
		}
		if err := rec.MarkSent(); err != nil {
			c.logger.Error("failed to mark record sent", ports.Err(err), ports.Int("order", rec.Order()))
		}
	}

	start := c.now()
	results, sendErr := c.transport.Send(ctx, sb.Protocol, sb.Wire)
	info := domain.SubBatchInfo{Index: sb.Index, Protocol: sb.Protocol, Orders: sb.Orders()}

	if err := ctx.Err(); err != nil {
		info.Err = err
		b.RecordSubBatch(info)
		return
	}

	info.Err = c.dist.distribute(sb, results, sendErr)
	b.RecordSubBatch(info)

	if info.Err != nil {
		c.logger.Error("sub-batch failed",
			ports.Stringer("batch", b.ID()),
			ports.Int("sub_batch", sb.Index),
			ports.Stringer("protocol", sb.Protocol),
			ports.Int("requests", len(sb.Wire)),
			ports.Err(info.Err),
		)
		return
	}
	c.logger.Debug("sent sub-batch",
		ports.Stringer("batch", b.ID()),
		ports.Int("sub_batch", sb.Index),
		ports.Stringer("protocol", sb.Protocol),
		ports.Int("requests", len(sb.Wire)),
		ports.Duration("duration", c.now().Sub(start)),
	)
}
