package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/parstream/errors"
	"github.com/kbukum/parstream/validation"
)

// Config configures a gate.
type Config struct {
	// Name identifies this gate for metrics/logging.
	Name string `mapstructure:"name"`
	// ConcurrencyLimit is the maximum number of permits outstanding at once.
	ConcurrencyLimit int64 `mapstructure:"concurrency_limit" validate:"gt=0"`
	// BufferLimit is the maximum aggregate weight of outstanding permits.
	BufferLimit int64 `mapstructure:"buffer_limit" validate:"gt=0"`
	// OnAcquire is called after a permit is granted.
	OnAcquire func(name string, weight int64, waited time.Duration) `mapstructure:"-"`
	// OnRelease is called when a permit is released.
	OnRelease func(name string, weight int64) `mapstructure:"-"`
	// OnReject is called when an acquisition fails.
	OnReject func(name string, err error) `mapstructure:"-"`
}

// Validate checks the capacities.
func (c Config) Validate() error {
	return validation.Validate(c)
}

// Gate is a bounded dual-capacity semaphore.
type Gate struct {
	config  Config
	holders *semaphore.Weighted
	weight  *semaphore.Weighted

	inUse       atomic.Int64
	weightInUse atomic.Int64
}

// New creates a gate. Non-positive capacities are raised to 1.
func New(config Config) *Gate {
	if config.ConcurrencyLimit <= 0 {
		config.ConcurrencyLimit = 1
	}
	if config.BufferLimit <= 0 {
		config.BufferLimit = 1
	}
	return &Gate{
		config:  config,
		holders: semaphore.NewWeighted(config.ConcurrencyLimit),
		weight:  semaphore.NewWeighted(config.BufferLimit),
	}
}

// Acquire blocks until one slot and weight units are both available, or ctx
// is done. A cancelled wait holds nothing on return. A weight that can never
// fit fails immediately with ADMISSION_REJECTED.
func (g *Gate) Acquire(ctx context.Context, weight int64) (*Permit, error) {
	if err := g.check(weight); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := g.holders.Acquire(ctx, 1); err != nil {
		return nil, g.reject(errors.AdmissionTimeout(g.config.Name, err))
	}
	if err := g.weight.Acquire(ctx, weight); err != nil {
		g.holders.Release(1)
		return nil, g.reject(errors.AdmissionTimeout(g.config.Name, err))
	}
	return g.grant(weight, time.Since(start)), nil
}

// TryAcquire admits without waiting. ok is false when either dimension is
// exhausted or the weight can never fit.
func (g *Gate) TryAcquire(weight int64) (permit *Permit, ok bool) {
	if g.check(weight) != nil {
		return nil, false
	}
	if !g.holders.TryAcquire(1) {
		return nil, false
	}
	if !g.weight.TryAcquire(weight) {
		g.holders.Release(1)
		return nil, false
	}
	return g.grant(weight, 0), true
}

func (g *Gate) check(weight int64) error {
	if weight < 0 {
		return g.reject(errors.InvalidInput("weight", "must not be negative"))
	}
	if weight > g.config.BufferLimit {
		return g.reject(errors.AdmissionRejected(g.config.Name, weight, g.config.BufferLimit))
	}
	return nil
}

func (g *Gate) grant(weight int64, waited time.Duration) *Permit {
	g.inUse.Add(1)
	g.weightInUse.Add(weight)
	if g.config.OnAcquire != nil {
		g.config.OnAcquire(g.config.Name, weight, waited)
	}
	return &Permit{gate: g, weight: weight}
}

func (g *Gate) reject(err error) error {
	if g.config.OnReject != nil {
		g.config.OnReject(g.config.Name, err)
	}
	return err
}

// release returns a permit's capacity. Weight goes back before the slot so a
// waiter woken by the slot never observes the weight still held.
func (g *Gate) release(weight int64) {
	g.weightInUse.Add(-weight)
	g.inUse.Add(-1)
	g.weight.Release(weight)
	g.holders.Release(1)
	if g.config.OnRelease != nil {
		g.config.OnRelease(g.config.Name, weight)
	}
}

// Name returns the configured gate name.
func (g *Gate) Name() string { return g.config.Name }

// InUse returns the number of outstanding permits.
func (g *Gate) InUse() int64 { return g.inUse.Load() }

// WeightInUse returns the aggregate weight of outstanding permits.
func (g *Gate) WeightInUse() int64 { return g.weightInUse.Load() }

// Available returns the number of free slots.
func (g *Gate) Available() int64 { return g.config.ConcurrencyLimit - g.inUse.Load() }

// ConcurrencyLimit returns the slot capacity.
func (g *Gate) ConcurrencyLimit() int64 { return g.config.ConcurrencyLimit }

// BufferLimit returns the weight capacity.
func (g *Gate) BufferLimit() int64 { return g.config.BufferLimit }

// Permit is one admission. The zero value is not usable.
type Permit struct {
	gate     *Gate
	weight   int64
	once     sync.Once
	released atomic.Bool
}

// Release returns the permit's capacity to the gate. Only the first call has
// an effect; it reports whether this call performed the release.
func (p *Permit) Release() bool {
	did := false
	p.once.Do(func() {
		p.released.Store(true)
		p.gate.release(p.weight)
		did = true
	})
	return did
}

// Released reports whether Release has been called.
func (p *Permit) Released() bool { return p.released.Load() }

// Weight returns the weight charged for this permit.
func (p *Permit) Weight() int64 { return p.weight }
