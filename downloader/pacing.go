package downloader

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"scrollgrab/config"
)

// Pacer supplies every random delay and coin flip the scraper uses, so a
// test can swap the whole human-like rhythm out at once.
type Pacer interface {
	// Between is the pause after the n-th successful download
	Between(n int) time.Duration

	// Jitter draws uniformly from [r.Min, r.Max)
	Jitter(r config.Range) time.Duration

	// Step draws an integer uniformly from [min, max]
	Step(min, max int) int

	// Chance reports true with probability p
	Chance(p float64) bool
}

// RandomPacer is the production Pacer
type RandomPacer struct {
	cfg config.PacingConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPacer seeds a pacer from the runtime's random source
func NewRandomPacer(cfg config.PacingConfig) *RandomPacer {
	return NewSeededPacer(cfg, rand.Uint64(), rand.Uint64())
}

// NewSeededPacer is NewRandomPacer with a fixed seed
func NewSeededPacer(cfg config.PacingConfig, seed1, seed2 uint64) *RandomPacer {
	return &RandomPacer{cfg: cfg, rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Between grows the base delay by one second every StepEvery downloads up to
// Ceiling, adds up to Spread on top, and every LongPauseEvery downloads adds
// a longer break.
func (p *RandomPacer) Between(n int) time.Duration {
	if n < 0 {
		n = 0
	}

	base := p.cfg.Base
	if p.cfg.StepEvery > 0 {
		base += time.Duration(n/p.cfg.StepEvery) * time.Second
	}
	if p.cfg.Ceiling > 0 && base > p.cfg.Ceiling {
		base = p.cfg.Ceiling
	}

	d := base + p.Jitter(config.Range{Min: 0, Max: p.cfg.Spread})
	if p.cfg.LongPauseEvery > 0 && n > 0 && n%p.cfg.LongPauseEvery == 0 {
		d += p.Jitter(p.cfg.LongPause)
	}
	return d
}

func (p *RandomPacer) Jitter(r config.Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Min + time.Duration(p.rng.Int64N(int64(r.Max-r.Min)))
}

func (p *RandomPacer) Step(min, max int) int {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + p.rng.IntN(max-min+1)
}

func (p *RandomPacer) Chance(prob float64) bool {
	if prob <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < prob
}

// NopPacer never waits and never fires a chance. Steps are always the
// maximum so scrolling finishes quickly.
type NopPacer struct{}

func (NopPacer) Between(int) time.Duration         { return 0 }
func (NopPacer) Jitter(config.Range) time.Duration { return 0 }
func (NopPacer) Step(min, max int) int             { return max }
func (NopPacer) Chance(float64) bool               { return false }

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a timer
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
