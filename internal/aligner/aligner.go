// Package aligner joins the latest primary- and secondary-timeframe signals
// of each pair inside a sliding validity window.
package aligner

import (
	"math"
	"sort"
	"sync"
	"time"

	"mtf-screener/internal/model"
)

const (
	// DefaultAlignWindow is the maximum entry age accepted by CheckAlignment.
	DefaultAlignWindow = 60 * time.Second
	// DefaultStaleAfter is the age past which Cleanup evicts entries.
	DefaultStaleAfter = 5 * time.Minute
)

type entry struct {
	signal     model.Signal
	receivedAt time.Time
}

// Aligner holds at most one entry per (pair, role). All methods are safe for
// concurrent use; ingestion and periodic cleanup are serialized by one mutex.
type Aligner struct {
	mu        sync.Mutex
	now       func() time.Time
	primary   map[string]entry
	secondary map[string]entry
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithClock overrides the receipt clock. Tests use it to control ages.
func WithClock(now func() time.Time) Option {
	return func(a *Aligner) { a.now = now }
}

// New creates an empty aligner.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		now:       time.Now,
		primary:   make(map[string]entry),
		secondary: make(map[string]entry),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddPrimarySignal replaces the primary entry for pair.
func (a *Aligner) AddPrimarySignal(pair string, s model.Signal) {
	a.mu.Lock()
	a.primary[pair] = entry{signal: s, receivedAt: a.now()}
	a.mu.Unlock()
}

// AddSecondarySignal replaces the secondary entry for pair.
func (a *Aligner) AddSecondarySignal(pair string, s model.Signal) {
	a.mu.Lock()
	a.secondary[pair] = entry{signal: s, receivedAt: a.now()}
	a.mu.Unlock()
}

// Add routes s to the side named by role. RoleNone is ignored.
func (a *Aligner) Add(role model.Role, pair string, s model.Signal) {
	switch role {
	case model.RolePrimary:
		a.AddPrimarySignal(pair, s)
	case model.RoleSecondary:
		a.AddSecondarySignal(pair, s)
	}
}

// CheckAlignment reports whether both sides of pair are present, no older
// than maxAge, and agree on a non-neutral direction. A non-positive maxAge
// means DefaultAlignWindow.
func (a *Aligner) CheckAlignment(pair string, maxAge time.Duration) (model.AlignedSignal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.check(pair, maxAge, a.now())
}

// GetAllAligned runs CheckAlignment for every pair with a primary entry.
// Results are ordered by pair.
func (a *Aligner) GetAllAligned(maxAge time.Duration) []model.AlignedSignal {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	pairs := make([]string, 0, len(a.primary))
	for p := range a.primary {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)

	var out []model.AlignedSignal
	for _, p := range pairs {
		if as, ok := a.check(p, maxAge, now); ok {
			out = append(out, as)
		}
	}
	return out
}

// Cleanup evicts every entry older than maxAge from both sides and returns
// the number removed. A non-positive maxAge means DefaultStaleAfter.
func (a *Aligner) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	removed := 0
	for _, m := range []map[string]entry{a.primary, a.secondary} {
		for pair, e := range m {
			if now.Sub(e.receivedAt) > maxAge {
				delete(m, pair)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of live primary and secondary entries.
func (a *Aligner) Len() (primary, secondary int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.primary), len(a.secondary)
}

func (a *Aligner) check(pair string, maxAge time.Duration, now time.Time) (model.AlignedSignal, bool) {
	if maxAge <= 0 {
		maxAge = DefaultAlignWindow
	}
	p, okP := a.primary[pair]
	s, okS := a.secondary[pair]
	if !okP || !okS {
		return model.AlignedSignal{}, false
	}
	if now.Sub(p.receivedAt) > maxAge || now.Sub(s.receivedAt) > maxAge {
		return model.AlignedSignal{}, false
	}

	dir := p.signal.Direction()
	if dir == model.DirNeutral || dir != s.signal.Direction() {
		return model.AlignedSignal{}, false
	}

	return model.AlignedSignal{
		Pair:       pair,
		Direction:  dir,
		Confidence: Confidence(p.signal.Score, s.signal.Score),
		Primary:    p.signal,
		Secondary:  s.signal,
		AlignedAt:  now.UnixMilli(),
	}, true
}

// Confidence weights the primary score 0.6 and the secondary 0.4, on
// absolute values, capped at 100.
func Confidence(primaryScore, secondaryScore float64) float64 {
	c := (3*math.Abs(primaryScore) + 2*math.Abs(secondaryScore)) / 5
	return math.Min(100, c)
}
