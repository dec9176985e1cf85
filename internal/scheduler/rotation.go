package scheduler

import "github.com/stepcord/stepcord/internal/kind"

// Rotation is the scheduler's only mutable state: which kind is active.
// It either points at an enabled kind or is idle, and idle is final for
// the run.
type Rotation struct {
	kinds []kind.Kind
	idx   int
	idle  bool
}

// NewRotation positions on the first enabled kind of kinds, which must be in
// priority order.
func NewRotation(kinds []kind.Kind, enabled func(kind.Kind) bool) *Rotation {
	r := &Rotation{kinds: kinds, idx: len(kinds) - 1}

	if len(kinds) == 0 {
		r.idle = true
		return r
	}

	r.Advance(enabled)

	return r
}

func (r *Rotation) Len() int {
	return len(r.kinds)
}

func (r *Rotation) Idle() bool {
	return r.idle
}

// Active returns the active kind, false when idle.
func (r *Rotation) Active() (kind.Kind, bool) {
	if r.idle {
		return 0, false
	}

	return r.kinds[r.idx], true
}

// Settle keeps the active kind if it is still enabled, otherwise moves on to
// the next enabled one.
func (r *Rotation) Settle(enabled func(kind.Kind) bool) (kind.Kind, bool) {
	if r.idle {
		return 0, false
	}

	if k := r.kinds[r.idx]; enabled(k) {
		return k, true
	}

	return r.Advance(enabled)
}

// Advance moves to the next enabled kind after the active one in declaration
// order, wrapping around. The active kind itself is the last candidate. A
// full scan without an enabled kind makes the rotation idle.
func (r *Rotation) Advance(enabled func(kind.Kind) bool) (kind.Kind, bool) {
	if r.idle {
		return 0, false
	}

	n := len(r.kinds)
	for i := 1; i <= n; i++ {
		j := (r.idx + i) % n
		if enabled(r.kinds[j]) {
			r.idx = j
			return r.kinds[j], true
		}
	}

	r.idle = true

	return 0, false
}
