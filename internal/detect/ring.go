// internal/detect/ring.go
package detect

// ring is a fixed-capacity circular buffer of samples indexed relative to
// its start: at(0) is the oldest retained value, at(-1) the newest.
// The detector keeps two of these (input history and realized-threshold
// history) so that voting windows can reach back across buffer boundaries.
type ring struct {
	data  []float32
	start int // index of the oldest element
	// cleared marks every element as the neutral default (0) without
	// touching the backing slice. Resets happen on every span change, so
	// they must be cheap; the slice is lazily zeroed on the next enqueue.
	cleared bool
}

// newRing creates a ring of the given capacity filled with zeros.
func newRing(capacity int) *ring {
	if capacity < 0 {
		capacity = 0
	}
	return &ring{data: make([]float32, capacity), cleared: true}
}

// size returns the ring's capacity.
func (r *ring) size() int {
	return len(r.data)
}

// at returns the element at the given circular index. Negative indices
// count back from the newest element. Returns 0 if the ring is empty.
func (r *ring) at(i int) float32 {
	if len(r.data) == 0 || r.cleared {
		return 0
	}
	return r.data[mod(r.start+i, len(r.data))]
}

// enqueueMany appends values, overwriting the oldest elements. If more
// values are supplied than the ring can hold, only the last size() of
// them are kept.
func (r *ring) enqueueMany(vals []float32) {
	w := len(r.data)
	if w == 0 || len(vals) == 0 {
		return
	}
	if r.cleared {
		clear(r.data)
		r.cleared = false
	}
	n := len(vals)
	if n > w {
		vals = vals[n-w:]
		n = w
	}
	first := w - r.start
	if first > n {
		first = n
	}
	copy(r.data[r.start:], vals[:first])
	copy(r.data, vals[first:])
	r.start = mod(r.start+n, w)
}

// reset makes every element read as 0 without eagerly zeroing.
func (r *ring) reset() {
	r.start = 0
	r.cleared = true
}

// resize replaces the backing storage. Prior contents are discarded;
// callers that depend on valid history must reset their derived state.
func (r *ring) resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	r.data = make([]float32, capacity)
	r.start = 0
	r.cleared = true
}

// mod is a floored modulo: the result is always in [0, m).
func mod(x, m int) int {
	return (x%m + m) % m
}
