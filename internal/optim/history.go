package optim

// ring is a fixed-capacity FIFO that overwrites its oldest entry.
type ring[T any] struct {
	buf   []T
	start int
	n     int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) len() int {
	return r.n
}

// at returns the i-th oldest retained entry.
func (r *ring[T]) at(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring[T]) slice() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

// IterationRecord is one entry of the convergence history.
type IterationRecord struct {
	Iteration int     `json:"iteration" yaml:"iteration"`
	Best      float64 `json:"best" yaml:"best"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Diversity float64 `json:"diversity" yaml:"diversity"`
}

// History keeps the most recent iteration records.
type History struct {
	records *ring[IterationRecord]
}

func NewHistory(capacity int) *History {
	return &History{records: newRing[IterationRecord](capacity)}
}

func (h *History) Add(r IterationRecord) {
	h.records.push(r)
}

func (h *History) Len() int {
	return h.records.len()
}

func (h *History) Records() []IterationRecord {
	return h.records.slice()
}

// Stagnant reports whether the best fitness improved by no more than tol
// over the last window iterations. It needs window+1 records.
func (h *History) Stagnant(window int, tol float64) bool {
	n := h.records.len()
	if window < 1 || n <= window {
		return false
	}
	past := h.records.at(n - 1 - window).Best
	now := h.records.at(n - 1).Best
	return past-now <= tol
}
