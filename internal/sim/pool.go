package sim

import "sync"

// BufferPool recycles float64 scratch buffers between batch runs. Buffers
// come back zeroed and with the requested length.
type BufferPool struct {
	pool sync.Pool
}

func (p *BufferPool) Get(n int) []float64 {
	if v, ok := p.pool.Get().(*[]float64); ok && cap(*v) >= n {
		buf := (*v)[:n]
		clear(buf)
		return buf
	}
	return make([]float64, n)
}

func (p *BufferPool) Put(buf []float64) {
	if cap(buf) == 0 {
		return
	}
	p.pool.Put(&buf)
}
