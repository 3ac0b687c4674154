package metrics

// latencyWindow is a fixed-capacity FIFO of the most recent latency samples.
type latencyWindow struct {
	buf  []float64
	head int // oldest sample once the buffer is full
	n    int
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &latencyWindow{buf: make([]float64, capacity)}
}

func (w *latencyWindow) push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// values returns the samples in arrival order.
func (w *latencyWindow) values() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

func (w *latencyWindow) capacity() int { return len(w.buf) }
