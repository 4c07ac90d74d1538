package speaker

import (
	"sync"
	"time"
)

// Window buffers live audio and hands out the most recent window of it
// every step. Add and Next may run on different goroutines.
type Window struct {
	size int
	step int

	mu      sync.Mutex
	buf     []byte
	pending int
}

// NewWindow returns a window of size audio analysed every step, for 16-bit
// mono PCM at sampleRate.
func NewWindow(size, step time.Duration, sampleRate int) *Window {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	bytesFor := func(d time.Duration) int {
		n := int(d.Seconds()*float64(sampleRate)) * 2
		if n < 2 {
			n = 2
		}
		return n
	}
	return &Window{size: bytesFor(size), step: bytesFor(step)}
}

// Add appends PCM, keeping at most one window of audio.
func (w *Window) Add(pcm []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, pcm...)
	if over := len(w.buf) - w.size; over > 0 {
		// Drop whole samples so the window still starts on a sample.
		over += over & 1
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	w.pending += len(pcm)
}

// Next returns a copy of the buffered window once at least one step of new
// audio arrived since the previous call.
func (w *Window) Next() ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Whole samples only; a trailing odd byte waits for its pair.
	n := len(w.buf) &^ 1
	if w.pending < w.step || n == 0 {
		return nil, false
	}
	w.pending = 0
	out := make([]byte, n)
	copy(out, w.buf[:n])
	return out, true
}

// Reset drops buffered audio.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = w.buf[:0]
	w.pending = 0
}
