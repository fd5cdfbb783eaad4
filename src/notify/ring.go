package notify

import "sync"

type ring struct {
	mu    sync.Mutex
	buf   []string
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 50
	}
	return &ring{buf: make([]string, capacity)}
}

func (r *ring) push(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = s
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
