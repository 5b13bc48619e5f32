package events

import "sync"

// FrameHolder keeps only the most recent frame. Put never blocks: a newer
// frame replaces an older one that nobody has looked at yet.
type FrameHolder struct {
	mu      sync.Mutex
	frame   Frame
	seq     uint64
	updates chan struct{}
}

// NewFrameHolder returns an empty holder.
func NewFrameHolder() *FrameHolder {
	return &FrameHolder{updates: make(chan struct{}, 1)}
}

// Put stores f as the latest frame and signals Updates.
func (h *FrameHolder) Put(f Frame) {
	h.mu.Lock()
	h.frame = f
	h.seq++
	h.mu.Unlock()

	select {
	case h.updates <- struct{}{}:
	default:
	}
}

// Latest returns the newest frame and its sequence number. ok is false
// until the first Put.
func (h *FrameHolder) Latest() (f Frame, seq uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame, h.seq, h.seq > 0
}

// Updates is signalled after a Put. Several Puts between two reads coalesce
// into one signal.
func (h *FrameHolder) Updates() <-chan struct{} {
	return h.updates
}
