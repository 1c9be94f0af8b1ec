package storage

import "sync"

// hub fans committed changes out to subscribers. Every driver embeds one.
type hub struct {
	mu   sync.Mutex
	seq  uint64
	subs map[uint64]chan Change
}

func (h *hub) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)

	h.mu.Lock()
	if h.subs == nil {
		h.subs = map[uint64]chan Change{}
	}
	h.seq++
	id := h.seq
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
}

// publish holds mu while sending so Unsubscribe can never close a channel mid-send.
func (h *hub) publish(changes []Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range changes {
		for _, ch := range h.subs {
			select {
			case ch <- c:
				continue
			default:
			}
			// Full: drop the oldest pending change, then deliver the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
