package mqtt

import "log"

// bufferedMsg is a formatted publish waiting for the broker to come back.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the newest messages up to a fixed capacity, oldest first.
// The caller must synchronize.
type ringBuffer struct {
	msgs    []bufferedMsg
	next    int // slot the next push writes to
	n       int
	dropped int // messages overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{msgs: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.n == len(r.msgs) {
		if r.dropped == 0 {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", len(r.msgs))
		}
		r.dropped++
	} else {
		r.n++
	}
	r.msgs[r.next] = msg
	r.next = (r.next + 1) % len(r.msgs)
}

// drainAll returns the buffered messages in publish order and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.n == 0 {
		return nil
	}
	out := make([]bufferedMsg, 0, r.n)
	first := (r.next - r.n + len(r.msgs)) % len(r.msgs)
	for i := 0; i < r.n; i++ {
		out = append(out, r.msgs[(first+i)%len(r.msgs)])
	}
	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were lost while offline", r.dropped)
	}
	r.next, r.n, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.n
}
