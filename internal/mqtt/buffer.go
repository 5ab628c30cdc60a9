package mqtt

import "log"

// bufferedMsg is a serialized MQTT message held for replay.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that keeps the newest messages while
// the broker is unreachable. Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	capacity := len(r.buf)
	if r.count == capacity {
		if r.dropped == 0 {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", capacity)
		}
		r.dropped++
		// head already points at the oldest entry
		r.buf[r.head] = msg
		r.head = (r.head + 1) % capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % capacity
	r.count++
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	if r.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while disconnected", r.dropped)
	}

	capacity := len(r.buf)
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := range out {
		out[i] = r.buf[(start+i)%capacity]
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
