package chat

// queuedFrame is an outbound frame waiting for the channel to become usable.
// requestID is empty for uncorrelated frames.
type queuedFrame struct {
	seq       uint64
	requestID string
	data      []byte
}

// outboundQueue is a FIFO of frames issued while the client was not
// connected. It is owned by the client loop and not safe for concurrent use.
type outboundQueue struct {
	items   []queuedFrame
	nextSeq uint64
}

func (q *outboundQueue) push(requestID string, data []byte) {
	q.nextSeq++
	q.items = append(q.items, queuedFrame{seq: q.nextSeq, requestID: requestID, data: data})
}

// drain removes and returns every queued frame in enqueue order.
func (q *outboundQueue) drain() []queuedFrame {
	items := q.items
	q.items = nil
	return items
}

// requeueFront puts frames that could not be written back at the head.
func (q *outboundQueue) requeueFront(items []queuedFrame) {
	if len(items) == 0 {
		return
	}
	merged := make([]queuedFrame, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
}

// remove withdraws the frame of a correlated call, e.g. after it timed out.
func (q *outboundQueue) remove(requestID string) bool {
	for i, it := range q.items {
		if it.requestID == requestID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *outboundQueue) clear() { q.items = nil }

func (q *outboundQueue) len() int { return len(q.items) }
