package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func queuedData(items []queuedFrame) []string {
	var ids []string
	for _, it := range items {
		ids = append(ids, string(it.data))
	}
	return ids
}

func TestQueueFIFO(t *testing.T) {
	var q outboundQueue
	q.push("", []byte("a"))
	q.push("r1", []byte("b"))
	q.push("", []byte("c"))
	assert.Equal(t, 3, q.len())

	items := q.drain()
	assert.Equal(t, []string{"a", "b", "c"}, queuedData(items))
	assert.Less(t, items[0].seq, items[1].seq)
	assert.Zero(t, q.len())
}

func TestQueueRequeueFront(t *testing.T) {
	var q outboundQueue
	q.push("", []byte("a"))
	q.push("", []byte("b"))
	items := q.drain()
	q.push("", []byte("c"))

	q.requeueFront(items[1:])
	assert.Equal(t, []string{"b", "c"}, queuedData(q.drain()))
}

func TestQueueRemove(t *testing.T) {
	var q outboundQueue
	q.push("r1", []byte("a"))
	q.push("r2", []byte("b"))

	assert.True(t, q.remove("r1"))
	assert.False(t, q.remove("r1"))
	assert.Equal(t, []string{"b"}, queuedData(q.drain()))

	q.push("", []byte("x"))
	q.clear()
	assert.Zero(t, q.len())
}
