package event

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/chat-go-sdk/wire"
)

type recorder struct {
	got []Event
}

func (r *recorder) HandleEvent(e Event) { r.got = append(r.got, e) }

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(slog.Default())
}

func TestPublishInRegistrationOrder(t *testing.T) {
	d := newTestDispatcher()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		d.Subscribe(NameConnected, ListenerFunc(func(Event) { order = append(order, i) }))
	}
	d.Publish(Connected{UserID: "u1"})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishOnlyMatchingName(t *testing.T) {
	d := newTestDispatcher()
	r := &recorder{}
	d.Subscribe(NameDirectMessage, r)

	d.Publish(GroupMessage{})
	d.Publish(DirectMessage{Message: wire.Message{ID: "m1"}})

	require.Len(t, r.got, 1)
	assert.Equal(t, "m1", r.got[0].(DirectMessage).Message.ID)
}

func TestSubscribeIdempotent(t *testing.T) {
	d := newTestDispatcher()
	r := &recorder{}

	d.Subscribe(NameConnected, r)
	d.Subscribe(NameConnected, r)
	assert.Equal(t, 1, d.ListenerCount(NameConnected))

	d.Publish(Connected{})
	assert.Len(t, r.got, 1)
}

func TestSameListenerDifferentNames(t *testing.T) {
	d := newTestDispatcher()
	r := &recorder{}

	d.Subscribe(NameConnected, r)
	d.Subscribe(NameAuthError, r)

	d.Publish(Connected{})
	d.Publish(AuthFailed{Message: "bad"})
	assert.Len(t, r.got, 2)
}

func TestUnsubscribe(t *testing.T) {
	d := newTestDispatcher()
	r := &recorder{}

	d.Subscribe(NameConnected, r)
	d.Unsubscribe(NameConnected, r)
	d.Publish(Connected{})

	assert.Empty(t, r.got)
	assert.Equal(t, 0, d.ListenerCount(NameConnected))
}

func TestUnsubscribeUnknownIsNoop(t *testing.T) {
	d := newTestDispatcher()
	r := &recorder{}
	other := &recorder{}
	d.Subscribe(NameConnected, r)

	assert.NotPanics(t, func() {
		d.Unsubscribe(NameConnected, other)
		d.Unsubscribe(NameError, r)
		d.Unsubscribe(NameError, ListenerFunc(func(Event) {}))
	})
	assert.Equal(t, 1, d.ListenerCount(NameConnected))
}

func TestRemoverFunc(t *testing.T) {
	d := newTestDispatcher()
	calls := 0
	unsub := d.Subscribe(NameConnected, ListenerFunc(func(Event) { calls++ }))

	d.Publish(Connected{})
	unsub()
	unsub()
	d.Publish(Connected{})

	assert.Equal(t, 1, calls)
}

func TestPanickingListenerIsolated(t *testing.T) {
	d := newTestDispatcher()

	var got []string
	d.Subscribe(NameDirectMessage, ListenerFunc(func(Event) {
		panic("listener bug")
	}))
	d.Subscribe(NameDirectMessage, ListenerFunc(func(e Event) {
		got = append(got, e.(DirectMessage).Message.Content)
	}))

	assert.NotPanics(t, func() {
		d.Publish(DirectMessage{Message: wire.Message{Content: "hello"}})
	})
	assert.Equal(t, []string{"hello"}, got)
}

func TestListenerMayUnsubscribeDuringPublish(t *testing.T) {
	d := newTestDispatcher()

	calls := 0
	var unsub func()
	unsub = d.Subscribe(NameConnected, ListenerFunc(func(Event) {
		calls++
		unsub()
	}))
	d.Subscribe(NameConnected, ListenerFunc(func(Event) { calls++ }))

	d.Publish(Connected{})
	d.Publish(Connected{})
	assert.Equal(t, 3, calls)
}

func TestOnTyped(t *testing.T) {
	d := newTestDispatcher()

	var attempts []int
	unsub := On(d, func(e ConnectionFailed) { attempts = append(attempts, e.Attempts) })

	d.Publish(ConnectionFailed{Attempts: 20})
	unsub()
	d.Publish(ConnectionFailed{Attempts: 21})

	assert.Equal(t, []int{20}, attempts)
}

func TestEventNames(t *testing.T) {
	cases := []struct {
		event Event
		want  Name
	}{
		{StatusChanged{}, "status:change"},
		{Connected{}, "connected"},
		{AuthFailed{}, "auth:error"},
		{ConnectionFailed{}, "connection:failed"},
		{AbnormalClosure{}, "abnormal:closure"},
		{DirectMessageAck{}, "direct:message:ack"},
		{DirectMessageHistory{}, "direct:message:history"},
		{GroupMessageAck{}, "group:message:ack"},
		{GroupMessageHistory{}, "group:message:history"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.event.EventName())
	}
}
