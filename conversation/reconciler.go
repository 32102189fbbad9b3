package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/NeboLoop/chat-go-sdk/event"
	"github.com/NeboLoop/chat-go-sdk/frame"
	"github.com/NeboLoop/chat-go-sdk/wire"
)

// Transport is the subset of the chat client the reconciler needs.
// *chat.Client satisfies it.
type Transport interface {
	UserID() string
	SendDirectMessage(ctx context.Context, recipientID, content, tempID string) (wire.MessageAck, error)
	SendGroupMessage(ctx context.Context, groupID, content, tempID string) (wire.MessageAck, error)
	DirectMessageHistory(ctx context.Context, partnerID string, page wire.Page) (wire.History, error)
	GroupMessageHistory(ctx context.Context, groupID string, page wire.Page) (wire.History, error)
	MarkDirectRead(ctx context.Context, partnerID string) error
	MarkGroupRead(ctx context.Context, groupID string) error
}

// ActiveHook is called after a message lands in the conversation currently
// on screen.
type ActiveHook func(key Key, m Message)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// WithNow sets the clock used to timestamp provisional messages.
func WithNow(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// WithActiveHook registers the hook run for messages in the active
// conversation.
func WithActiveHook(h ActiveHook) Option { return func(r *Reconciler) { r.onActive = h } }

// WithMarkRead controls whether messages arriving in the active conversation
// are marked read on the server. Default true.
func WithMarkRead(on bool) Option { return func(r *Reconciler) { r.markRead = on } }

// Reconciler applies sends, acks, pushes and history pages to a Store. All
// writes for one key are serialized.
type Reconciler struct {
	t        Transport
	store    Store
	logger   *slog.Logger
	now      func() time.Time
	onActive ActiveHook
	markRead bool

	loads singleflight.Group

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex

	activeMu sync.RWMutex
	active   Key
}

// New creates a Reconciler over t and store.
func New(t Transport, store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		t:        t,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		markRead: true,
		locks:    make(map[Key]*sync.Mutex),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// --- Sending ---

// SendDirect appends a provisional message to the conversation with
// partnerID, sends it and applies the acknowledgement. If the send fails the
// provisional message stays pending and the error is returned with it.
func (r *Reconciler) SendDirect(ctx context.Context, partnerID, content string) (Message, error) {
	m := r.provisional(content)
	m.RecipientID = partnerID
	return r.send(ctx, DirectKey(partnerID), m, func() (wire.MessageAck, error) {
		return r.t.SendDirectMessage(ctx, partnerID, content, m.TempID)
	})
}

// SendGroup is SendDirect for a group conversation.
func (r *Reconciler) SendGroup(ctx context.Context, groupID, content string) (Message, error) {
	m := r.provisional(content)
	m.GroupID = groupID
	return r.send(ctx, GroupKey(groupID), m, func() (wire.MessageAck, error) {
		return r.t.SendGroupMessage(ctx, groupID, content, m.TempID)
	})
}

func (r *Reconciler) provisional(content string) Message {
	return Message{
		TempID:    frame.NewTempID(),
		SenderID:  r.t.UserID(),
		Content:   content,
		CreatedAt: r.now(),
		IsPending: true,
	}
}

func (r *Reconciler) send(ctx context.Context, key Key, m Message, call func() (wire.MessageAck, error)) (Message, error) {
	if err := r.update(ctx, key, func(ms []Message) ([]Message, error) {
		return upsert(ms, m), nil
	}); err != nil {
		return m, fmt.Errorf("store provisional: %w", err)
	}

	ack, err := call()
	if err != nil {
		r.logger.Warn("send failed, message left pending", "conversation", key, "temp_id", m.TempID, "error", err)
		return m, err
	}
	if ack.TempID == "" {
		ack.TempID = m.TempID
	}
	return r.applyAck(ctx, key, ack)
}

// --- Server updates ---

// ApplyAck replaces the provisional message named by ack.TempID with the
// server's copy. If no provisional exists the message is inserted, or
// replaces an entry with the same id.
func (r *Reconciler) ApplyAck(ctx context.Context, ack wire.MessageAck) (Message, error) {
	return r.applyAck(ctx, KeyFor(ack.Message, r.t.UserID()), ack)
}

func (r *Reconciler) applyAck(ctx context.Context, key Key, ack wire.MessageAck) (Message, error) {
	m := FromWire(ack.Message)
	if ack.TempID != "" {
		m.TempID = ack.TempID
	}
	if err := r.update(ctx, key, func(ms []Message) ([]Message, error) {
		return upsert(ms, m), nil
	}); err != nil {
		return m, fmt.Errorf("apply ack: %w", err)
	}
	return m, nil
}

// ApplyIncoming stores a pushed message. A message already cached under the
// same id (or temp id, for echoes of our own sends) is replaced, never
// duplicated. If the conversation is active the hook runs and the
// conversation is marked read.
func (r *Reconciler) ApplyIncoming(ctx context.Context, wm wire.Message) (Message, error) {
	m := FromWire(wm)
	key := KeyFor(wm, r.t.UserID())
	if err := r.update(ctx, key, func(ms []Message) ([]Message, error) {
		return upsert(ms, m), nil
	}); err != nil {
		return m, fmt.Errorf("apply incoming: %w", err)
	}

	if key == r.Active() {
		if r.onActive != nil {
			r.onActive(key, m)
		}
		if r.markRead && m.SenderID != r.t.UserID() {
			go r.markConversationRead(key)
		}
	}
	return m, nil
}

func (r *Reconciler) markConversationRead(key Key) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	if key.IsGroup() {
		err = r.t.MarkGroupRead(ctx, key.ID())
	} else {
		err = r.t.MarkDirectRead(ctx, key.ID())
	}
	if err != nil {
		r.logger.Debug("mark read failed", "conversation", key, "error", err)
	}
}

// LoadHistory fetches a page for key, merges it into the cache and returns
// the merged conversation. Concurrent loads of the same page share one
// fetch.
func (r *Reconciler) LoadHistory(ctx context.Context, key Key, page wire.Page) ([]Message, error) {
	flight := string(key) + "|" + strconv.Itoa(page.Limit) + "|" + page.Before
	v, err, _ := r.loads.Do(flight, func() (any, error) {
		var (
			h   wire.History
			err error
		)
		if key.IsGroup() {
			h, err = r.t.GroupMessageHistory(ctx, key.ID(), page)
		} else {
			h, err = r.t.DirectMessageHistory(ctx, key.ID(), page)
		}
		if err != nil {
			return nil, err
		}

		server := FromWireAll(h.Messages)
		var merged []Message
		if err := r.update(ctx, key, func(cached []Message) ([]Message, error) {
			merged = Merge(cached, server)
			return merged, nil
		}); err != nil {
			return nil, fmt.Errorf("store history: %w", err)
		}
		r.logger.Debug("history merged", "conversation", key, "fetched", len(server), "total", len(merged))
		return merged, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]Message)), nil
}

// Messages returns the cached conversation.
func (r *Reconciler) Messages(ctx context.Context, key Key) ([]Message, error) {
	return r.store.Load(ctx, key)
}

// --- Active conversation ---

// SetActive marks key as the conversation on screen. The empty key clears it.
func (r *Reconciler) SetActive(key Key) {
	r.activeMu.Lock()
	r.active = key
	r.activeMu.Unlock()
}

// Active returns the conversation on screen.
func (r *Reconciler) Active() Key {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()
	return r.active
}

// Attach applies pushed messages and acks from d to the cache. The returned
// func detaches.
func (r *Reconciler) Attach(d *event.Dispatcher) func() {
	ctx := context.Background()
	offs := []func(){
		event.On(d, func(e event.DirectMessage) { r.logErr(r.ApplyIncoming(ctx, e.Message)) }),
		event.On(d, func(e event.GroupMessage) { r.logErr(r.ApplyIncoming(ctx, e.Message)) }),
		event.On(d, func(e event.DirectMessageAck) { r.logErr(r.ApplyAck(ctx, e.Ack)) }),
		event.On(d, func(e event.GroupMessageAck) { r.logErr(r.ApplyAck(ctx, e.Ack)) }),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (r *Reconciler) logErr(_ Message, err error) {
	if err != nil {
		r.logger.Error("conversation update failed", "error", err)
	}
}

// --- Locking ---

func (r *Reconciler) lock(key Key) func() {
	r.locksMu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	r.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (r *Reconciler) update(ctx context.Context, key Key, fn func([]Message) ([]Message, error)) error {
	unlock := r.lock(key)
	defer unlock()
	return r.store.Update(ctx, key, fn)
}
