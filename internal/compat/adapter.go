package compat

import (
	"sync"

	"github.com/amoralabs/amora-client/internal/realtime"
)

// EventSource is the typed listener surface the adapters translate onto.
type EventSource interface {
	On(name realtime.EventName, fn realtime.Listener) realtime.ListenerID
	Off(name realtime.EventName, id realtime.ListenerID)
}

// GlobalCallbacks is the legacy callback bundle. Nil fields are skipped.
type GlobalCallbacks struct {
	OnNewMessage      func(data map[string]any)
	OnNewMatch        func(data map[string]any)
	OnNewLike         func(data map[string]any)
	OnNotification    func(data map[string]any)
	OnIncomingCall    func(data map[string]any)
	OnUnreadCount     func(count int)
	OnConnectionState func(state string)
}

type registration struct {
	name realtime.EventName
	id   realtime.ListenerID
}

// Adapter bridges the legacy callback API onto typed event listeners. It is
// a boundary shim; nothing inside the client depends on it.
type Adapter struct {
	source EventSource

	mu     sync.Mutex
	global []registration
}

func NewAdapter(source EventSource) *Adapter {
	return &Adapter{source: source}
}

// SetGlobalCallbacks installs the callback bundle, replacing any previous
// one. Passing the zero value clears all global callbacks.
func (a *Adapter) SetGlobalCallbacks(cb GlobalCallbacks) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearGlobalLocked()

	a.registerLocked(realtime.EventChatMessageNew, wrap(cb.OnNewMessage))
	a.registerLocked(realtime.EventMatchNew, wrap(cb.OnNewMatch))
	a.registerLocked(realtime.EventLikeNew, wrap(cb.OnNewLike))
	a.registerLocked(realtime.EventNotificationNew, wrap(cb.OnNotification))
	a.registerLocked(realtime.EventIncomingCall, wrap(cb.OnIncomingCall))

	if cb.OnUnreadCount != nil {
		a.registerLocked(realtime.EventUnreadCount, func(e realtime.Event) {
			cb.OnUnreadCount(intField(e.Data, "count"))
		})
	}
	if cb.OnConnectionState != nil {
		a.registerLocked(realtime.EventConnectionState, func(e realtime.Event) {
			state, _ := e.Data["state"].(string)
			cb.OnConnectionState(state)
		})
	}
}

// ClearGlobalCallbacks removes the installed bundle.
func (a *Adapter) ClearGlobalCallbacks() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearGlobalLocked()
}

// SubscribeChatList attaches the legacy chat-list callbacks and returns the
// function that detaches them.
func (a *Adapter) SubscribeChatList(
	onMessage func(data map[string]any),
	onUpdated func(data map[string]any),
	onUnread func(data map[string]any),
) func() {
	var regs []registration
	add := func(name realtime.EventName, fn func(map[string]any)) {
		if fn == nil {
			return
		}
		id := a.source.On(name, wrap(fn))
		regs = append(regs, registration{name: name, id: id})
	}
	add(realtime.EventChatListMessage, onMessage)
	add(realtime.EventChatListUpdated, onUpdated)
	add(realtime.EventChatListUnread, onUnread)

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, reg := range regs {
				a.source.Off(reg.name, reg.id)
			}
		})
	}
}

func (a *Adapter) registerLocked(name realtime.EventName, fn realtime.Listener) {
	if fn == nil {
		return
	}
	id := a.source.On(name, fn)
	a.global = append(a.global, registration{name: name, id: id})
}

func (a *Adapter) clearGlobalLocked() {
	for _, reg := range a.global {
		a.source.Off(reg.name, reg.id)
	}
	a.global = nil
}

func wrap(fn func(map[string]any)) realtime.Listener {
	if fn == nil {
		return nil
	}
	return func(e realtime.Event) { fn(e.Data) }
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
