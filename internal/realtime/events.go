package realtime

import (
	"sync"

	"github.com/yanun0323/logs"
)

// EventName identifies a typed event in the closed dispatch set.
type EventName string

const (
	EventChatMessageNew     EventName = "chat.message.new"
	EventChatMessageEdited  EventName = "chat.message.edited"
	EventChatMessageDeleted EventName = "chat.message.deleted"
	EventChatMessageRead    EventName = "chat.message.read"
	EventChatTyping         EventName = "chat.typing"

	EventMatchNew        EventName = "match.new"
	EventLikeNew         EventName = "like.new"
	EventNotificationNew EventName = "notification.new"
	EventIncomingCall    EventName = "call.incoming"
	EventUnreadCount     EventName = "unread.count.updated"

	EventChatListMessage EventName = "chatlist.message"
	EventChatListUpdated EventName = "chatlist.updated"
	EventChatListUnread  EventName = "chatlist.unread.changed"

	EventConnectionState EventName = "connection.state.changed"
	EventConnectionError EventName = "connection.error"

	EventPresenceJoined        EventName = "presence.member.joined"
	EventPresenceLeft          EventName = "presence.member.left"
	EventPresenceHere          EventName = "presence.here"
	EventPresenceTypingChanged EventName = "presence.typing.changed"
	EventPresenceOnlineChanged EventName = "presence.online.changed"
)

var knownEvents = map[EventName]struct{}{
	EventChatMessageNew: {}, EventChatMessageEdited: {}, EventChatMessageDeleted: {},
	EventChatMessageRead: {}, EventChatTyping: {},
	EventMatchNew: {}, EventLikeNew: {}, EventNotificationNew: {}, EventIncomingCall: {},
	EventUnreadCount: {},
	EventChatListMessage: {}, EventChatListUpdated: {}, EventChatListUnread: {},
	EventConnectionState: {}, EventConnectionError: {},
	EventPresenceJoined: {}, EventPresenceLeft: {}, EventPresenceHere: {},
	EventPresenceTypingChanged: {}, EventPresenceOnlineChanged: {},
}

// Known reports whether name belongs to the closed event set.
func Known(name EventName) bool {
	_, ok := knownEvents[name]
	return ok
}

// Event is a typed event delivered to listeners. Data is the payload
// validated once at ingress; internal code never re-parses wire bytes.
type Event struct {
	Name    EventName
	Channel string
	Data    map[string]any
}

// Listener receives events. Listeners run synchronously in registration
// order; a panicking listener is isolated and never aborts its siblings.
type Listener func(Event)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

type dispatcher struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[EventName][]listenerEntry
}

func newDispatcher() *dispatcher {
	return &dispatcher{listeners: make(map[EventName][]listenerEntry)}
}

func (d *dispatcher) on(name EventName, fn Listener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners[name] = append(d.listeners[name], listenerEntry{id: id, fn: fn})
	return id
}

func (d *dispatcher) off(name EventName, id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.listeners[name]
	for i, entry := range entries {
		if entry.id == id {
			d.listeners[name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (d *dispatcher) emit(event Event) {
	d.mu.Lock()
	entries := append([]listenerEntry(nil), d.listeners[event.Name]...)
	d.mu.Unlock()

	for _, entry := range entries {
		invoke(entry.fn, event)
	}
}

func invoke(fn Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("listener for %s panicked: %v", event.Name, r)
		}
	}()
	fn(event)
}
