package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/api"
	"github.com/amoralabs/amora-client/internal/channels"
	"github.com/amoralabs/amora-client/internal/model/enum"
	"github.com/amoralabs/amora-client/internal/obs"
	"github.com/amoralabs/amora-client/internal/push"
	"github.com/amoralabs/amora-client/internal/storage"
	"github.com/amoralabs/amora-client/pkg/retry"
)

// NotificationStore keeps local unread/like counters current. Updates are
// opportunistic; failures are logged and never block event dispatch.
type NotificationStore interface {
	IncrementUnread(ctx context.Context, userID string, delta int) error
	IncrementLikes(ctx context.Context, userID string, delta int) error
}

// Options wires a connection manager.
type Options struct {
	// URL overrides the gateway URL built from AppKey and Cluster.
	URL     string
	AppKey  string
	Cluster string
	// AuthEndpoint is the channel-authorization path on the API.
	AuthEndpoint string

	Dialer    Dialer
	API       *api.Client
	Store     storage.Store
	Channels  *channels.Manager
	Repo      NotificationStore
	Presenter push.Presenter

	Heartbeat     time.Duration
	PongWait      time.Duration
	MaxReconnects int
	OutboundCap   int
	Backoff       retry.Backoff
}

const (
	defaultHeartbeat = 30 * time.Second
	defaultPongWait  = 5 * time.Second
)

type pendingSub struct {
	chatID   string
	priority enum.Priority
}

// Client manages one realtime connection: the state machine, heartbeat,
// typed event dispatch, channel subscriptions and the outbound queue.
type Client struct {
	url           string
	authEndpoint  string
	dialer        Dialer
	api           *api.Client
	store         storage.Store
	channels      *channels.Manager
	repo          NotificationStore
	presenter     push.Presenter
	events        *dispatcher
	metrics       *metricsTracker
	backoff       retry.Backoff
	heartbeat     time.Duration
	pongWait      time.Duration
	maxReconnects int

	mu            sync.Mutex
	state         enum.ConnectionState
	conn          Conn
	socketID      string
	explicit      bool
	attempts      int
	retryTimer    *time.Timer
	sessionCancel context.CancelFunc
	pendingPings  map[string]time.Time
	pendingSubs   map[string]pendingSub
	outbound      *outboundQueue
}

// New builds a connection manager. API, Store and Channels are required.
func New(opt Options) (*Client, error) {
	if opt.API == nil || opt.Store == nil || opt.Channels == nil {
		return nil, errors.New("realtime: api client, store and channel manager are required")
	}
	if opt.URL == "" {
		if opt.AppKey == "" {
			return nil, errors.New("realtime: app key or explicit URL is required")
		}
		opt.URL = gatewayURL(opt.AppKey, opt.Cluster)
	}
	if opt.Dialer == nil {
		opt.Dialer = NewDialer()
	}
	if opt.AuthEndpoint == "" {
		opt.AuthEndpoint = "/api/v1/broadcasting/auth"
	}
	if opt.Heartbeat <= 0 {
		opt.Heartbeat = defaultHeartbeat
	}
	if opt.PongWait <= 0 {
		opt.PongWait = defaultPongWait
	}
	if opt.MaxReconnects <= 0 {
		opt.MaxReconnects = retry.DefaultMaxReconnects
	}
	if opt.Backoff == (retry.Backoff{}) {
		opt.Backoff = retry.ForStrategy(retry.StrategyConservative)
	}

	return &Client{
		url:           opt.URL,
		authEndpoint:  opt.AuthEndpoint,
		dialer:        opt.Dialer,
		api:           opt.API,
		store:         opt.Store,
		channels:      opt.Channels,
		repo:          opt.Repo,
		presenter:     opt.Presenter,
		events:        newDispatcher(),
		metrics:       &metricsTracker{},
		backoff:       opt.Backoff,
		heartbeat:     opt.Heartbeat,
		pongWait:      opt.PongWait,
		maxReconnects: opt.MaxReconnects,
		state:         enum.StateDisconnected,
		pendingPings:  make(map[string]time.Time),
		pendingSubs:   make(map[string]pendingSub),
		outbound:      newOutboundQueue(opt.OutboundCap, 0),
	}, nil
}

func gatewayURL(appKey, cluster string) string {
	host := "realtime.amora.app"
	if cluster != "" {
		host = fmt.Sprintf("realtime-%s.amora.app", cluster)
	}
	return fmt.Sprintf("wss://%s/app/%s?protocol=7&client=amora-go", host, appKey)
}

// On registers a listener for a known event name and returns its id.
func (c *Client) On(name EventName, fn Listener) ListenerID {
	if !Known(name) {
		logs.Warnf("listener for unknown event %q rejected", name)
		return 0
	}
	return c.events.on(name, fn)
}

// Off removes a listener registration.
func (c *Client) Off(name EventName, id ListenerID) {
	c.events.off(name, id)
}

// State returns the current connection state.
func (c *Client) State() enum.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Quality returns the latest latency-derived connection quality.
func (c *Client) Quality() enum.ConnectionQuality {
	return c.metrics.snapshot().Quality
}

// Snapshot returns the connection health record.
func (c *Client) Snapshot() Metrics {
	return c.metrics.snapshot()
}

// SocketID returns the gateway-assigned socket id, empty when not connected.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Connect establishes the realtime connection. Already connected or
// connecting is a no-op; reconnecting cancels the pending timer and dials
// immediately. Without stored credentials the client goes straight to failed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case enum.StateConnected, enum.StateConnecting:
		c.mu.Unlock()
		return nil
	case enum.StateReconnecting:
		c.cancelRetryLocked()
	}
	if !c.api.HasCredentials(ctx) {
		c.state = enum.StateFailed
		c.mu.Unlock()
		c.metrics.setState(enum.StateFailed)
		c.emitState(enum.StateFailed)
		c.emitError("no stored credentials", false)
		return errors.New("no stored credentials")
	}
	c.explicit = false
	c.state = enum.StateConnecting
	c.mu.Unlock()

	c.metrics.setState(enum.StateConnecting)
	c.emitState(enum.StateConnecting)
	return c.establish(ctx)
}

// Disconnect tears the connection down without scheduling a retry.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.explicit = true
	c.cancelRetryLocked()
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.socketID = ""
	already := c.state == enum.StateDisconnected
	c.state = enum.StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.channels.Clear()
	c.observeQuality(enum.QualityOffline)
	c.metrics.setState(enum.StateDisconnected)
	c.metrics.markDisconnected()
	if !already {
		c.emitState(enum.StateDisconnected)
	}
}

// ForceReconnect drops any live connection and pending retry timer and dials
// again from scratch with a fresh attempt budget.
func (c *Client) ForceReconnect(ctx context.Context) error {
	c.mu.Lock()
	c.cancelRetryLocked()
	c.explicit = false
	c.attempts = 0
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.socketID = ""
	c.state = enum.StateConnecting
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.channels.Clear()
	c.metrics.resetReconnects()
	c.metrics.setState(enum.StateConnecting)
	c.emitState(enum.StateConnecting)
	return c.establish(ctx)
}

func (c *Client) establish(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.url, http.Header{})
	if err != nil {
		logs.Warnf("realtime dial: %v", err)
		c.connectionLost(nil, err)
		return err
	}
	socketID, err := awaitEstablished(ctx, conn)
	if err != nil {
		_ = conn.Close()
		logs.Warnf("realtime handshake: %v", err)
		c.connectionLost(nil, err)
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.explicit {
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return errors.New("disconnected while connecting")
	}
	c.conn = conn
	c.socketID = socketID
	c.attempts = 0
	c.sessionCancel = cancel
	c.pendingPings = make(map[string]time.Time)
	c.state = enum.StateConnected
	pending := c.pendingSubs
	c.pendingSubs = make(map[string]pendingSub)
	queued := c.outbound.drain()
	c.mu.Unlock()

	c.metrics.setState(enum.StateConnected)
	c.metrics.markConnected()
	c.metrics.resetReconnects()
	c.raiseQualityTo(enum.QualityGood)
	logs.Infof("realtime connected, socket %s", socketID)
	c.emitState(enum.StateConnected)

	go c.readLoop(sessionCtx, conn)
	go c.heartbeatLoop(sessionCtx, conn)

	c.subscribeGlobal(ctx)
	for name, sub := range pending {
		if err := c.doSubscribe(ctx, conn, socketID, name, sub.chatID, sub.priority); err != nil {
			logs.Warnf("replaying subscription %s: %v", name, err)
		}
	}
	c.replay(conn, queued)
	return nil
}

// connectionLost handles both dial/handshake failures (conn nil) and a live
// session dropping. A stale session's read loop reporting after a newer
// connection took over is ignored.
func (c *Client) connectionLost(conn Conn, cause error) {
	c.mu.Lock()
	if conn != nil && c.conn != conn {
		c.mu.Unlock()
		return
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.socketID = ""
	explicit := c.explicit
	hasCredentials := c.api.HasCredentials(context.Background())

	var next enum.ConnectionState
	switch {
	case explicit:
		next = enum.StateDisconnected
	case !hasCredentials:
		next = enum.StateFailed
	default:
		next = enum.StateReconnecting
	}
	c.state = next
	c.mu.Unlock()

	c.channels.Clear()
	c.observeQuality(enum.QualityOffline)
	c.metrics.setState(next)
	c.metrics.markDisconnected()
	c.emitState(next)

	switch next {
	case enum.StateReconnecting:
		c.scheduleRetry()
	case enum.StateFailed:
		c.emitError("no stored credentials", false)
	}
}

func (c *Client) scheduleRetry() {
	c.mu.Lock()
	if c.state != enum.StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.cancelRetryLocked()
	c.attempts++
	attempt := c.attempts
	if attempt > c.maxReconnects {
		c.state = enum.StateFailed
		c.mu.Unlock()
		c.metrics.setState(enum.StateFailed)
		logs.Errorf("reconnect attempts exhausted after %d tries", attempt-1)
		c.emitState(enum.StateFailed)
		c.emitError("reconnect attempts exhausted", false)
		return
	}
	delay := c.backoff.Next(attempt)
	c.retryTimer = time.AfterFunc(delay, c.retryNow)
	c.mu.Unlock()

	c.metrics.markReconnect()
	obs.Reconnects.Inc()
	logs.Infof("reconnect attempt %d/%d in %s", attempt, c.maxReconnects, delay.Truncate(time.Millisecond))
}

func (c *Client) retryNow() {
	c.mu.Lock()
	if c.state != enum.StateReconnecting || c.explicit {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.state = enum.StateConnecting
	c.mu.Unlock()

	c.metrics.setState(enum.StateConnecting)
	c.emitState(enum.StateConnecting)
	_ = c.establish(context.Background())
}

func (c *Client) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func awaitEstablished(ctx context.Context, conn Conn) (string, error) {
	type result struct {
		id  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			payload, err := conn.ReadMessage()
			if err != nil {
				ch <- result{err: errors.Wrap(err, "read handshake")}
				return
			}
			env, err := decodeFrame(payload)
			if err != nil {
				logs.Warnf("handshake frame: %v", err)
				continue
			}
			if env.Event != wireEstablished {
				continue
			}
			var data struct {
				SocketID string `json:"socket_id"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil || data.SocketID == "" {
				ch <- result{err: errors.New("connection_established missing socket_id")}
				return
			}
			ch <- result{id: data.SocketID}
			return
		}
	}()

	select {
	case r := <-ch:
		return r.id, r.err
	case <-time.After(handshakeTimeout):
		return "", errors.New("timed out waiting for connection_established")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Warnf("realtime read: %v", err)
			c.connectionLost(conn, err)
			return
		}
		env, err := decodeFrame(payload)
		if err != nil {
			logs.Warnf("dropping malformed frame: %v", err)
			continue
		}
		c.handleFrame(env)
	}
}

func (c *Client) handleFrame(env envelope) {
	switch env.Event {
	case wirePong:
		c.handlePong(env.Data)
	case wireEstablished:
		// handled during the handshake
	case wireError:
		data := decodeData(env.Data)
		logs.Warnf("gateway error: %v", data)
		c.emitError(fmt.Sprintf("%v", data["message"]), true)
	default:
		c.handleEvent(env)
	}
}

func (c *Client) handleEvent(env envelope) {
	name := EventName(env.Event)
	if !Known(name) {
		logs.Warnf("dropping unknown event %q on %s", env.Event, env.Channel)
		return
	}
	if env.Channel != "" {
		c.channels.UpdateActivity(env.Channel)
	}
	data := decodeData(env.Data)
	c.applySideEffects(name, data)
	c.events.emit(Event{Name: name, Channel: env.Channel, Data: data})
}

// applySideEffects updates local counters and surfaces notifications for the
// events that warrant them. All of it is best-effort.
func (c *Client) applySideEffects(name EventName, data map[string]any) {
	ctx := context.Background()
	switch name {
	case EventChatMessageNew:
		if c.repo != nil {
			if uid := c.userID(ctx); uid != "" {
				if err := c.repo.IncrementUnread(ctx, uid, 1); err != nil {
					logs.Warnf("unread counter: %v", err)
				}
			}
		}
		if c.presenter != nil {
			message, _ := data["message"].(string)
			chatID, _ := data["chat_id"].(string)
			sender, _ := data["sender_name"].(string)
			if err := c.presenter.ShowMessageNotification(message, chatID, sender); err != nil {
				logs.Warnf("message notification: %v", err)
			}
		}
	case EventLikeNew:
		if c.repo != nil {
			if uid := c.userID(ctx); uid != "" {
				if err := c.repo.IncrementLikes(ctx, uid, 1); err != nil {
					logs.Warnf("like counter: %v", err)
				}
			}
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendPing(conn)
		}
	}
}

func (c *Client) sendPing(conn Conn) {
	id := uuid.NewString()
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.pendingPings[id] = time.Now()
	c.mu.Unlock()

	frame, err := encodeFrame(wirePing, "", map[string]any{"id": id})
	if err != nil {
		logs.Errorf("encode ping: %v", err)
		return
	}
	if err := conn.WriteMessage(frame); err != nil {
		logs.Warnf("send ping: %v", err)
		return
	}

	time.AfterFunc(c.pongWait, func() {
		c.mu.Lock()
		_, outstanding := c.pendingPings[id]
		if outstanding {
			delete(c.pendingPings, id)
		}
		stale := c.conn != conn
		c.mu.Unlock()
		if !outstanding || stale {
			return
		}
		logs.Warnf("heartbeat %s unanswered after %s", id, c.pongWait)
		c.observeQuality(enum.QualityPoor)
	})
}

func (c *Client) handlePong(raw json.RawMessage) {
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &data); err != nil || data.ID == "" {
		return
	}
	c.mu.Lock()
	sent, ok := c.pendingPings[data.ID]
	if ok {
		delete(c.pendingPings, data.ID)
	}
	c.mu.Unlock()
	if !ok {
		// late pong for an already timed-out ping
		return
	}
	rtt := time.Since(sent)
	obs.HeartbeatRTT.Observe(rtt.Seconds())
	c.metrics.setLatency(rtt)
	c.observeQuality(enum.QualityForLatency(rtt))
}

// observeQuality records a quality reading and resizes the channel budget.
func (c *Client) observeQuality(quality enum.ConnectionQuality) {
	c.metrics.setQuality(quality)
	c.channels.SetQuality(quality)
}

func (c *Client) raiseQualityTo(floor enum.ConnectionQuality) {
	if c.metrics.snapshot().Quality < floor {
		c.observeQuality(floor)
	} else {
		c.channels.SetQuality(c.metrics.snapshot().Quality)
	}
}

// SubscribeChat subscribes to a chat's channel. Safe to call while not
// connected: the subscription is queued and replayed once connected.
func (c *Client) SubscribeChat(ctx context.Context, chatID string) error {
	return c.Subscribe(ctx, "chat."+chatID, chatID, enum.PriorityMedium)
}

// SubscribePresence joins a presence group.
func (c *Client) SubscribePresence(ctx context.Context, name string) error {
	return c.Subscribe(ctx, name, "", enum.PriorityLow)
}

// Subscribe tracks a channel subscription. While not connected the request is
// queued, never lost, and replayed on the next connect.
func (c *Client) Subscribe(ctx context.Context, name, chatID string, priority enum.Priority) error {
	c.mu.Lock()
	if c.state != enum.StateConnected || c.conn == nil {
		c.pendingSubs[name] = pendingSub{chatID: chatID, priority: priority}
		c.mu.Unlock()
		logs.Infof("channel %s queued until connected", name)
		return nil
	}
	conn := c.conn
	socketID := c.socketID
	c.mu.Unlock()
	return c.doSubscribe(ctx, conn, socketID, name, chatID, priority)
}

func (c *Client) doSubscribe(ctx context.Context, conn Conn, socketID, name, chatID string, priority enum.Priority) error {
	payload := map[string]any{"channel": name}
	if requiresAuth(name) {
		auth, err := c.authorize(ctx, socketID, name)
		if err != nil {
			return err
		}
		payload["auth"] = auth
	}

	// The auth round trip runs unlocked; the connection may have dropped in
	// the meantime. Queue instead of tracking a channel on a dead conn.
	c.mu.Lock()
	if c.conn != conn {
		c.pendingSubs[name] = pendingSub{chatID: chatID, priority: priority}
		c.mu.Unlock()
		logs.Infof("connection lost during auth, channel %s queued", name)
		return nil
	}
	c.mu.Unlock()

	handle := &subscription{client: c, conn: conn, name: name}
	if !c.channels.Subscribe(name, handle, chatID, priority) {
		return nil
	}

	frame, err := encodeFrame(wireSubscribe, "", payload)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(frame); err != nil {
		return errors.Wrapf(err, "subscribe %s", name)
	}
	return nil
}

// Unsubscribe leaves a channel and forgets any queued subscription for it.
func (c *Client) Unsubscribe(name string) {
	c.mu.Lock()
	delete(c.pendingSubs, name)
	c.mu.Unlock()
	c.channels.Unsubscribe(name)
}

func requiresAuth(name string) bool {
	return !strings.HasPrefix(name, "public-")
}

func (c *Client) authorize(ctx context.Context, socketID, channel string) (string, error) {
	resp, err := c.api.Post(ctx, c.authEndpoint, map[string]string{
		"socket_id":    socketID,
		"channel_name": channel,
	}, nil)
	if err != nil {
		return "", errors.Wrapf(err, "authorize %s", channel)
	}
	var body struct {
		Auth string `json:"auth"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", errors.Wrapf(err, "parse auth for %s", channel)
	}
	if body.Auth == "" {
		return "", errors.Errorf("empty auth token for %s", channel)
	}
	return body.Auth, nil
}

func (c *Client) subscribeGlobal(ctx context.Context) {
	uid := c.userID(ctx)
	if uid == "" {
		logs.Warnf("no stored user id, skipping global channel")
		return
	}
	if err := c.Subscribe(ctx, "user."+uid, "", enum.PriorityHigh); err != nil {
		logs.Warnf("global channel: %v", err)
	}
}

func (c *Client) userID(ctx context.Context) string {
	uid, ok, err := c.store.GetItem(ctx, storage.KeyUserID)
	if err != nil || !ok {
		return ""
	}
	return uid
}

type subscription struct {
	client *Client
	conn   Conn
	name   string
}

// Unsubscribe tells the gateway to drop the channel. A no-op when the
// connection it was created on is gone.
func (s *subscription) Unsubscribe() error {
	s.client.mu.Lock()
	live := s.client.conn == s.conn
	s.client.mu.Unlock()
	if !live {
		return nil
	}
	frame, err := encodeFrame(wireUnsubscribe, "", map[string]any{"channel": s.name})
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(frame)
}

// SendMessage sends a chat message, queueing it while disconnected.
func (c *Client) SendMessage(chatID string, payload map[string]any) error {
	return c.sendOrQueue(&QueuedMessage{
		Kind:     KindMessage,
		Event:    "client-chat.message",
		Channel:  "chat." + chatID,
		Payload:  payload,
		Priority: enum.PriorityHigh,
	})
}

// SendTyping sends a typing indicator, queueing it while disconnected.
func (c *Client) SendTyping(chatID string, typing bool) error {
	return c.sendOrQueue(&QueuedMessage{
		Kind:     KindTyping,
		Event:    "client-chat.typing",
		Channel:  "chat." + chatID,
		Payload:  map[string]any{"typing": typing},
		Priority: enum.PriorityLow,
	})
}

// SendRead sends a read receipt, queueing it while disconnected.
func (c *Client) SendRead(chatID, messageID string) error {
	return c.sendOrQueue(&QueuedMessage{
		Kind:     KindRead,
		Event:    "client-chat.read",
		Channel:  "chat." + chatID,
		Payload:  map[string]any{"message_id": messageID},
		Priority: enum.PriorityMedium,
	})
}

// SendEvent sends an arbitrary client event on a channel.
func (c *Client) SendEvent(channel, event string, payload map[string]any) error {
	return c.sendOrQueue(&QueuedMessage{
		Kind:     KindEvent,
		Event:    event,
		Channel:  channel,
		Payload:  payload,
		Priority: enum.PriorityMedium,
	})
}

func (c *Client) sendOrQueue(msg *QueuedMessage) error {
	c.mu.Lock()
	if c.state != enum.StateConnected || c.conn == nil {
		c.outbound.push(msg)
		depth := c.outbound.len()
		c.mu.Unlock()
		logs.Infof("%s for %s queued while offline (%d pending)", msg.Kind, msg.Channel, depth)
		return nil
	}
	conn := c.conn
	c.mu.Unlock()
	return writeQueued(conn, msg)
}

func writeQueued(conn Conn, msg *QueuedMessage) error {
	frame, err := encodeFrame(msg.Event, msg.Channel, msg.Payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(frame)
}

// replay flushes messages queued while disconnected, in FIFO order. A write
// failure requeues the failed entry against its retry budget and puts the
// rest back untouched.
func (c *Client) replay(conn Conn, queued []*QueuedMessage) {
	if len(queued) == 0 {
		return
	}
	logs.Infof("replaying %d queued outbound messages", len(queued))
	for i, msg := range queued {
		if err := writeQueued(conn, msg); err != nil {
			logs.Warnf("replay %s for %s: %v", msg.Kind, msg.Channel, err)
			c.mu.Lock()
			c.outbound.requeue(msg)
			for _, rest := range queued[i+1:] {
				c.outbound.push(rest)
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *Client) emitState(state enum.ConnectionState) {
	c.events.emit(Event{
		Name: EventConnectionState,
		Data: map[string]any{"state": state.String()},
	})
}

func (c *Client) emitError(message string, canRetry bool) {
	c.events.emit(Event{
		Name: EventConnectionError,
		Data: map[string]any{"message": message, "canRetry": canRetry},
	})
}
