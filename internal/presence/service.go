package presence

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/api"
	"github.com/amoralabs/amora-client/internal/batch"
	"github.com/amoralabs/amora-client/internal/model/enum"
	"github.com/amoralabs/amora-client/internal/realtime"
	"github.com/amoralabs/amora-client/internal/storage"
)

const (
	onlinePath    = "/api/v1/presence/online"
	offlinePath   = "/api/v1/presence/offline"
	globalChannel = "presence-online"

	defaultHeartbeat = 30 * time.Second
)

// Service keeps the server's view of the user's presence current: online and
// offline marks, the global presence group, per-match groups, and the
// periodic presence heartbeat.
type Service struct {
	api      *api.Client
	rt       *realtime.Client
	batch    *batch.Manager
	store    storage.Store
	interval time.Duration

	mu       sync.Mutex
	matches  map[string]struct{}
	cancel   context.CancelFunc
	listener realtime.ListenerID
}

// New wires a presence service. Start must be called before it does anything.
func New(apiClient *api.Client, rt *realtime.Client, batcher *batch.Manager, store storage.Store) *Service {
	return &Service{
		api:      apiClient,
		rt:       rt,
		batch:    batcher,
		store:    store,
		interval: defaultHeartbeat,
		matches:  make(map[string]struct{}),
	}
}

// Start hooks connection transitions and runs the heartbeat loop until Stop.
func (s *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.listener = s.rt.On(realtime.EventConnectionState, func(e realtime.Event) {
		if e.Data["state"] == enum.StateConnected.String() {
			go s.onConnected(runCtx)
		}
	})
	go s.heartbeatLoop(runCtx)
}

// Stop marks the user offline and leaves every group before the transport
// goes away.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	groups := make([]string, 0, len(s.matches))
	for id := range s.matches {
		groups = append(groups, id)
	}
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	s.rt.Off(realtime.EventConnectionState, s.listener)

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	for _, id := range groups {
		if err := s.LeaveMatch(ctx, id); err != nil {
			logs.Warnf("leave match %s: %v", id, err)
		}
	}
	if err := s.MarkOffline(ctx); err != nil {
		logs.Warnf("mark offline: %v", err)
	}
	cancel()
}

func (s *Service) onConnected(ctx context.Context) {
	if err := s.MarkOnline(ctx); err != nil {
		logs.Warnf("mark online: %v", err)
	}
	if err := s.rt.SubscribePresence(ctx, globalChannel); err != nil {
		logs.Warnf("join %s: %v", globalChannel, err)
	}
	s.mu.Lock()
	matches := make([]string, 0, len(s.matches))
	for id := range s.matches {
		matches = append(matches, id)
	}
	s.mu.Unlock()
	for _, id := range matches {
		if err := s.rt.SubscribePresence(ctx, matchChannel(id)); err != nil {
			logs.Warnf("rejoin match %s: %v", id, err)
		}
	}
}

func (s *Service) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.rt.State() != enum.StateConnected {
				continue
			}
			s.batch.Add(batch.KindHeartbeat, map[string]any{"online": true}, "", s.userID(ctx), false)
		}
	}
}

// MarkOnline tells the server the user is reachable.
func (s *Service) MarkOnline(ctx context.Context) error {
	_, err := s.api.Post(ctx, onlinePath, nil, nil)
	return errors.Wrap(err, "mark online")
}

// MarkOffline tells the server the user is gone. Called before teardown so
// the peer sees the transition instead of waiting for a timeout.
func (s *Service) MarkOffline(ctx context.Context) error {
	_, err := s.api.Post(ctx, offlinePath, nil, nil)
	return errors.Wrap(err, "mark offline")
}

// JoinMatch subscribes the per-match presence group and remembers it for
// replay after a reconnect.
func (s *Service) JoinMatch(ctx context.Context, matchID string) error {
	s.mu.Lock()
	s.matches[matchID] = struct{}{}
	s.mu.Unlock()
	return s.rt.SubscribePresence(ctx, matchChannel(matchID))
}

// LeaveMatch drops the per-match presence group.
func (s *Service) LeaveMatch(_ context.Context, matchID string) error {
	s.mu.Lock()
	delete(s.matches, matchID)
	s.mu.Unlock()
	s.rt.Unsubscribe(matchChannel(matchID))
	return nil
}

// SetTyping reports typing state through the batching layer so rapid
// keystrokes coalesce to the latest state per chat.
func (s *Service) SetTyping(ctx context.Context, chatID string, typing bool) {
	s.batch.Add(batch.KindTyping, map[string]any{"typing": typing}, chatID, s.userID(ctx), false)
}

func (s *Service) userID(ctx context.Context) string {
	uid, ok, err := s.store.GetItem(ctx, storage.KeyUserID)
	if err != nil || !ok {
		return ""
	}
	return uid
}

func matchChannel(matchID string) string {
	return "presence-match." + matchID
}
