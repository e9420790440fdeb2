package presence

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoralabs/amora-client/internal/api"
	"github.com/amoralabs/amora-client/internal/batch"
	"github.com/amoralabs/amora-client/internal/channels"
	"github.com/amoralabs/amora-client/internal/realtime"
	"github.com/amoralabs/amora-client/internal/storage"
	"github.com/amoralabs/amora-client/pkg/retry"
)

type stubConn struct {
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *stubConn) ReadMessage() ([]byte, error) {
	select {
	case payload := <-c.inbound:
		return payload, nil
	case <-c.done:
		return nil, io.ErrClosedPipe
	}
}

func (c *stubConn) WriteMessage([]byte) error { return nil }

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type stubDialer struct{}

func (stubDialer) Dial(context.Context, string, http.Header) (realtime.Conn, error) {
	conn := &stubConn{inbound: make(chan []byte, 8), done: make(chan struct{})}
	conn.inbound <- []byte(`{"event":"amora:connection_established","data":{"socket_id":"s1"}}`)
	return conn, nil
}

type pathRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *pathRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(`{"auth":"key:sig"}`)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func (r *pathRecorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == path {
			return true
		}
	}
	return false
}

type sinkSender struct {
	mu      sync.Mutex
	signals []batch.Signal
}

func (s *sinkSender) send(_ batch.Kind, signals []batch.Signal) error {
	s.mu.Lock()
	s.signals = append(s.signals, signals...)
	s.mu.Unlock()
	return nil
}

func newFixture(t *testing.T) (*Service, *realtime.Client, *channels.Manager, *pathRecorder, *sinkSender) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.SetItem(ctx, storage.KeyAuthToken, "token"))
	require.NoError(t, store.SetItem(ctx, storage.KeyUserID, "42"))

	recorder := &pathRecorder{}
	apiClient, err := api.New(api.Options{
		BaseURL:   "https://api.test",
		Store:     store,
		Transport: recorder,
	})
	require.NoError(t, err)

	manager := channels.NewManager()
	rt, err := realtime.New(realtime.Options{
		URL:       "wss://gateway.test/app/key",
		Dialer:    stubDialer{},
		API:       apiClient,
		Store:     store,
		Channels:  manager,
		Heartbeat: time.Hour,
		Backoff:   retry.Backoff{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond, Factor: 2, Jitter: 0},
	})
	require.NoError(t, err)

	sink := &sinkSender{}
	batcher := batch.NewManager(sink.send, batch.Config{
		Enabled:      true,
		MaxBatchSize: 50,
		Intervals: map[batch.Kind]time.Duration{
			batch.KindTyping:    10 * time.Millisecond,
			batch.KindHeartbeat: 10 * time.Millisecond,
		},
	})

	svc := New(apiClient, rt, batcher, store)
	return svc, rt, manager, recorder, sink
}

func TestConnectMarksOnlineAndJoinsGlobalGroup(t *testing.T) {
	svc, rt, manager, recorder, _ := newFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, rt.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return recorder.seen(onlinePath)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := manager.Get(globalChannel)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestStopMarksOffline(t *testing.T) {
	svc, rt, _, recorder, _ := newFixture(t)
	svc.Start(context.Background())
	require.NoError(t, rt.Connect(context.Background()))

	svc.Stop()

	assert.True(t, recorder.seen(offlinePath))
}

func TestJoinMatchRejoinedAfterReconnect(t *testing.T) {
	svc, rt, manager, _, _ := newFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, rt.Connect(context.Background()))
	require.NoError(t, svc.JoinMatch(context.Background(), "m1"))
	_, ok := manager.Get("presence-match.m1")
	require.True(t, ok)

	require.NoError(t, rt.ForceReconnect(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := manager.Get("presence-match.m1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestLeaveMatchDropsGroup(t *testing.T) {
	svc, rt, manager, _, _ := newFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, rt.Connect(context.Background()))
	require.NoError(t, svc.JoinMatch(context.Background(), "m1"))
	require.NoError(t, svc.LeaveMatch(context.Background(), "m1"))

	_, ok := manager.Get("presence-match.m1")
	assert.False(t, ok)
}

func TestTypingRoutesThroughBatcher(t *testing.T) {
	svc, _, _, _, sink := newFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.SetTyping(context.Background(), "chat-1", true)
	svc.SetTyping(context.Background(), "chat-1", false)

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.signals) == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	assert.Equal(t, false, sink.signals[0].Payload["typing"], "latest typing state wins")
	sink.mu.Unlock()
}
