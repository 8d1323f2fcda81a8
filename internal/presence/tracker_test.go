package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []models.Presence
	err     error
}

func (s *recordingSink) UpdatePresence(ctx context.Context, p models.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, p)
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrackerRefCountsSessions(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewTracker(discardLogger(), sink)
	ctx := context.Background()

	_, changed := tracker.SetOnline(ctx, 1)
	require.True(t, changed)
	_, changed = tracker.SetOnline(ctx, 1)
	require.False(t, changed)

	p, changed := tracker.SetOffline(ctx, 1)
	require.False(t, changed)
	require.True(t, p.Online)
	require.True(t, tracker.Get(1).Online)

	p, changed = tracker.SetOffline(ctx, 1)
	require.True(t, changed)
	require.False(t, p.Online)
	require.False(t, tracker.Get(1).Online)

	require.Len(t, sink.updates, 2)
	assert.True(t, sink.updates[0].Online)
	assert.False(t, sink.updates[1].Online)
}

func TestTrackerOfflineIsIdempotent(t *testing.T) {
	tracker := NewTracker(discardLogger())
	ctx := context.Background()

	_, changed := tracker.SetOffline(ctx, 7)
	require.False(t, changed)

	tracker.SetOnline(ctx, 7)
	tracker.SetOffline(ctx, 7)
	_, changed = tracker.SetOffline(ctx, 7)
	require.False(t, changed)
	require.Equal(t, 0, tracker.OnlineCount())
}

func TestTrackerUpdatesLastSeenWithFlag(t *testing.T) {
	tracker := NewTracker(discardLogger())
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return first }
	tracker.SetOnline(context.Background(), 3)

	second := first.Add(time.Minute)
	tracker.now = func() time.Time { return second }
	p, _ := tracker.SetOffline(context.Background(), 3)

	require.Equal(t, second, p.LastSeen)
	require.Equal(t, second, tracker.Get(3).LastSeen)
}

func TestTrackerSinkFailureIsNotFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	tracker := NewTracker(discardLogger(), sink)

	_, changed := tracker.SetOnline(context.Background(), 2)
	require.True(t, changed)
	require.True(t, tracker.Get(2).Online)
}

func TestTrackerConcurrentSessions(t *testing.T) {
	tracker := NewTracker(discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.SetOnline(ctx, 1)
			tracker.SetOffline(ctx, 1)
		}()
	}
	wg.Wait()

	require.False(t, tracker.Get(1).Online)
	require.Equal(t, 0, tracker.OnlineCount())
}

type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttl  time.Duration
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	val, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func TestRedisMirrorRoundTrip(t *testing.T) {
	client := &fakeRedis{data: map[string]string{}}
	mirror := NewRedisMirror(client, time.Hour)
	ctx := context.Background()
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, mirror.UpdatePresence(ctx, models.Presence{UserID: 4, Online: true, LastSeen: seen}))
	require.Contains(t, client.data, "chat:presence:4")
	require.Equal(t, time.Hour, client.ttl)

	p, ok, err := mirror.Load(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Online)
	require.True(t, seen.Equal(p.LastSeen))

	_, ok, err = mirror.Load(ctx, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

// gatedSink holds the first online update until release is closed.
type gatedSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSink) UpdatePresence(ctx context.Context, p models.Presence) error {
	if p.Online {
		first := false
		s.once.Do(func() { first = true })
		if first {
			close(s.entered)
			<-s.release
		}
	}
	return s.recordingSink.UpdatePresence(ctx, p)
}

func (s *gatedSink) snapshot() []models.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Presence(nil), s.updates...)
}

func TestTrackerSinksFollowStateOrder(t *testing.T) {
	sink := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}
	tracker := NewTracker(discardLogger(), sink)
	ctx := context.Background()

	onlineDone := make(chan struct{})
	go func() {
		defer close(onlineDone)
		tracker.SetOnline(ctx, 1)
	}()
	<-sink.entered

	offlineDone := make(chan struct{})
	go func() {
		defer close(offlineDone)
		tracker.SetOffline(ctx, 1)
	}()

	require.Eventually(t, func() bool { return !tracker.Get(1).Online }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return len(sink.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(sink.release)
	<-onlineDone
	<-offlineDone

	updates := sink.snapshot()
	require.Len(t, updates, 2)
	assert.True(t, updates[0].Online)
	assert.False(t, updates[1].Online)
	assert.False(t, tracker.Get(1).Online)
}
