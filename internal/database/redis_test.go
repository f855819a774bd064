package database

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postalhq/postal-go/internal/config"
)

// recordingHook captures the commands a client would send and answers them
// without a server.
type recordingHook struct {
	mu       sync.Mutex
	commands [][]interface{}
	lrange   []string
}

func (h *recordingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *recordingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.record(cmd)
		if c, ok := cmd.(*redis.StringSliceCmd); ok {
			c.SetVal(h.lrange)
		}
		return nil
	}
}

func (h *recordingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			switch cmd.Name() {
			case "multi", "exec":
			default:
				h.record(cmd)
			}
		}
		return nil
	}
}

func (h *recordingHook) record(cmd redis.Cmder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd.Args())
}

func newHookedRedis(t *testing.T) (*Redis, *recordingHook) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	hook := &recordingHook{}
	client.AddHook(hook)
	return &Redis{Client: client}, hook
}

func TestRedis_PushCappedCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		maxLen int64
		values []string
		want   [][]interface{}
	}{
		{
			name:   "capped",
			maxLen: 100,
			values: []string{"c", "b", "a"},
			want: [][]interface{}{
				{"lpush", "postal:history", "c", "b", "a"},
				{"ltrim", "postal:history", int64(0), int64(99)},
			},
		},
		{
			name:   "uncapped",
			maxLen: 0,
			values: []string{"a"},
			want: [][]interface{}{
				{"lpush", "postal:history", "a"},
			},
		},
		{
			name:   "nothing to push",
			maxLen: 10,
			values: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, hook := newHookedRedis(t)
			require.NoError(t, r.PushCapped(context.Background(), "postal:history", tt.maxLen, tt.values...))
			assert.Equal(t, tt.want, hook.commands)
		})
	}
}

func TestRedis_RangeAndHealthCheck(t *testing.T) {
	t.Parallel()

	r, hook := newHookedRedis(t)
	hook.lrange = []string{"newest", "older"}

	got, err := r.Range(context.Background(), "postal:history", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "older"}, got)

	require.NoError(t, r.HealthCheck(context.Background()))

	assert.Equal(t, [][]interface{}{
		{"lrange", "postal:history", int64(0), int64(4)},
		{"ping"},
	}, hook.commands)
}

// TestRedis_Live runs against a real server when POSTAL_TEST_REDIS_ADDR is
// set, e.g. POSTAL_TEST_REDIS_ADDR=localhost:6379.
func TestRedis_Live(t *testing.T) {
	addr := os.Getenv("POSTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POSTAL_TEST_REDIS_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.RedisConfig{Host: host, Port: port, DB: 15}
	ctx := context.Background()

	r, err := NewRedis(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	key := "postal:test:" + t.Name()
	require.NoError(t, r.Del(ctx, key).Err())
	t.Cleanup(func() { _ = r.Del(context.Background(), key).Err() })

	require.NoError(t, r.PushCapped(ctx, key, 3, "1", "2"))
	require.NoError(t, r.PushCapped(ctx, key, 3, "4", "3"))

	got, err := r.Range(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "2"}, got)
}
