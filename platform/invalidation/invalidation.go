// Package invalidation broadcasts cache invalidation notices between
// processes over Redis pub/sub.
// This is part of the platform layer and contains no business logic.
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"recruitment_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel carries every cache invalidation notice.
const DefaultChannel = "automation:cache:invalidate"

// Notice names the cache to drop. Key narrows it (for example a company id);
// an empty key means everything in that scope.
type Notice struct {
	Scope string `json:"scope"`
	Key   string `json:"key,omitempty"`
}

// Handler reacts to a notice received from any process, including this one.
type Handler func(Notice)

// Broadcaster publishes notices and fans received ones out to local handlers.
type Broadcaster interface {
	Publish(ctx context.Context, n Notice) error
	OnNotice(scope string, h Handler)
}

// Local delivers notices only inside the current process. It is used when
// Redis is not configured.
type Local struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewLocal creates a process-local broadcaster.
func NewLocal() *Local {
	return &Local{handlers: make(map[string][]Handler)}
}

// Publish implements Broadcaster.
func (l *Local) Publish(_ context.Context, n Notice) error {
	l.dispatch(n)
	return nil
}

// OnNotice implements Broadcaster.
func (l *Local) OnNotice(scope string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[scope] = append(l.handlers[scope], h)
}

func (l *Local) dispatch(n Notice) {
	l.mu.RLock()
	handlers := append([]Handler(nil), l.handlers[n.Scope]...)
	l.mu.RUnlock()
	for _, h := range handlers {
		h(n)
	}
}

// Redis publishes notices on a channel and dispatches everything it hears to
// local handlers. Published notices are also applied locally right away, so
// a process sees its own writes even before Listen runs.
type Redis struct {
	*Local
	client  redis.UniversalClient
	channel string
	log     *logger.Logger
}

// NewRedis creates a Redis backed broadcaster. Call Listen to start
// receiving.
func NewRedis(client redis.UniversalClient, channel string, log *logger.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{Local: NewLocal(), client: client, channel: channel, log: log}
}

// Publish implements Broadcaster.
func (r *Redis) Publish(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	r.dispatch(n)
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and blocks until ctx is done. ready, when
// non-nil, is closed once the subscription is confirmed.
func (r *Redis) Listen(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notice
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				r.log.Warn("invalid invalidation notice", slog.String("error", err.Error()))
				continue
			}
			r.dispatch(n)
		}
	}
}
