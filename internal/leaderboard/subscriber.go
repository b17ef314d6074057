package leaderboard

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// fanout is the part of the callback hub the broadcaster needs.
type fanout interface {
	BroadcastAll(msg ws.Message) int
}

// Broadcaster listens for Redis Pub/Sub leaderboard updates and forwards them to all clients.
type Broadcaster struct {
	redis   redis.UniversalClient
	hub     fanout
	channel string
	logger  zerolog.Logger
}

// NewBroadcaster creates a Pub/Sub powered leaderboard broadcaster.
func NewBroadcaster(rdb redis.UniversalClient, hub fanout, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = "leaderboard_updates"
	}
	return &Broadcaster{
		redis:   rdb,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "leaderboard_broadcaster").Logger(),
	}
}

// Run subscribes to the update channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg.Payload)
		}
	}
}

func (b *Broadcaster) forward(payload string) int {
	var evt ws.LeaderboardUpdatePayload
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode leaderboard update payload")
		return 0
	}

	msg, err := ws.NewMessage(ws.TypeLeaderboardUpdate, evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal leaderboard WS payload")
		return 0
	}
	delivered := b.hub.BroadcastAll(msg)
	b.logger.Debug().Str("window", evt.Window).Int("delivered", delivered).Msg("leaderboard update forwarded")
	return delivered
}
