package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// Supported leaderboard windows.
const (
	WindowDaily   = "daily"
	WindowWeekly  = "weekly"
	WindowAllTime = "all_time"
)

var defaultWindows = []string{WindowDaily, WindowWeekly, WindowAllTime}

// Entry represents a leaderboard record sent to clients.
type Entry struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	Wins        int       `json:"wins"`
	Games       int       `json:"games"`
}

// RecordRequest carries one player's result from a finished match. Score is
// the player's banked contribution.
type RecordRequest struct {
	UserID        uuid.UUID
	DisplayName   string
	Score         int
	CorrectCount  int
	QuestionCount int
	Won           bool
	MatchID       uuid.UUID
	Windows       []string
	Eligible      bool
}

// ServiceOptions configures leaderboard service behavior.
type ServiceOptions struct {
	TopN           int
	PubSubChannel  string
	Windows        []string
	EntryTTL       time.Duration
	RedisKeyPrefix string
}

// Service manages leaderboard state in Redis and emits updates over Pub/Sub.
type Service struct {
	redis         redis.UniversalClient
	logger        zerolog.Logger
	topN          int
	pubsubChannel string
	windows       []string
	entryTTL      time.Duration
	prefix        string
}

// NewService constructs a leaderboard service instance.
func NewService(rdb redis.UniversalClient, logger zerolog.Logger, opts ServiceOptions) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = 10
	}
	channel := opts.PubSubChannel
	if channel == "" {
		channel = "leaderboard_updates"
	}
	windows := opts.Windows
	if len(windows) == 0 {
		windows = defaultWindows
	}
	prefix := opts.RedisKeyPrefix
	if prefix == "" {
		prefix = "lb"
	}

	return &Service{
		redis:         rdb,
		logger:        logger.With().Str("component", "leaderboard").Logger(),
		topN:          topN,
		pubsubChannel: channel,
		windows:       windows,
		entryTTL:      opts.EntryTTL,
		prefix:        prefix,
	}
}

// Windows lists the windows the service maintains.
func (s *Service) Windows() []string {
	return append([]string(nil), s.windows...)
}

// RecordResult adds the player's result to every applicable window.
func (s *Service) RecordResult(ctx context.Context, req RecordRequest) error {
	if !req.Eligible {
		return nil
	}

	windows := req.Windows
	if len(windows) == 0 {
		windows = s.windows
	}

	entry := Entry{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Score:       req.Score,
		Wins:        boolToInt(req.Won),
		Games:       1,
	}

	for _, window := range windows {
		if err := s.updateWindow(ctx, window, entry, req.CorrectCount, req.QuestionCount); err != nil {
			return err
		}
	}
	return nil
}

// Top retrieves the top N entries for a given window.
func (s *Service) Top(ctx context.Context, window string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	zKey := s.leaderboardKey(window)
	results, err := s.redis.ZRevRangeWithScores(ctx, zKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		meta, err := s.readMeta(ctx, window, member)
		if err != nil {
			s.logger.Warn().Err(err).Str("member", member).Msg("failed to read leaderboard metadata")
			continue
		}
		meta.Score = int(z.Score)
		entries = append(entries, *meta)
	}
	return entries, nil
}

// Publish announces the current top entries of each window for a finished
// match.
func (s *Service) Publish(ctx context.Context, matchID uuid.UUID) error {
	for _, window := range s.windows {
		entries, err := s.Top(ctx, window, s.topN)
		if err != nil {
			s.logger.Warn().Err(err).Str("window", window).Msg("failed to collect leaderboard update")
			continue
		}
		if len(entries) == 0 {
			continue
		}

		payload := ws.LeaderboardUpdatePayload{
			Window:  window,
			MatchID: matchID.String(),
			Top:     toWSEntries(entries),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal leaderboard update: %w", err)
		}
		if err := s.redis.Publish(ctx, s.pubsubChannel, data).Err(); err != nil {
			return fmt.Errorf("publish leaderboard update: %w", err)
		}
	}
	return nil
}

func (s *Service) updateWindow(ctx context.Context, window string, entry Entry, correct, questions int) error {
	zKey := s.leaderboardKey(window)
	metaKey := s.metaKey(window, entry.UserID)

	pipe := s.redis.TxPipeline()
	pipe.ZIncrBy(ctx, zKey, float64(entry.Score), entry.UserID.String())
	pipe.HIncrBy(ctx, metaKey, "wins", int64(entry.Wins))
	pipe.HIncrBy(ctx, metaKey, "games", int64(entry.Games))
	pipe.HIncrBy(ctx, metaKey, "correct", int64(correct))
	pipe.HIncrBy(ctx, metaKey, "questions", int64(questions))
	pipe.HSet(ctx, metaKey, map[string]interface{}{
		"display_name": entry.DisplayName,
	})
	if s.entryTTL > 0 && window != WindowAllTime {
		pipe.Expire(ctx, zKey, s.entryTTL)
		pipe.Expire(ctx, metaKey, s.entryTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update leaderboard window %s: %w", window, err)
	}
	return nil
}

func (s *Service) readMeta(ctx context.Context, window string, member string) (*Entry, error) {
	userID, err := uuid.Parse(member)
	if err != nil {
		return nil, fmt.Errorf("parse member %q: %w", member, err)
	}
	data, err := s.redis.HGetAll(ctx, s.metaKey(window, userID)).Result()
	if err != nil {
		return nil, err
	}

	entry := &Entry{UserID: userID}
	if len(data) == 0 {
		return entry, nil
	}
	entry.DisplayName = data["display_name"]
	entry.Wins = parseInt(data["wins"])
	entry.Games = parseInt(data["games"])
	return entry, nil
}

func (s *Service) leaderboardKey(window string) string {
	return fmt.Sprintf("%s:%s", s.prefix, window)
}

func (s *Service) metaKey(window string, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:meta:%s", s.prefix, window, userID.String())
}

// IsValidWindow reports whether window is a known leaderboard window.
func IsValidWindow(window string) bool {
	switch window {
	case WindowDaily, WindowWeekly, WindowAllTime:
		return true
	default:
		return false
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseInt(val string) int {
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return i
}
