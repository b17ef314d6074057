package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"weakest-rival"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`
	AllowedOrigins          []string      `env:"HTTP_ALLOWED_ORIGINS" envDefault:"" envSeparator:","`

	Postgres    Postgres
	Redis       Redis
	Security    Security
	Questions   Questions
	Game        Game
	Janitor     Janitor
	Leaderboard Leaderboard
	Recorder    Recorder
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// DSN renders a pgx connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// Redis holds cache + pub/sub configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"12h"`
}

// Questions configures the question source.
type Questions struct {
	FetchTimeout    time.Duration `env:"QUESTION_FETCH_TIMEOUT_SECONDS" envDefault:"4s"`
	CacheTTL        time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"10m"`
	ExternalEnabled bool          `env:"QUESTION_EXTERNAL_ENABLED" envDefault:"true"`
	PoolSize        int           `env:"QUESTION_POOL_SIZE" envDefault:"120"`
}

// Game groups gameplay rules.
type Game struct {
	MaxPlayers              int           `env:"GAME_MAX_PLAYERS" envDefault:"8"`
	QuestionTime            time.Duration `env:"GAME_QUESTION_SECONDS" envDefault:"20s"`
	QuestionsPerPlayerRound int           `env:"GAME_QUESTIONS_PER_PLAYER_ROUND" envDefault:"2"`
	DuelQuestionsEach       int           `env:"GAME_DUEL_QUESTIONS_EACH" envDefault:"3"`
	FinalQuestionsEach      int           `env:"GAME_FINAL_QUESTIONS_EACH" envDefault:"5"`

	ChainBase           int     `env:"GAME_CHAIN_BASE" envDefault:"100"`
	StreakBonusPercent  float64 `env:"GAME_STREAK_BONUS_PERCENT" envDefault:"0.5"`
	MaxStreakMultiplier float64 `env:"GAME_MAX_STREAK_MULTIPLIER" envDefault:"4"`

	WildcardTimeDelta time.Duration `env:"GAME_WILDCARD_TIME_DELTA" envDefault:"10s"`

	LightningEvery      int           `env:"GAME_LIGHTNING_EVERY_ROUNDS" envDefault:"3"`
	LightningQuestions  int           `env:"GAME_LIGHTNING_QUESTIONS" envDefault:"5"`
	LightningThreshold  int           `env:"GAME_LIGHTNING_THRESHOLD" envDefault:"3"`
	LightningTimeBudget time.Duration `env:"GAME_LIGHTNING_TIME_BUDGET" envDefault:"30s"`
	LightningReward     int           `env:"GAME_LIGHTNING_REWARD" envDefault:"500"`

	ExamEvery  int           `env:"GAME_EXAM_EVERY_ROUNDS" envDefault:"2"`
	ExamWindow time.Duration `env:"GAME_EXAM_WINDOW" envDefault:"20s"`
	ExamBonus  int           `env:"GAME_EXAM_BONUS" envDefault:"200"`
}

// Janitor governs removal of finished or idle matches.
type Janitor struct {
	SweepInterval time.Duration `env:"JANITOR_SWEEP_INTERVAL" envDefault:"1m"`
	IdleTimeout   time.Duration `env:"JANITOR_IDLE_TIMEOUT" envDefault:"30m"`
}

// Leaderboard governs ranking windows and broadcast behavior.
type Leaderboard struct {
	TopN             int           `env:"LEADERBOARD_TOP" envDefault:"10"`
	Channel          string        `env:"LEADERBOARD_CHANNEL" envDefault:"leaderboard_updates"`
	EntryTTL         time.Duration `env:"LEADERBOARD_ENTRY_TTL" envDefault:"192h"`
	SnapshotInterval time.Duration `env:"LEADERBOARD_SNAPSHOT_INTERVAL" envDefault:"5m"`
}

// Recorder sizes the async persistence queue.
type Recorder struct {
	QueueSize    int           `env:"RECORDER_QUEUE_SIZE" envDefault:"512"`
	WriteTimeout time.Duration `env:"RECORDER_WRITE_TIMEOUT" envDefault:"3s"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Game.MaxPlayers < 2 {
		return nil, fmt.Errorf("GAME_MAX_PLAYERS must be at least 2, got %d", cfg.Game.MaxPlayers)
	}
	if cfg.Game.LightningThreshold > cfg.Game.LightningQuestions {
		return nil, fmt.Errorf("GAME_LIGHTNING_THRESHOLD (%d) exceeds GAME_LIGHTNING_QUESTIONS (%d)", cfg.Game.LightningThreshold, cfg.Game.LightningQuestions)
	}
	if cfg.Game.LightningReward < 0 {
		return nil, fmt.Errorf("GAME_LIGHTNING_REWARD must not be negative, got %d", cfg.Game.LightningReward)
	}
	if cfg.Game.ExamBonus < 0 {
		return nil, fmt.Errorf("GAME_EXAM_BONUS must not be negative, got %d", cfg.Game.ExamBonus)
	}
	if cfg.Game.ExamWindow <= 0 {
		return nil, fmt.Errorf("GAME_EXAM_WINDOW must be positive, got %s", cfg.Game.ExamWindow)
	}
	return cfg, nil
}
