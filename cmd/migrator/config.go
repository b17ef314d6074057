package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the migrator's connection settings. Each flag also reads
// PG_<FLAG> from the environment, except dir which reads MIGRATIONS_DIR.
type Config struct {
	host     string
	port     int
	user     string
	password string
	database string
	sslMode  string
	dir      string
}

func (c *Config) validate() error {
	var missing []string
	if c.user == "" {
		missing = append(missing, "--user")
	}
	if c.password == "" {
		missing = append(missing, "--password")
	}
	if c.database == "" {
		missing = append(missing, "--database")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return nil
}

func (c *Config) dsn() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.user, c.password),
		Host:     fmt.Sprintf("%s:%d", c.host, c.port),
		Path:     c.database,
		RawQuery: url.Values{"sslmode": {c.sslMode}}.Encode(),
	}
	return u.String()
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "migrator",
		Short: "Applies the weakest-rival Postgres schema with goose.",
		Args:  cobra.NoArgs,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.host, "host", "localhost", "database host (env: PG_HOST)")
	fs.IntVar(&cfg.port, "port", 5432, "database port (env: PG_PORT)")
	fs.StringVar(&cfg.user, "user", "", "database user (env: PG_USER)")
	fs.StringVar(&cfg.password, "password", "", "database password (env: PG_PASSWORD)")
	fs.StringVar(&cfg.database, "database", "", "database name (env: PG_DATABASE)")
	fs.StringVar(&cfg.sslMode, "ssl-mode", "disable", "sslmode connection parameter (env: PG_SSL_MODE)")
	fs.StringVarP(&cfg.dir, "dir", "d", "db/migrations", "directory containing migration files (env: MIGRATIONS_DIR)")

	_ = v.BindEnv("dir", "MIGRATIONS_DIR")
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		if f.Name != "dir" {
			_ = v.BindEnv(f.Name)
		}
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(
		migrateCmd(cfg, "up", "Apply all pending migrations", goose.Up),
		migrateCmd(cfg, "down", "Roll back the latest migration", goose.Down),
		migrateCmd(cfg, "status", "Print the status of every migration", goose.Status),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

type gooseFunc func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error

func migrateCmd(cfg *Config, use, short string, run gooseFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			dir, err := migrationDir(cfg.dir)
			if err != nil {
				return err
			}

			db, err := sql.Open("pgx", cfg.dsn())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			log.Info().
				Str("host", cfg.host).
				Int("port", cfg.port).
				Str("database", cfg.database).
				Str("migration_dir", dir).
				Str("command", use).
				Msg("connected to database")

			goose.SetTableName("goose_db_version")
			if err := run(db, dir); err != nil {
				return fmt.Errorf("goose %s: %w", use, err)
			}
			log.Info().Str("command", use).Msg("migration command finished")
			return nil
		},
	}
}

func migrationDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migration directory: %w", err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", fmt.Errorf("migration directory does not exist: %s", abs)
	}
	if err != nil {
		return "", err
	}
	return abs, nil
}
