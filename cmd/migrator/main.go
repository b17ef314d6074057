package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("app", "migrator").Logger()
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
