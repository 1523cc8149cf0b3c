// Command sessionkit-migrate applies the sessions schema migrations to a
// Postgres database.
//
// Usage:
//
//	sessionkit-migrate -direction up
//	sessionkit-migrate -direction down
//
// The DSN is read from SESSIONKIT_DATABASE_URL (or a .env file) unless
// overridden with -dsn.
package main

import (
	"errors"
	"flag"
	"os"

	"github.com/rs/zerolog"

	sessionkit "github.com/minyanlabs/sessionkit"
	"github.com/minyanlabs/sessionkit/session"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dsn := flag.String("dsn", "", "Postgres DSN (defaults to SESSIONKIT_DATABASE_URL)")
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	if *dsn == "" {
		env, err := sessionkit.LoadEnv()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load environment")
		}
		*dsn = env.DatabaseURL
	}
	if *dsn == "" {
		log.Fatal().Msg("no DSN: set SESSIONKIT_DATABASE_URL or pass -dsn")
	}

	if err := session.Migrate(*dsn, *direction); err != nil {
		if errors.Is(err, session.ErrNoChange) {
			log.Info().Msg("schema already up to date")
			return
		}
		log.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}
	log.Info().Str("direction", *direction).Msg("migrations applied")
}
