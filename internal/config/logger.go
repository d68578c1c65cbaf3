package config

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger builds the root logger of a binary. Development runs get console
// output, everything else JSON lines.
func (c Config) Logger(service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if c.IsProduction() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(level).With().Timestamp().Str("service", service).Logger()
}
