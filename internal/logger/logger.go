// Package logger builds the JSON loggers used by every concertbot command.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

var marshalersOnce sync.Once

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// New logs to stdout at info level.
func New(service string) zerolog.Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter logs to w. The console command passes stderr so bot output
// and logs stay apart.
func NewWithWriter(service string, w io.Writer) zerolog.Logger {
	marshalersOnce.Do(func() {
		// .Stack() on an error event prints where the error was wrapped, or
		// where it was logged for plain errors.
		zerolog.ErrorStackMarshaler = func(err error) interface{} {
			if _, ok := err.(stackTracer); !ok {
				err = pkgerrors.WithStack(err)
			}
			return zpkgerrors.MarshalStack(err)
		}
	})
	return zerolog.New(w).Level(zerolog.InfoLevel).With().
		Str("service", service).
		Timestamp().
		Logger()
}

// WithLevel applies a level name from configuration. Unknown names keep the
// logger's current level and report false.
func WithLevel(log zerolog.Logger, name string) (zerolog.Logger, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return log, true
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return log, false
	}
	return log.Level(lvl), true
}
