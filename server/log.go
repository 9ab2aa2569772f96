package server

import (
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func InitializeLogger(lvl string) func() {
	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to parse log level")
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := zerolog.New(os.Stdout)
	if isatty(os.Stdout) {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Logger = out.With().Timestamp().Logger()

	return func() {}
}

func isatty(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// LogInterceptor attaches a request-scoped logger carrying a request id.
func LogInterceptor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := log.With().Str("request_id", uuid.New().String()).Logger()

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("request started")

		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
	})
}
