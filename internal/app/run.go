// Package app wires configuration, storage and components into runnable
// processes.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/api"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/attendance"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/concertinfo"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/config"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/extract"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/health"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/logger"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/messaging"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/services"
)

// RunServe starts the read-only HTTP API and blocks until shutdown or error.
func RunServe() error {
	log := logger.New("concertbot")
	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = leveled(log, cfg)

	ctx, stop := newServerContext()
	defer stop()

	storage, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}
	defer func() { _ = storage.Close() }()

	svcHealth := startHealthCheckers(ctx, cfg, log, storage)
	concerts := services.NewConcertService(storage.Store, nil, log)
	att := attendance.New(storage.Store, time.Now, log)

	server := newHTTPServer(ctx, cfg, api.NewRouter(concerts, att, svcHealth.IsHealthy))
	return serveUntilDone(ctx, server, log, cfg)
}

// ConsoleOptions configures RunConsole.
type ConsoleOptions struct {
	UserID   int64
	UserName string
	ChatID   int64
	Group    bool
	// ServeHTTP also exposes the read-only API while the console runs.
	ServeHTTP bool
}

// RunConsole runs the bot over a line-oriented terminal transport. Bot
// output goes to out; logs go to stderr.
func RunConsole(in io.Reader, out io.Writer, opts ConsoleOptions) error {
	log := logger.NewWithWriter("concertbot", os.Stderr)
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log = leveled(log, cfg)

	ctx, stop := newServerContext()
	defer stop()

	storage, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close() }()

	console := messaging.NewConsole(out,
		messaging.Chat{ID: opts.ChatID, Group: opts.Group},
		model.UserRef{ID: opts.UserID, Name: opts.UserName})
	bot, err := NewBot(ctx, cfg, storage.Store, console, log)
	if err != nil {
		return err
	}
	bot.Start(ctx)

	if opts.ServeHTTP {
		svcHealth := startHealthCheckers(ctx, cfg, log, storage)
		server := newHTTPServer(ctx, cfg, api.NewRouter(bot.Concerts, bot.Attendance, svcHealth.IsHealthy))
		go func() { _ = serveUntilDone(ctx, server, log, cfg) }()
	}

	err = console.Run(ctx, in, bot.Router)
	stop()
	bot.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunMigrate creates the schema for the configured driver and exits.
func RunMigrate() error {
	log := logger.New("concertbot")
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log = leveled(log, cfg)
	storage, err := OpenStorage(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	return storage.Close()
}

// ExtractResult is what RunExtract prints.
type ExtractResult struct {
	Metadata *model.EventMetadata   `json:"metadata"`
	Proposal *model.ConcertProposal `json:"proposal,omitempty"`
}

// RunExtract fetches one page and prints the metadata and concert guess as
// JSON. A nil metadata means extraction found nothing usable.
func RunExtract(ctx context.Context, url string, timeout time.Duration, out io.Writer) error {
	log := logger.NewWithWriter("concertbot", os.Stderr)
	ex := extract.New(extract.Options{Timeout: timeout}, log)

	res := ExtractResult{Metadata: ex.Extract(ctx, url)}
	if res.Metadata != nil {
		p := concertinfo.Parse(*res.Metadata, res.Metadata.RawMarkup)
		res.Proposal = &p
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func leveled(log zerolog.Logger, cfg *config.Config) zerolog.Logger {
	log, ok := logger.WithLevel(log, cfg.LogLevel)
	if !ok {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level; keeping info")
	}
	return log
}

func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, storage *Storage) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := health.NewPingChecker("store", storage.Pinger, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveUntilDone(ctx context.Context, server *http.Server, log zerolog.Logger, cfg *config.Config) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return fmt.Errorf("http server: %w", err)
	}
}

// newServerContext returns a context cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
