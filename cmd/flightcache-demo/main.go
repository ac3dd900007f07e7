// Command flightcache-demo runs an HTTP server that exposes a flightcache
// around a simulated slow quote lookup.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/flightcache"
	fcconfig "github.com/p-blackswan/flightcache/config"
	promexp "github.com/p-blackswan/flightcache/metrics"
	"github.com/p-blackswan/flightcache/serialize"
	"github.com/p-blackswan/flightcache/sqlitestore"
)

type serverConfig struct {
	rateLimitRPS   int
	rateLimitBurst int
}

func main() {
	cfg, err := fcconfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flightcache-demo: config:", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	var storage flightcache.Storage[quote]
	if cfg.Persistent() {
		store, err := sqlitestore.Open[quote](cfg.SQLitePath, serialize.NewJSON[quote](serialize.IdentityValueCodec[quote]{}), logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("failed to open sqlite storage")
		}
		defer store.Close()
		storage = store
		logger.Info().Str("path", cfg.SQLitePath).Msg("using persistent sqlite storage")
	} else {
		storage = flightcache.NewMemoryStorage[quote]()
	}
	keyExtractor := flightcache.NewNameKeyExtractor("quote")
	promMetrics := promexp.New()

	entryBuilder := &flightcache.ConstantLifespanBuilder[quote]{
		UpdateAfter:  cfg.UpdateAfter,
		ExpiresAfter: cfg.ExpiresAfter,
	}

	source := newQuoteSource(time.Now().UnixNano())
	cache := flightcache.Wrap[quote](
		source.Fetch,
		flightcache.WithStorage[quote](storage),
		flightcache.WithKeyExtractor[quote](keyExtractor),
		flightcache.WithEntryBuilder[quote](entryBuilder),
		flightcache.WithEvictionPolicy[quote](flightcache.NewLRUEvictionPolicy[quote](cfg.EvictionCapacity)),
		flightcache.WithProducerTimeout[quote](cfg.ProducerTimeout),
		flightcache.WithUpdateLockTimeout[quote](cfg.UpdateLockTimeout),
		flightcache.WithMetricsHook[quote](promMetrics),
		flightcache.WithLogger[quote](logger),
	)
	invalidation := flightcache.NewInvalidationSupport[quote](storage, keyExtractor)

	app := newServer(cache, invalidation, storage, promMetrics, serverConfig{
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("flightcache-demo listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	_ = app.ShutdownWithTimeout(10 * time.Second)
}
