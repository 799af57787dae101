// Command courier sends synthetic telemetry envelopes through the
// transport. It exists to exercise a deployment end to end: point it at
// a real ingestion endpoint or at mockingest and watch the logs and
// metrics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/config"
	"telemetry-courier/internal/envelope"
	"telemetry-courier/internal/metrics"
	"telemetry-courier/internal/ratelimit"
	"telemetry-courier/internal/spool"
	"telemetry-courier/internal/throttle"
	"telemetry-courier/internal/transport"
)

func main() {
	var (
		count       = flag.Int("count", 10, "number of envelopes to send")
		message     = flag.String("message", "courier test event", "event message")
		interval    = flag.Duration("interval", 100*time.Millisecond, "delay between sends")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address (optional)")
	)
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "courier: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", err)
			}
		}()
	}

	opts := transport.Options{
		DSN:                cfg.DSN,
		ClientName:         cfg.ClientName,
		Logger:             logger,
		Observer:           recorder,
		HTTPSProxy:         cfg.HTTPSProxy,
		HTTPProxy:          cfg.HTTPProxy,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestTimeout:     cfg.RequestTimeout,
		QueueSize:          cfg.QueueSize,
		Throttle: throttle.Config{
			EnvelopesPerSecond: cfg.ThrottleEPS,
			Burst:              cfg.ThrottleBurst,
		},
		EnableBreaker: cfg.BreakerEnabled,
	}

	if cfg.SpoolPath != "" {
		sp, err := spool.Open(spool.Config{Path: cfg.SpoolPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "courier: failed to open spool: %v\n", err)
			os.Exit(1)
		}
		defer sp.Close()
		opts.Spool = sp
	}

	if cfg.RedisAddress != "" {
		store, err := ratelimit.NewRedisStore(&ratelimit.RedisStoreConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "courier: failed to connect shared limit store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		opts.LimitStore = store
	}

	t, err := transport.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "courier: %v\n", err)
		os.Exit(1)
	}

	sent, skipped := 0, 0
	for i := 0; i < *count; i++ {
		if t.Disabled(ratelimit.CategoryError) {
			skipped++
			logger.Debug("error category throttled, skipping event",
				logging.Time("until", t.LimitDeadline(ratelimit.CategoryError)),
			)
			continue
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"message":   fmt.Sprintf("%s #%d", *message, i+1),
			"level":     "info",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		env := envelope.New(fmt.Sprintf("%032x", i+1))
		env.AddItem(envelope.ItemTypeEvent, payload)
		t.SendEnvelope(env)
		sent++

		time.Sleep(*interval)
	}

	if ok := t.Flush(10 * time.Second); !ok {
		logger.Warn("flush timed out, some envelopes may be unsent")
	}
	t.Shutdown(5 * time.Second)

	logger.Info("done",
		logging.Int("sent", sent),
		logging.Int("skipped", skipped),
	)
}
