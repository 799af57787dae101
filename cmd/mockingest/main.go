// Command mockingest runs a stand-in ingestion endpoint for local
// development. Point COURIER_DSN at it (any key, project 1) and use the
// flags to simulate server-side throttling.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"telemetry-courier/internal/common/logging"
	"telemetry-courier/internal/ingestmock"
)

func main() {
	var (
		addr       = flag.String("addr", ":9400", "listen address")
		status     = flag.Int("status", 200, "status code for throttle responses")
		rateLimits = flag.String("rate-limits", "", "X-Sentry-Rate-Limits header value to return")
		retryAfter = flag.String("retry-after", "", "Retry-After header value to return")
		limitEvery = flag.Int("limit-every", 0, "throttle every Nth request (0 = every request)")
	)
	flag.Parse()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	server := ingestmock.NewServer(ingestmock.Behavior{
		StatusCode:      *status,
		RateLimitHeader: *rateLimits,
		RetryAfter:      *retryAfter,
		LimitEvery:      *limitEvery,
	}, logger)

	logger.Info("mock ingestion endpoint listening",
		logging.String("addr", *addr),
	)
	if err := http.ListenAndServe(*addr, server.Handler()); err != nil {
		fmt.Fprintf(os.Stderr, "mockingest: %v\n", err)
		os.Exit(1)
	}
}
