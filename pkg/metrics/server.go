package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forumkit/searchsync/pkg/middleware"
)

// StartServer serves the Prometheus scrape endpoint on its own port, plus
// any extra handlers the caller mounts (health probes, typically). The
// returned func shuts the listener down gracefully.
func StartServer(port int, extra map[string]http.HandlerFunc) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	for pattern, h := range extra {
		mux.HandleFunc(pattern, h)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>searchsync</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	var chain http.Handler = mux
	chain = middleware.Logging()(chain)
	chain = middleware.Timeout(10 * time.Second)(chain)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	go func() {
		slog.Info("observability endpoints up", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv.Shutdown
}
