// Package api exposes the rate store over HTTP: tariff listings, price
// queries, cost comparisons and manual refresh, plus the usual health and
// metrics endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/octorate/internal/ratesync"
	"github.com/bher20/octorate/internal/storage"
	"github.com/bher20/octorate/internal/ui"
)

// Deps carries everything the handlers need. Now is swappable for tests.
type Deps struct {
	Store storage.Storage
	Sync  *ratesync.Service
	Now   func() time.Time

	// MPAN and SerialNumber select the meter for cost comparisons.
	MPAN         string
	SerialNumber string
}

// NewMux constructs the HTTP mux with all routes registered.
func NewMux(d Deps) *http.ServeMux {
	if d.Now == nil {
		d.Now = time.Now
	}

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.Ping(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	mux.HandleFunc("/tariffs", handleListTariffs(d))
	mux.HandleFunc("/tariffs/", handleTariff(d))
	mux.HandleFunc("/refresh/", handleRefresh(d))

	mux.Handle("/ui/", http.StripPrefix("/ui/", ui.Handler()))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	return mux
}
