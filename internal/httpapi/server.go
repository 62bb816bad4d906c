// Package httpapi assembles the public HTTP surface: chat, contact, health,
// metrics and the static assets the portfolio frontend loads.
package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const welcomeMessage = "Welcome to MindWeave AI Portfolio"

type Config struct {
	Chat    http.Handler
	Contact http.Handler

	HealthPath  string
	MetricsPath string
	StaticDir   string

	// AllowedOrigins is ignored when AllowAllOrigins is set.
	AllowedOrigins  []string
	AllowAllOrigins bool

	Logger zerolog.Logger
}

// NewHandler returns the routed handler wrapped in CORS and request logging.
func NewHandler(cfg Config) http.Handler {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle("POST /chat", cfg.Chat)
	if cfg.Contact != nil {
		mux.Handle("POST /api/save-message", cfg.Contact)
	}
	mux.HandleFunc("GET "+cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
	})
	mux.HandleFunc("GET /meta.json", metaHandler(cfg.StaticDir))
	mux.HandleFunc("GET /favicon.ico", faviconHandler(cfg.StaticDir))
	if isDir(cfg.StaticDir) {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	var h http.Handler = mux
	h = cors.New(corsOptions(cfg.AllowedOrigins, cfg.AllowAllOrigins)).Handler(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("latency", d).
			Msg("request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(cfg.Logger)(h)
	return h
}

// A wildcard origin never goes out together with credentials.
func corsOptions(origins []string, allowAll bool) cors.Options {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         int((12 * time.Hour).Seconds()),
	}
	if allowAll {
		opts.AllowedOrigins = []string{"*"}
		return opts
	}
	opts.AllowedOrigins = origins
	opts.AllowCredentials = true
	return opts
}

func metaHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := staticFile(dir, "meta.json"); ok {
			w.Header().Set("Content-Type", "application/json")
			http.ServeFile(w, r, p)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"name":    "MindWeave AI Portfolio",
			"version": "1.0",
		})
	}
}

func faviconHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := staticFile(dir, "favicon.ico"); ok {
			http.ServeFile(w, r, p)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func staticFile(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	p := filepath.Join(dir, name)
	info, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	return p, !info.IsDir()
}

func isDir(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
