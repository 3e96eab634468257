package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RouterConfig lists what the HTTP surface mounts. Nil handlers are skipped.
type RouterConfig struct {
	AllowedOrigins []string
	WebSocket      *WebSocketHandler
	Import         *ImportHandler
	Rooms          RoomReader
	Gatherer       prometheus.Gatherer
	Health         *HealthChecker
}

// NewRouter builds the HTTP surface of the service: the auction socket, the
// player import endpoints, the room introspection service, health checks
// and metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	if cfg.Health != nil {
		r.Handle("/ready", cfg.Health)
	}

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.WebSocket != nil {
		r.Get("/ws/auction", cfg.WebSocket.HandleAuctionConnection)
		r.Get("/ws/stats", cfg.WebSocket.HandleConnectionStats)
	}

	if cfg.Import != nil {
		r.Post("/api/leagues/{leagueID}/players/import", cfg.Import.HandlePreview)
		r.Post("/api/leagues/{leagueID}/players/import/confirm", cfg.Import.HandleConfirm)
	}

	if cfg.Rooms != nil {
		path, handler := NewAuctionServiceHandler(NewAuctionService(cfg.Rooms))
		r.Handle(path+"*", handler)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})

	// h2c lets Connect clients speak HTTP/2 without TLS.
	return h2c.NewHandler(c.Handler(r), &http2.Server{})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
