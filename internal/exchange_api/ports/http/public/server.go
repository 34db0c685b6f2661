package public

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/langowen/exchange-rates/deploy/config"
	"github.com/langowen/exchange-rates/internal/entities"
	"github.com/langowen/exchange-rates/internal/exchange_api/formatter"
	mwLogger "github.com/langowen/exchange-rates/internal/exchange_api/ports/http/public/middleware/logger"
	"github.com/langowen/exchange-rates/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Server struct {
	Server  *http.Server
	cfg     *config.Config
	service Service
}

func NewServer(server *http.Server, cfg *config.Config, service Service) *Server {
	return &Server{
		Server:  server,
		cfg:     cfg,
		service: service,
	}
}

// NewRouter wires the rate endpoints. gatherer backs /metrics and may be nil.
func NewRouter(s *Server, m *metrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mwLogger.New(m))
	r.Use(middleware.Recoverer)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/health", s.Health)
	r.Get("/exchange_api2db", s.ApiToDB)
	r.Get("/exchange_db2api", s.DBToApi)

	// Same handlers behind the /api proxy prefix.
	r.Route("/api", func(r chi.Router) {
		r.Get("/exchange_api2db", s.ApiToDB)
		r.Get("/exchange_db2api", s.DBToApi)
	})

	return r
}

func StartServer(ctx context.Context, service Service, cfg *config.Config, m *metrics.Metrics, gatherer prometheus.Gatherer) <-chan struct{} {
	serverConfig := &http.Server{
		Addr:         ":" + cfg.HTTPServer.Port,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	server := NewServer(serverConfig, cfg, service)
	serverConfig.Handler = NewRouter(server, m, gatherer)

	doneChan := make(chan struct{})

	go func() {
		if err := server.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop server", "error", err)
		}

		close(doneChan)
	}()

	return doneChan
}

type IngestResponse struct {
	Date     string `json:"date"`
	Inserted int    `json:"inserted"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Storage    string `json:"storage"`
	LatestDate string `json:"latest_date,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ApiToDB ingests the rates for ?date=YYYY-MM-DD, defaulting to today in the
// provider's zone.
func (s *Server) ApiToDB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date := s.service.Today()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := entities.ParseDate(raw)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, entities.KindValidation, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	inserted, err := s.service.Ingest(ctx, date)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, IngestResponse{
		Date:     date.Format(entities.DateLayout),
		Inserted: inserted,
	})
}

// DBToApi serves ?days=N&format=web|chat from storage.
func (s *Server) DBToApi(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	rawDays := strings.TrimSpace(query.Get("days"))
	if rawDays == "" {
		RespondWithError(w, http.StatusBadRequest, entities.KindValidation, "days is required")
		return
	}

	days, err := strconv.Atoi(rawDays)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, entities.KindValidation, "days must be an integer")
		return
	}

	if max := s.service.MaxWindowDays(); days < 1 || days > max {
		RespondWithError(w, http.StatusBadRequest, entities.KindValidation,
			"days must be between 1 and "+strconv.Itoa(max))
		return
	}

	shape, err := formatter.ParseShape(strings.TrimSpace(query.Get("format")))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, entities.KindValidation, "format must be one of web, chat")
		return
	}

	out, err := s.service.Rates(ctx, days, shape)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, out)
}

// Health reports liveness; storage reachability and the latest stored date
// are informational.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Storage:   "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.service.Health(r.Context()); err != nil {
		slog.Warn("Storage health check failed", "error", err)
		resp.Storage = "unreachable"
		RespondWithJSON(w, http.StatusOK, resp)
		return
	}

	latest, err := s.service.LatestDate(r.Context())
	if err != nil {
		slog.Warn("Failed to read latest stored date", "error", err)
	}
	resp.LatestDate = latest

	RespondWithJSON(w, http.StatusOK, resp)
}

func RespondWithJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
