package public

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/langowen/exchange-rates/deploy/config"
	"github.com/langowen/exchange-rates/internal/entities"
	mwLogger "github.com/langowen/exchange-rates/internal/exchange_api/ports/http/public/middleware/logger"
	"github.com/shopspring/decimal"
	"log/slog"
	"net/http"
	"time"
)

type ProcessManager interface {
	Status(ctx context.Context) ([]entities.Process, error)
	Restart(ctx context.Context, name string) error
}

type Server struct {
	Server  *http.Server
	manager ProcessManager
	now     func() time.Time
}

func NewServer(server *http.Server, manager ProcessManager) *Server {
	return &Server{
		Server:  server,
		manager: manager,
		now:     time.Now,
	}
}

func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mwLogger.New(nil))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)

	r.Route("/api/pm2", func(r chi.Router) {
		r.Get("/status", s.Status)
		r.Post("/process/name/{name}/restart", s.Restart)
	})

	return r
}

func StartServer(ctx context.Context, manager ProcessManager, cfg *config.Config) <-chan struct{} {
	serverConfig := &http.Server{
		Addr:         ":" + cfg.Supervisor.Port,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	server := NewServer(serverConfig, manager)
	serverConfig.Handler = NewRouter(server)

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

type Summary struct {
	Total         int     `json:"total"`
	Online        int     `json:"online"`
	Stopped       int     `json:"stopped"`
	Errored       int     `json:"errored"`
	TotalMemoryMB float64 `json:"total_memory_mb"`
	AvgCPUPercent float64 `json:"avg_cpu_percent"`
}

type StatusResponse struct {
	Timestamp string             `json:"timestamp"`
	Summary   Summary            `json:"summary"`
	Processes []entities.Process `json:"processes"`
}

type RestartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	procs, err := s.manager.Status(r.Context())
	if err != nil {
		respondWithManagerError(w, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, StatusResponse{
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Summary:   summarize(procs),
		Processes: procs,
	})
}

func (s *Server) Restart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.manager.Restart(r.Context(), name); err != nil {
		respondWithManagerError(w, err)
		return
	}

	slog.Info("Process restarted", "name", name)

	RespondWithJSON(w, http.StatusOK, RestartResponse{
		Success: true,
		Message: "process " + name + " restarted",
	})
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func summarize(procs []entities.Process) Summary {
	var (
		sum    Summary
		memory int64
		cpu    float64
	)

	for _, p := range procs {
		switch p.Status {
		case "online":
			sum.Online++
		case "stopped":
			sum.Stopped++
		case "errored":
			sum.Errored++
		}
		memory += p.MemoryBytes
		cpu += p.CPUPercent
	}

	sum.Total = len(procs)
	sum.TotalMemoryMB = decimal.NewFromInt(memory).Div(decimal.NewFromInt(1 << 20)).Round(2).InexactFloat64()
	if sum.Total > 0 {
		sum.AvgCPUPercent = decimal.NewFromFloat(cpu).Div(decimal.NewFromInt(int64(sum.Total))).Round(2).InexactFloat64()
	}

	return sum
}

func respondWithManagerError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, entities.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, entities.ErrProcessNotFound):
		code = http.StatusNotFound
	}

	slog.Warn("Process manager request failed", "status", code, "error", err)

	RespondWithJSON(w, code, RestartResponse{Success: false, Message: err.Error()})
}

func RespondWithJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
