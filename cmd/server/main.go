package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sims/internal/config"
	"sims/internal/db"
	"sims/internal/migrations"
	"sims/internal/seed"
)

type server struct {
	db     *sql.DB
	logger *zap.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.Up(database, cfg.MigrationsDir); err != nil {
			logger.Fatal("failed to run database migrations", zap.Error(err))
		}
	}

	stats, err := seed.Run(database)
	if err != nil {
		logger.Fatal("failed to seed default settings", zap.Error(err))
	}
	if stats.Inserts > 0 {
		logger.Info("seeded default settings", zap.Int("inserts", stats.Inserts))
	}

	srv := &server{db: database, logger: logger}

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zapCfg.Level = parsed
	return zapCfg.Build()
}

func (s *server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", s.handleSettingsGet)
		r.Put("/settings", s.handleSettingsUpdate)

		r.Get("/filaments", s.handleFilamentsList)
		r.Post("/filaments", s.handleFilamentCreate)
		r.Get("/filaments/{id}", s.handleFilamentGet)
		r.Put("/filaments/{id}", s.handleFilamentUpdate)
		r.Delete("/filaments/{id}", s.handleFilamentDelete)

		r.Get("/printers", s.handlePrintersList)
		r.Post("/printers", s.handlePrinterCreate)
		r.Put("/printers/{id}", s.handlePrinterUpdate)
		r.Delete("/printers/{id}", s.handlePrinterDelete)

		r.Get("/products", s.handleProductsList)
		r.Post("/products", s.handleProductCreate)
		r.Get("/products/{id}", s.handleProductGet)
		r.Put("/products/{id}", s.handleProductUpdate)
		r.Delete("/products/{id}", s.handleProductDelete)
		r.Put("/products/{id}/filaments", s.handleProductFilamentsReplace)

		r.Get("/queue", s.handleQueueList)
		r.Post("/queue", s.handleQueueItemCreate)
		r.Put("/queue/reorder", s.handleQueueReorder)
		r.Put("/queue/{id}", s.handleQueueItemUpdate)
		r.Delete("/queue/{id}", s.handleQueueItemDelete)

		r.Get("/parts", s.handlePartsList)
		r.Post("/parts", s.handlePartCreate)
		r.Put("/parts/{id}", s.handlePartUpdate)
		r.Delete("/parts/{id}", s.handlePartDelete)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, http.StatusInternalServerError, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *server) serverError(w http.ResponseWriter, message string, err error) {
	s.logger.Error(message, zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, message)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}
