package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/enrich"
	"github.com/tenderscope/intel-cli/internal/model"
)

var servePort int

// serverDeps is the narrow surface the HTTP handlers need, injectable for
// tests.
type serverDeps struct {
	// RunPipeline runs one full pass of the named pipeline.
	RunPipeline func(ctx context.Context, name string) error
	// EnrichBuyer enriches a single buyer end to end.
	EnrichBuyer func(ctx context.Context, buyerID int64) error
	// Notifications lists a user's recent notifications.
	Notifications func(ctx context.Context, userID string, limit int) ([]model.Notification, error)
}

// newRouter builds the trigger API. Pipeline runs are launched in the
// background; a pipeline already in flight answers 409.
func newRouter(ctx context.Context, deps serverDeps) http.Handler {
	var inflight sync.Map

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/run/{pipeline}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "pipeline")
		switch name {
		case "sync", "enrich", "signals":
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown pipeline"})
			return
		}

		if _, running := inflight.LoadOrStore(name, true); running {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "pipeline already running"})
			return
		}

		go func() {
			defer inflight.Delete(name)
			if err := deps.RunPipeline(ctx, name); err != nil {
				zap.L().Error("triggered pipeline failed",
					zap.String("pipeline", name), zap.Error(err))
				return
			}
			zap.L().Info("triggered pipeline finished", zap.String("pipeline", name))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "pipeline": name})
	})

	r.Post("/buyers/{id}/enrich", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid buyer id"})
			return
		}

		go func() {
			if err := deps.EnrichBuyer(ctx, id); err != nil {
				zap.L().Error("buyer enrichment failed",
					zap.Int64("buyer_id", id), zap.Error(err))
				return
			}
			zap.L().Info("buyer enrichment complete", zap.Int64("buyer_id", id))
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "buyer_id": id})
	})

	r.Get("/notifications", func(w http.ResponseWriter, req *http.Request) {
		userID := req.URL.Query().Get("user")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user is required"})
			return
		}
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			limit = n
		}

		notifications, err := deps.Notifications(req.Context(), userID, limit)
		if err != nil {
			zap.L().Error("list notifications failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if notifications == nil {
			notifications = []model.Notification{}
		}
		writeJSON(w, http.StatusOK, notifications)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline trigger API",
	Long:  "Serves endpoints to trigger pipeline runs, enrich single buyers on demand, and read watchlist notifications.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		lookup := orgLookupClient()
		deps := serverDeps{
			RunPipeline: func(ctx context.Context, name string) error {
				return e.runNamedPipeline(ctx, name)
			},
			EnrichBuyer: func(ctx context.Context, buyerID int64) error {
				return enrich.RunSingle(ctx, e.Store, lookup, buyerID, cfg.Enrich.FuzzyThreshold)
			},
			Notifications: e.Store.ListNotifications,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(ctx, deps),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
