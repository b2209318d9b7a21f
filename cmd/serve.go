package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/monitoring"
	"github.com/propdata/rera-ingest/internal/normalize"
	"github.com/propdata/rera-ingest/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only audit and status endpoint",
	Long: "Serves run history, parent projects, registration detail, and provenance over " +
		"HTTP for the QA/audit collaborator. Runs the background alert checker.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		collector := monitoring.NewCollector(st)
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		checker := monitoring.NewChecker(collector, alerter, cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, collector),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, collector *monitoring.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			hours := queryInt(req, "hours", cfg.Monitoring.LookbackWindowHours)
			snap, err := collector.Collect(req.Context(), hours)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(req.URL.Query().Get("status")),
				Mode:   model.RunMode(req.URL.Query().Get("mode")),
				Limit:  queryInt(req, "limit", 50),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/projects", func(w http.ResponseWriter, req *http.Request) {
			projects, err := st.ListParentProjects(req.Context(), store.ProjectFilter{
				NameContains: req.URL.Query().Get("name"),
				Limit:        queryInt(req, "limit", 50),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projects)
		})

		r.Get("/projects/{id}", func(w http.ResponseWriter, req *http.Request) {
			project, err := st.GetParentProject(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			registrations, err := st.ListRegistrations(req.Context(), project.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, struct {
				Project       *model.ParentProject `json:"project"`
				Registrations []model.Registration `json:"registrations"`
			}{project, registrations})
		})

		// Stored keys are normalized; path params arrive in whatever form
		// the portal or caller used.
		r.Get("/registrations/{state}/{regno}", func(w http.ResponseWriter, req *http.Request) {
			detail, err := st.GetRegistrationByKey(req.Context(),
				normalize.Key(chi.URLParam(req, "state")), normalize.Key(chi.URLParam(req, "regno")))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		})

		r.Get("/registrations/{state}/{regno}/provenance", func(w http.ResponseWriter, req *http.Request) {
			provs, err := st.ListProvenance(req.Context(), store.ProvenanceFilter{
				StateCode:      normalize.Key(chi.URLParam(req, "state")),
				RegistrationNo: normalize.Key(chi.URLParam(req, "regno")),
				Limit:          queryInt(req, "limit", 100),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, provs)
		})
	})

	return r
}

func queryInt(req *http.Request, key string, fallback int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if eris.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	zap.L().Warn("serve: request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
