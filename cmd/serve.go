package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	anthropicpkg "github.com/fieldglass/needlefinder/pkg/anthropic"

	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/pipeline"
	"github.com/fieldglass/needlefinder/internal/schema"
	"github.com/fieldglass/needlefinder/internal/store"
)

var (
	servePort        int
	serveSchemasFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve extraction over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidateCredentials(); err != nil {
			return err
		}

		reg, err := schema.LoadRegistry(serveSchemasFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p := pipeline.New(cfg, st, anthropicpkg.NewClient(cfg.Anthropic.Key))
		r := newRouter(reg, st, p)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
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

// newRouter builds the HTTP surface around a schema registry, run store, and
// extraction pipeline.
func newRouter(reg *schema.Registry, st store.Store, p *pipeline.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/schemas", func(w http.ResponseWriter, req *http.Request) {
		var schemas []schema.Schema
		for _, name := range reg.Names() {
			s, _ := reg.Get(name)
			schemas = append(schemas, s)
		}
		writeJSON(w, http.StatusOK, schemas)
	})

	r.Post("/extract", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Schema         string   `json:"schema"`
			Text           string   `json:"text"`
			Examples       []string `json:"examples"`
			RemoveDialogue bool     `json:"remove_dialogue"`
			Verify         bool     `json:"verify"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		s, err := reg.Get(body.Schema)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		run, err := p.Run(req.Context(), pipeline.Options{
			Schema:         s,
			Input:          "http",
			Text:           body.Text,
			Examples:       body.Examples,
			RemoveDialogue: body.RemoveDialogue,
			Verify:         body.Verify,
			SkipWrite:      true,
		})
		if err != nil {
			zap.L().Error("serve: extraction failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "extraction failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status:     model.RunStatus(req.URL.Query().Get("status")),
			SchemaName: req.URL.Query().Get("schema"),
		})
		if err != nil {
			zap.L().Error("serve: list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveSchemasFile, "schemas-file", "", "YAML file with additional schemas")
	rootCmd.AddCommand(serveCmd)
}
