// Package server exposes a read-only HTTP view of the bill corpus for
// dashboards and spot checks. Nothing here mutates the store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/diet-tracker/billsync/internal/audit"
	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/store"
)

// Server serves the read-only API.
type Server struct {
	store   store.Store
	auditor *audit.Auditor
	cfg     config.ServerConfig
	http    *http.Server
}

// New creates a Server.
func New(st store.Store, auditor *audit.Auditor, cfg config.ServerConfig) *Server {
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	s := &Server{store: st, auditor: auditor, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/bills", s.handleListBills)
	r.Get("/bills/{billID}", s.handleGetBill)
	r.Get("/bills/{billID}/history", s.handleBillHistory)
	r.Get("/audit", s.handleAudit)
	r.Get("/stats", s.handleStats)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the context is canceled or the listener
// fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BillFilter{
		Session: atoiDefault(q.Get("session"), 0),
		Stage:   model.Stage(q.Get("stage")),
		Limit:   atoiDefault(q.Get("limit"), 100),
		Offset:  atoiDefault(q.Get("offset"), 0),
	}
	if d := q.Get("draft"); d != "" {
		v := d == "true" || d == "1"
		filter.Draft = &v
	}

	bills, err := s.store.ListAll(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(bills),
		"bills": bills,
	})
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.store.GetBill(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if bill == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("bill not found"))
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleBillHistory(w http.ResponseWriter, r *http.Request) {
	billID := chi.URLParam(r, "billID")
	entries, err := s.store.ListHistory(r.Context(), billID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bill_id": billID,
		"history": entries,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	session := atoiDefault(r.URL.Query().Get("session"), 0)
	report, err := s.auditor.Run(r.Context(), session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"by_stage": counts})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
