//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

const (
	APIBasePath = "/api"
	HealthPath  = "/healthz"
)

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	q Querier
}

// NewRouter returns the JSON API for q.
func NewRouter(q Querier) *chi.Mux {
	h := &handler{q: q}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, requestLogger, middleware.Recoverer)

	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(APIBasePath, func(r chi.Router) {
		r.Get("/kpis", h.kpis)
		r.Get("/trend", h.trend)
		r.Get("/products/top", h.topProducts)
		r.Get("/categories", h.categories)
		r.Get("/segments", h.segments)
		r.Get("/countries/top", h.topCountries)
		r.Get("/orders/recent", h.recentOrders)
	})

	return r
}

// requestLogger logs each request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (h *handler) kpis(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, _ int) (any, error) {
		return h.q.KPIs(ctx, win)
	})
}

func (h *handler) trend(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, _ int) (any, error) {
		return h.q.RevenueTrend(ctx, win)
	})
}

func (h *handler) topProducts(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, limit int) (any, error) {
		return h.q.TopProducts(ctx, win, limit)
	})
}

func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, _ int) (any, error) {
		return h.q.Categories(ctx, win)
	})
}

func (h *handler) segments(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, _ int) (any, error) {
		return h.q.Segments(ctx, win)
	})
}

func (h *handler) topCountries(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, limit int) (any, error) {
		return h.q.TopCountries(ctx, win, limit)
	})
}

func (h *handler) recentOrders(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(ctx context.Context, win Window, limit int) (any, error) {
		return h.q.RecentOrders(ctx, win, limit)
	})
}

// serve parses the window and limit query parameters, runs fn and writes
// its result as JSON.
func serve(w http.ResponseWriter, r *http.Request, fn func(context.Context, Window, int) (any, error)) {
	win, err := ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
	}

	result, err := fn(r.Context(), win, limit)
	if err != nil {
		logging.Error().Err(err).Str("path", r.URL.Path).Msg("Dashboard query failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to write response")
	}
}

// Serve runs the API on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, q Querier) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(q),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("listen", addr).Msg("Dashboard API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logging.Info().Msg("Shutting down dashboard API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
