/*
 * This file is part of Hey Raven.
 * Copyright (C) 2025 Hey Raven Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package health serves the /health and /stats HTTP endpoints every stage
// binary exposes, backed by a chi router in the manner of a small sidecar
// admin server rather than the stage's own data plane.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Checker reports whether a stage's dependencies (broker connection, gateway,
// etc.) are currently reachable. A nil return means healthy.
type Checker func() error

// StatsFunc returns a stage-specific snapshot to embed under "stage_stats" in the
// /stats response. Implementations marshal to JSON, so any JSON-friendly
// value works (a struct, a map, a ttsgateway.Gateway.Stats() result).
type StatsFunc func() any

// Server is the shared admin HTTP server mounted by every stage binary.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	startTime time.Time
	stage     string
	checker   Checker
	statsFn   StatsFunc
}

// New builds a Server for the named stage, listening on addr. checker and
// statsFn may be nil.
func New(addr, stage string, checker Checker, statsFn StatsFunc) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		stage:     stage,
		checker:   checker,
		statsFn:   statsFn,
	}
	s.router.Use(middleware.Recoverer)
	s.routes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
}

// ListenAndServe blocks serving the admin endpoints until the server is
// shut down or a fatal listen error occurs.
func (s *Server) ListenAndServe() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Stage  string `json:"stage"`
	Uptime string `json:"uptime"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Stage: s.stage, Uptime: time.Since(s.startTime).String()}
	code := http.StatusOK

	if s.checker != nil {
		if err := s.checker(); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

type statsResponse struct {
	Stage        string `json:"stage"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	StageStats   any    `json:"stage_stats,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var stageStats any
	if s.statsFn != nil {
		stageStats = s.statsFn()
	}

	resp := statsResponse{
		Stage:        s.stage,
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		StageStats:   stageStats,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
