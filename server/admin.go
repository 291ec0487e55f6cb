package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// adminConfig 可热更新的运行参数；POST 时只更新非空字段
type adminConfig struct {
	BroadcastEvery *int     `json:"broadcastEvery,omitempty"`
	PlayerSpeed    *float64 `json:"playerSpeed,omitempty"`
}

// NewAdminRouter 管理与监控接口
func (s *Server) NewAdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", s.handleMetrics)
	r.Get("/admin/config", s.handleGetConfig)
	r.Post("/admin/config", s.handleUpdateConfig)
	r.Get("/ws", s.spectators.ServeHTTP)
	return r
}

// handleMetrics 输出运行指标
// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"tick":         s.ticks.TickSeq(),
		"state":        s.ticks.State().String(),
		"connections":  s.mux.Len(),
		"participants": s.ticks.Participants(),
		"spectators":   s.spectators.Len(),
		"metrics":      s.metrics.Snapshot(),
	}
	writeJSON(w, http.StatusOK, payload)
}

// GET /admin/config
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	every := s.ticks.BroadcastEvery()
	speed := s.arena.Speed()
	writeJSON(w, http.StatusOK, adminConfig{BroadcastEvery: &every, PlayerSpeed: &speed})
}

// POST /admin/config 以 JSON 载荷更新部分字段
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body adminConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.PlayerSpeed != nil && *body.PlayerSpeed < 0 {
		http.Error(w, "playerSpeed must not be negative", http.StatusBadRequest)
		return
	}
	if body.BroadcastEvery != nil {
		if err := s.ticks.SetBroadcastEvery(*body.BroadcastEvery); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if body.PlayerSpeed != nil {
		s.arena.SetSpeed(*body.PlayerSpeed)
	}
	s.log.Infow("config updated", "broadcastEvery", s.ticks.BroadcastEvery(), "playerSpeed", s.arena.Speed())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
