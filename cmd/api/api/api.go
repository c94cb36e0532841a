// Package api exposes the conversion manager over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/onkernel/bootimg/cmd/api/config"
	"github.com/onkernel/bootimg/lib/convert"
)

// ApiService wires the conversion manager to HTTP handlers.
type ApiService struct {
	Config         *config.Config
	ConvertManager convert.Manager
	Logger         *slog.Logger
}

// New creates a new ApiService.
func New(cfg *config.Config, convertManager convert.Manager, logger *slog.Logger) *ApiService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApiService{
		Config:         cfg,
		ConvertManager: convertManager,
		Logger:         logger,
	}
}

// Routes mounts the API endpoints on the router.
func (s *ApiService) Routes(r chi.Router) {
	r.Post("/conversions", s.CreateConversion)
	r.Get("/artifacts", s.ListArtifacts)
	r.Delete("/artifacts", s.PurgeArtifacts)
}

func (s *ApiService) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
