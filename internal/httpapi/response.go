package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Proton-105/himera-settings/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type fetchResponse struct {
	Success  bool          `json:"success"`
	Settings domain.Values `json:"settings"`
}

type updateResponse struct {
	Success  bool          `json:"success"`
	Updated  []string      `json:"updated"`
	Settings domain.Values `json:"settings"`
}

type themeResponse struct {
	Success bool         `json:"success"`
	Theme   domain.Theme `json:"theme"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil && log != nil {
		log.Warn("failed to write json response", slog.Any("error", err))
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
