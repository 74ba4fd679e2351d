package server

import (
	"encoding/json"
	"net/http"

	"invoicepay/internal/logger"
)

// Response is the JSON envelope for every API answer.
type Response struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Count    *int        `json:"count,omitempty"`
	Summary  interface{} `json:"summary,omitempty"`
	Stats    interface{} `json:"stats,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	Message  string      `json:"message,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithContext(r.Context()).Warn().Err(err).Msg("Failed to write response")
	}
}

func writeList(w http.ResponseWriter, r *http.Request, data interface{}, count int) {
	writeJSON(w, r, http.StatusOK, Response{Success: true, Data: data, Count: &count})
}

// writeError answers with message and, when err is set, its text.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := Response{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
		l := logger.WithContext(r.Context())
		if status >= http.StatusInternalServerError {
			l.Error().Err(err).Int("status", status).Msg(message)
		} else {
			l.Warn().Err(err).Int("status", status).Msg(message)
		}
	}
	writeJSON(w, r, status, resp)
}
