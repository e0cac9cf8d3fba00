package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: msg})
}

type ingestResponse struct {
	Status          string      `json:"status"`
	Message         string      `json:"message"`
	ClientsNotified int         `json:"clientsNotified"`
	Clients         int         `json:"clients"`
	Event           interface{} `json:"event"`
}

type statusResponse struct {
	Status   string      `json:"status"`
	Total    int         `json:"total"`
	Capacity int         `json:"capacity"`
	Clients  int         `json:"clients"`
	Events   interface{} `json:"events"`
}
