package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeUploadError(w http.ResponseWriter, r *http.Request, uerr *UploadError) {
	if wantsJSON(r) {
		writeJSON(w, uerr.Status, ErrorResponse{Error: uerr.Kind, Message: uerr.Message})
		return
	}
	http.Error(w, uerr.Message, uerr.Status)
}
