// Package handlers agrupa os handlers HTTP da API.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type testResponse struct {
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Data      testData `json:"data"`
}

type testData struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
}

// TestHandler responde com uma mensagem simples para verificar o limiter.
func TestHandler(w http.ResponseWriter, r *http.Request) {
	message := "Rate limit test endpoint"
	if r.Method == http.MethodPost {
		message = "POST request received"
	}
	writeJSON(w, http.StatusOK, testResponse{
		Message:   message,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Data: testData{
			Status:    "success",
			RequestID: uuid.NewString()[:8],
		},
	})
}

// Healthz não passa pelo rate limiter, pois fica fora do prefixo da API.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
