package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"test-session-service/internal/app"
	"test-session-service/internal/domain"
)

// APIHandler serves the public, unauthenticated test catalog.
type APIHandler struct {
	service *app.Service
}

func NewAPIHandler(service *app.Service) *APIHandler {
	return &APIHandler{service: service}
}

// Register mounts the handler's routes.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tests/{id}", h.GetTest)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

// GetTest returns the public metadata of one test.
func (h *APIHandler) GetTest(w http.ResponseWriter, r *http.Request) {
	test, err := h.service.TestInfo(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrTestNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": domain.AccessNotFound.Message()})
		return
	}
	if err != nil {
		log.Printf("get test %s: %v", r.PathValue("id"), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": domain.AccessError.Message()})
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
