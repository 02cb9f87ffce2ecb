package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondError maps domain errors onto HTTP status codes.
func respondError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, contracts.ErrInputInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, contracts.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
