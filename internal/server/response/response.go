// Package response writes JSON responses in the API's data/metadata envelope.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/orchestrator"
	"github.com/rs/zerolog"
)

// JSON writes data wrapped in the standard envelope
func JSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	write(w, log, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// Error writes err with a status derived from its kind. Failed pattern steps also
// report the step id and capability.
func Error(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("kind", string(kind)).Msg("Request rejected")
	}

	body := map[string]interface{}{
		"kind":    kind,
		"message": err.Error(),
	}
	var stepErr *orchestrator.StepError
	if errors.As(err, &stepErr) {
		body["step_id"] = stepErr.StepID
		body["capability"] = stepErr.Capability
	}

	write(w, log, status, map[string]interface{}{"error": body})
}

// StatusFor maps an error kind to an HTTP status code
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStale:
		return http.StatusConflict
	case domain.KindComputation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, log zerolog.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
