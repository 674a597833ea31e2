package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
	"github.com/elmoxbt/x402-defi-yield-api/internal/payment"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, envelope model.Envelope) {
	envelope.Meta = model.EnvelopeMeta{
		RequestID: uuid.NewString(),
		Timestamp: s.now().UTC(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		s.log.WithError(err).Warn("response encode failed")
	}
}

func (s *Server) writeData(w http.ResponseWriter, data any, paid uint64) {
	s.writeJSON(w, http.StatusOK, model.Envelope{
		Success: true,
		Data:    data,
		Paid:    paid,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	s.writeJSON(w, status, model.Envelope{
		Error: &model.ErrorBody{Type: errType, Message: message},
	})
}

// writePaymentRequired restates the requirement so the client can pay and
// retry without a second discovery round trip.
func (s *Server) writePaymentRequired(w http.ResponseWriter, decision payment.Decision, requirement model.Requirement) {
	s.writeJSON(w, http.StatusPaymentRequired, model.Envelope{
		Error: &model.ErrorBody{
			Type:    decision.Outcome.String(),
			Message: decision.Message,
		},
		Payment: &requirement,
	})
}
