package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/patronkit/patronkit/internal/webhook"
)

// maxWebhookBody caps webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// handleWebhook is the processor's delivery endpoint. Every verified,
// parseable delivery is acknowledged with 200 regardless of whether it was
// applied, deduplicated, or discarded; anything else invites a redelivery
// storm. 401 and 400 are reserved for deliveries we could never process.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, errBadRequest)
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), payload, r.Header.Get("X-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
	case errors.Is(err, webhook.ErrSignatureInvalid):
		writeError(w, errUnauthorized)
	case errors.Is(err, webhook.ErrMalformedPayload):
		writeError(w, errBadRequest)
	default:
		h.log.ErrorContext(r.Context(), "webhook processing failed", "error", err)
		writeError(w, errInternal)
	}
}
