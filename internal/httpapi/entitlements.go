package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/entitlement"
)

type entitlementResponse struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	ContentID    uuid.UUID `json:"content_id"`
	HasAccess    bool      `json:"has_access"`
}

// handleEntitlement answers "may this subscriber read this content".
// Errors deny rather than expose gated content.
func (h *Handler) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	subscriberID, err := uuid.Parse(r.URL.Query().Get("subscriber_id"))
	if err != nil {
		writeError(w, errUnprocessable)
		return
	}
	contentID, err := uuid.Parse(r.URL.Query().Get("content_id"))
	if err != nil {
		writeError(w, errUnprocessable)
		return
	}

	ok, err := h.entitlements.HasAccess(r.Context(), subscriberID, contentID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entitlementResponse{
			SubscriberID: subscriberID,
			ContentID:    contentID,
			HasAccess:    ok,
		})
	case errors.Is(err, entitlement.ErrContentNotFound):
		writeError(w, errNotFound)
	default:
		h.log.ErrorContext(r.Context(), "entitlement check failed", "error", err)
		writeError(w, errInternal)
	}
}
