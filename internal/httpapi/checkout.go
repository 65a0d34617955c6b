package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/billing"
	"github.com/patronkit/patronkit/internal/checkout"
	"github.com/patronkit/patronkit/internal/subscription"
	"github.com/patronkit/patronkit/internal/tier"
)

type checkoutRequest struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	TierID       uuid.UUID `json:"tier_id"`
	Email        string    `json:"email"`
}

type checkoutResponse struct {
	URL       string     `json:"url"`
	Kind      string     `json:"kind"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.SubscriberID == uuid.Nil || req.TierID == uuid.Nil || req.Email == "" {
		writeError(w, errUnprocessable)
		return
	}

	redirect, err := h.checkout.Create(r.Context(), req.SubscriberID, req.TierID, req.Email)
	switch {
	case err == nil:
		resp := checkoutResponse{URL: redirect.URL, Kind: string(redirect.Kind)}
		if !redirect.ExpiresAt.IsZero() {
			resp.ExpiresAt = &redirect.ExpiresAt
		}
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, tier.ErrTierNotFound):
		writeError(w, errNotFound)
	case errors.Is(err, tier.ErrTierInactive):
		writeError(w, errUnprocessable)
	case errors.Is(err, subscription.ErrAlreadySubscribed):
		writeError(w, errConflict)
	case errors.Is(err, checkout.ErrTierCapReached):
		writeError(w, errTierFull)
	case errors.Is(err, billing.ErrProviderUnavailable):
		writeError(w, errProviderDown)
	default:
		h.log.ErrorContext(r.Context(), "checkout creation failed", "error", err)
		writeError(w, errInternal)
	}
}
