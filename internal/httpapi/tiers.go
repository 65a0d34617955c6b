package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/tier"
)

type tierRequest struct {
	CreatorID        uuid.UUID `json:"creator_id"`
	Name             string    `json:"name"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	Interval         string    `json:"interval"`
	ProcessorPriceID string    `json:"processor_price_id"`
	Perks            []string  `json:"perks"`
	Rank             int       `json:"rank"`
	SubscriberCap    *int32    `json:"subscriber_cap"`
}

type tierUpdateRequest struct {
	Name          *string  `json:"name"`
	Perks         []string `json:"perks"`
	PriceCents    *int64   `json:"price_cents"`
	Interval      *string  `json:"interval"`
	SubscriberCap *int32   `json:"subscriber_cap"`
	ClearCap      bool     `json:"clear_cap"`
}

type tierResponse struct {
	ID            uuid.UUID `json:"id"`
	CreatorID     uuid.UUID `json:"creator_id"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"price_cents"`
	Currency      string    `json:"currency"`
	Interval      string    `json:"interval"`
	Perks         []string  `json:"perks"`
	Rank          int       `json:"rank"`
	Active        bool      `json:"active"`
	SubscriberCap *int32    `json:"subscriber_cap,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toTierResponse(t *tier.Tier) tierResponse {
	return tierResponse{
		ID:            t.ID,
		CreatorID:     t.CreatorID,
		Name:          t.Name,
		PriceCents:    t.PriceCents,
		Currency:      t.Currency,
		Interval:      string(t.Interval),
		Perks:         t.Perks,
		Rank:          t.Rank,
		Active:        t.Active,
		SubscriberCap: t.SubscriberCap,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (h *Handler) handleTierCreate(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	if req.CreatorID == uuid.Nil {
		writeError(w, errUnprocessable)
		return
	}

	created, err := h.tiers.Create(r.Context(), req.CreatorID, tier.Spec{
		Name:             req.Name,
		PriceCents:       req.PriceCents,
		Currency:         req.Currency,
		Interval:         tier.BillingInterval(req.Interval),
		ProcessorPriceID: req.ProcessorPriceID,
		Perks:            req.Perks,
		Rank:             req.Rank,
		SubscriberCap:    req.SubscriberCap,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, toTierResponse(created))
	case errors.Is(err, tier.ErrInvalidSpec):
		writeError(w, errUnprocessable)
	case errors.Is(err, tier.ErrDuplicateRank):
		writeError(w, errConflict)
	default:
		h.log.ErrorContext(r.Context(), "tier creation failed", "error", err)
		writeError(w, errInternal)
	}
}

func (h *Handler) handleTierGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "tierID")
	if !ok {
		writeError(w, errNotFound)
		return
	}

	t, err := h.tiers.Get(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toTierResponse(t))
	case errors.Is(err, tier.ErrTierNotFound):
		writeError(w, errNotFound)
	default:
		h.log.ErrorContext(r.Context(), "tier lookup failed", "error", err)
		writeError(w, errInternal)
	}
}

func (h *Handler) handleTierList(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := pathUUID(r, "creatorID")
	if !ok {
		writeError(w, errNotFound)
		return
	}

	tiers, err := h.tiers.ListByCreator(r.Context(), creatorID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "tier listing failed", "error", err)
		writeError(w, errInternal)
		return
	}

	out := make([]tierResponse, 0, len(tiers))
	for i := range tiers {
		out = append(out, toTierResponse(&tiers[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTierUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "tierID")
	if !ok {
		writeError(w, errNotFound)
		return
	}

	var req tierUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest)
		return
	}

	upd := tier.Update{
		Name:          req.Name,
		Perks:         req.Perks,
		PriceCents:    req.PriceCents,
		SubscriberCap: req.SubscriberCap,
		ClearCap:      req.ClearCap,
	}
	if req.Interval != nil {
		iv := tier.BillingInterval(*req.Interval)
		upd.Interval = &iv
	}

	updated, err := h.tiers.Update(r.Context(), id, upd)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toTierResponse(updated))
	case errors.Is(err, tier.ErrTierNotFound):
		writeError(w, errNotFound)
	case errors.Is(err, tier.ErrInvalidSpec):
		writeError(w, errUnprocessable)
	case errors.Is(err, tier.ErrTierImmutable):
		writeError(w, errConflict)
	default:
		h.log.ErrorContext(r.Context(), "tier update failed", "error", err)
		writeError(w, errInternal)
	}
}

// handleTierDeactivate retires a tier from sale. Existing subscriptions are
// untouched; the tier row survives for as long as they reference it.
func (h *Handler) handleTierDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "tierID")
	if !ok {
		writeError(w, errNotFound)
		return
	}

	err := h.tiers.Deactivate(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, tier.ErrTierNotFound):
		writeError(w, errNotFound)
	default:
		h.log.ErrorContext(r.Context(), "tier deactivation failed", "error", err)
		writeError(w, errInternal)
	}
}
