package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/checkout"
	"github.com/patronkit/patronkit/internal/tier"
	"github.com/patronkit/patronkit/internal/webhook"
)

// Ingestor processes raw webhook deliveries.
type Ingestor interface {
	Ingest(ctx context.Context, payload []byte, signature string) (webhook.Result, error)
}

// CheckoutService starts checkout sessions and plan-change redirects.
type CheckoutService interface {
	Create(ctx context.Context, subscriberID, tierID uuid.UUID, email string) (*checkout.Redirect, error)
}

// TierService manages creator tier definitions.
type TierService interface {
	Create(ctx context.Context, creatorID uuid.UUID, spec tier.Spec) (*tier.Tier, error)
	Get(ctx context.Context, id uuid.UUID) (*tier.Tier, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]tier.Tier, error)
	Update(ctx context.Context, id uuid.UUID, upd tier.Update) (*tier.Tier, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	RemainingCapacity(ctx context.Context, t *tier.Tier) (int, error)
}

// Entitlements answers access checks against committed subscription state.
type Entitlements interface {
	HasAccess(ctx context.Context, subscriberID, contentID uuid.UUID) (bool, error)
}

// HealthChecker probes one backing dependency.
type HealthChecker func(ctx context.Context) error

// Handler bundles the API's collaborators.
type Handler struct {
	ingestor     Ingestor
	checkout     CheckoutService
	tiers        TierService
	entitlements Entitlements
	health       map[string]HealthChecker
	log          *slog.Logger
}

// NewHandler creates the API handler. Panics on missing dependencies.
func NewHandler(
	ingestor Ingestor,
	checkoutSvc CheckoutService,
	tiers TierService,
	entitlements Entitlements,
	health map[string]HealthChecker,
	log *slog.Logger,
) *Handler {
	if ingestor == nil || checkoutSvc == nil || tiers == nil || entitlements == nil {
		panic("httpapi: all service dependencies are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ingestor:     ingestor,
		checkout:     checkoutSvc,
		tiers:        tiers,
		entitlements: entitlements,
		health:       health,
		log:          log,
	}
}

// Router assembles the chi router with the standard middleware chain.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/webhooks/payments", h.handleWebhook)
	r.Post("/subscriptions/checkout", h.handleCheckout)
	r.Get("/entitlements", h.handleEntitlement)

	r.Route("/tiers", func(r chi.Router) {
		r.Post("/", h.handleTierCreate)
		r.Get("/{tierID}", h.handleTierGet)
		r.Patch("/{tierID}", h.handleTierUpdate)
		r.Delete("/{tierID}", h.handleTierDeactivate)
	})
	r.Get("/creators/{creatorID}/tiers", h.handleTierList)

	r.Get("/health", h.handleHealth)

	return r
}

// logRequests emits one structured line per request, after it completes.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// pathUUID parses a uuid route parameter.
func pathUUID(r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	return id, err == nil
}
