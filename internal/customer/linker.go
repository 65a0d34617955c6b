// Package customer maps platform users to payment-processor customer
// identities. A mapping is created lazily on first checkout and reused
// across tiers and creators forever after.
package customer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/patronkit/patronkit/internal/billing"
)

var ErrCustomerNotFound = errors.New("external customer mapping not found")

// ExternalCustomer is the (platform user) -> (processor customer) link.
// At most one per user, never deleted.
type ExternalCustomer struct {
	UserID              uuid.UUID
	ProcessorCustomerID string
	CreatedAt           time.Time
}

// Store persists customer mappings. Insert must be an upsert-style write
// under the user_id primary key: losing a concurrent race is reported, not
// an error, so the loser can re-read the winner's row.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*ExternalCustomer, error)

	// Insert writes the mapping. Returns (false, nil) when another row for
	// the same user already exists.
	Insert(ctx context.Context, c *ExternalCustomer) (bool, error)
}

// Linker resolves processor customer ids, creating them on first use.
type Linker struct {
	store    Store
	provider billing.Provider
	log      *slog.Logger
}

// NewLinker creates a Linker. Panics on nil dependencies to fail fast during
// wiring.
func NewLinker(store Store, provider billing.Provider, log *slog.Logger) *Linker {
	if store == nil {
		panic("customer: Store is required")
	}
	if provider == nil {
		panic("customer: billing.Provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Linker{store: store, provider: provider, log: log}
}

// EnsureCustomer returns the processor customer id for a user, creating the
// processor-side customer and the mapping on first call. Safe under
// concurrent first-time calls: the insert runs under the user_id unique
// constraint and a lost race re-reads the winner's mapping, so two
// simultaneous checkouts never produce two processor customers that both
// get persisted.
func (l *Linker) EnsureCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	existing, err := l.store.Get(ctx, userID)
	if err == nil {
		return existing.ProcessorCustomerID, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return "", err
	}

	processorID, err := l.provider.CreateCustomer(ctx, userID, email)
	if err != nil {
		// Retryable: nothing was persisted.
		return "", err
	}

	inserted, err := l.store.Insert(ctx, &ExternalCustomer{
		UserID:              userID,
		ProcessorCustomerID: processorID,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		// Lost the race; the winner's processor customer is the one of
		// record. The extra processor-side customer is harmless and unused.
		winner, err := l.store.Get(ctx, userID)
		if err != nil {
			return "", err
		}
		l.log.InfoContext(ctx, "concurrent customer creation, reusing existing mapping",
			"user_id", userID, "discarded_processor_customer", processorID)
		return winner.ProcessorCustomerID, nil
	}

	l.log.InfoContext(ctx, "external customer linked",
		"user_id", userID, "processor_customer_id", processorID)
	return processorID, nil
}
