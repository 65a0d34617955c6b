package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
	"github.com/google/uuid"
)

// PaddleConfig holds the Paddle API credentials.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider on top of the official Paddle SDK.
type PaddleProvider struct {
	client *paddle.SDK
}

// NewPaddleProvider creates the Paddle-backed provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{client: client}, nil
}

func (p *PaddleProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	req := &paddle.CreateCustomerRequest{
		Email: email,
		CustomData: paddle.CustomData{
			"user_id": userID.String(),
		},
	}

	customer, err := p.client.CustomersClient.CreateCustomer(ctx, req)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return customer.ID, nil
}

func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if req.CustomerID == "" {
		return nil, errors.New("customer ID is required")
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	txnReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerID),
		CustomData: paddle.CustomData{
			"subscription_id": req.SubscriptionID.String(),
		},
	}
	if req.SuccessURL != "" {
		txnReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, txnReq)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	if txn.Checkout == nil || txn.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{
		URL:       *txn.Checkout.URL,
		SessionID: txn.ID,
		// Paddle checkout links expire after 24 hours.
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *PaddleProvider) CreatePortalSession(ctx context.Context, customerID, processorSubID string) (*PortalSession, error) {
	req := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerID,
	}
	if processorSubID != "" {
		req.SubscriptionIDs = []string{processorSubID}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if session.URLs.General.Overview == "" {
		return nil, ErrNoPortalURL
	}

	return &PortalSession{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *PaddleProvider) CheckoutStatus(ctx context.Context, sessionID string) (CheckoutState, error) {
	txn, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: sessionID,
	})
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}

	switch txn.Status {
	case paddle.TransactionStatusCompleted, paddle.TransactionStatusPaid:
		return CheckoutCompleted, nil
	case paddle.TransactionStatusDraft, paddle.TransactionStatusReady, paddle.TransactionStatusBilled:
		return CheckoutOpen, nil
	default:
		return CheckoutAbandoned, nil
	}
}

func (p *PaddleProvider) SubscriptionState(ctx context.Context, processorSubID string) (RemoteState, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: processorSubID,
	})
	if err != nil {
		var apiErr *paddleerr.Error
		if errors.As(err, &apiErr) && apiErr.Type == paddleerr.ErrorTypeRequestError {
			return RemoteUnknown, ErrRemoteNotFound
		}
		return RemoteUnknown, errors.Join(ErrProviderUnavailable, err)
	}

	switch sub.Status {
	case paddle.SubscriptionStatusActive, paddle.SubscriptionStatusTrialing:
		return RemoteActive, nil
	case paddle.SubscriptionStatusPastDue:
		return RemotePastDue, nil
	case paddle.SubscriptionStatusCanceled:
		return RemoteCanceled, nil
	default:
		return RemoteUnknown, nil
	}
}
