package webhook

import "errors"

var (
	// ErrSignatureInvalid rejects the request at the boundary. The handler
	// answers 401 so the processor retries; a transient secret-rotation
	// mismatch must not silently drop events.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")

	// ErrMalformedPayload rejects an unparseable envelope. Answered 400; the
	// processor should not retry.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	ErrMissingSecret = errors.New("webhook shared secret is not configured")
)
